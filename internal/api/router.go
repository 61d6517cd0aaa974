package api

import (
	"github.com/gin-gonic/gin"
	"github.com/shahin-grc/serialcode/internal/api/cron"
	v1 "github.com/shahin-grc/serialcode/internal/api/v1"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/rest/middleware"
)

type Handlers struct {
	Health      *v1.HealthHandler
	SerialCode  *v1.SerialCodeHandler
	Reservation *v1.ReservationHandler

	// Cron jobs
	CronReservation *cron.ReservationCronHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.SentryMiddleware(cfg),
		middleware.CORSMiddleware,
		middleware.RequestIDMiddleware,
		middleware.ActorMiddleware,
		middleware.ErrorHandler(logger),
	)

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	serialCodes := router.Group("/serial-codes")
	{
		serialCodes.POST("", handlers.SerialCode.Generate)
		serialCodes.GET("", handlers.SerialCode.Search)
		serialCodes.POST("/batch", handlers.SerialCode.GenerateBatch)
		serialCodes.POST("/validate", handlers.SerialCode.Validate)
		serialCodes.GET("/parse/:code", handlers.SerialCode.Parse)
		serialCodes.GET("/next-sequence", handlers.SerialCode.GetNextSequence)

		serialCodes.GET("/prefix/:prefix", handlers.SerialCode.ListByPrefix)
		serialCodes.GET("/tenant/:tenant", handlers.SerialCode.ListByTenant)
		serialCodes.GET("/stage/:stage", handlers.SerialCode.ListByStage)
		serialCodes.GET("/entity/:entity_type/:entity_id", handlers.SerialCode.GetByEntity)

		serialCodes.GET("/:code", handlers.SerialCode.GetByCode)
		serialCodes.HEAD("/:code", handlers.SerialCode.Exists)
		serialCodes.POST("/:code/void", handlers.SerialCode.Void)

		// Versioning and traceability
		serialCodes.POST("/:code/versions", handlers.SerialCode.CreateNewVersion)
		serialCodes.GET("/:code/latest", handlers.SerialCode.GetLatestVersion)
		serialCodes.GET("/:code/history", handlers.SerialCode.GetHistory)
		serialCodes.GET("/:code/traceability", handlers.SerialCode.GetTraceabilityReport)

		reservations := serialCodes.Group("/reservations")
		{
			reservations.POST("", handlers.Reservation.Reserve)
			reservations.GET("/:id", handlers.Reservation.GetReservation)
			reservations.POST("/:id/confirm", handlers.Reservation.Confirm)
			reservations.DELETE("/:id", handlers.Reservation.Cancel)
		}
	}

	cronGroup := router.Group("/cron")
	{
		cronGroup.POST("/serial-codes/reservations/expire", handlers.CronReservation.ExpireReservations)
	}
}
