package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/pubsub"
	"github.com/shahin-grc/serialcode/internal/sentry"
)

// Router dispatches lifecycle events to consumer handlers. A message that
// cannot succeed is moved to the dead letter topic "<topic>_dlq" on the same
// transport instead of blocking its partition:
//   - permanent failures (validation, not found) go there immediately
//   - transient failures go there once retries are exhausted
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
	config *config.EventConfig
}

func NewRouter(cfg *config.Configuration, logger *logger.Logger, sentry *sentry.Service, ps pubsub.PubSub) (*Router, error) {
	router, err := message.NewRouter(
		message.RouterConfig{CloseTimeout: 10 * time.Second},
		logger.Watermill(),
	)
	if err != nil {
		return nil, err
	}

	dlq := &dlqPublisher{pubSub: ps}
	dlqTopic := DeadLetterTopic(cfg.Event.Topic)

	exhausted, err := middleware.PoisonQueue(dlq, dlqTopic)
	if err != nil {
		return nil, err
	}
	permanent, err := middleware.PoisonQueueWithFilter(dlq, dlqTopic, func(err error) bool {
		return !shouldRetry(logger, err)
	})
	if err != nil {
		return nil, err
	}

	// first added is outermost
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		exhausted,
		middleware.Retry{
			MaxRetries:          cfg.Event.MaxRetries,
			InitialInterval:     cfg.Event.InitialInterval,
			MaxInterval:         cfg.Event.MaxInterval,
			Multiplier:          cfg.Event.Multiplier,
			MaxElapsedTime:      cfg.Event.MaxElapsedTime,
			RandomizationFactor: 0.5,
			Logger:              logger.Watermill(),
			OnRetryHook: func(retryNum int, delay time.Duration) {
				logger.Infow("retrying lifecycle event",
					"retry_number", retryNum,
					"max_retries", cfg.Event.MaxRetries,
					"delay", delay,
				)
			},
		}.Middleware,
		permanent,
	)

	return &Router{
		router: router,
		logger: logger,
		sentry: sentry,
		config: &cfg.Event,
	}, nil
}

// DeadLetterTopic names the topic that collects poisoned events of topic
func DeadLetterTopic(topic string) string {
	return topic + "_dlq"
}

// AddNoPublishHandler adds a consumer that emits no follow-up messages
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
	middlewares ...message.HandlerMiddleware,
) {
	handler := r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			err := handlerFunc(msg)
			if err != nil {
				r.sentry.CaptureException(err)
				r.logger.Errorw("lifecycle event handler failed",
					"handler", handlerName,
					"message_uuid", msg.UUID,
					"correlation_id", middleware.MessageCorrelationID(msg),
					"error", err,
				)
			}
			return err
		},
	)

	for _, m := range middlewares {
		handler.AddMiddleware(m)
	}
}

// Run blocks until ctx is done or Close is called
func (r *Router) Run(ctx context.Context) error {
	r.logger.Infow("starting message router", "topic", r.config.Topic)
	return r.router.Run(ctx)
}

// Running is closed once every handler is subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	r.logger.Info("closing message router")
	return r.router.Close()
}

// dlqPublisher lets the poison queue middleware publish through the
// transport abstraction. The transport is closed by its owner.
type dlqPublisher struct {
	pubSub pubsub.Publisher
}

func (p *dlqPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if err := p.pubSub.Publish(context.Background(), topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *dlqPublisher) Close() error {
	return nil
}
