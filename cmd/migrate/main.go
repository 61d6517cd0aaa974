package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/migrate"
)

func main() {
	// Parse command line flags
	down := flag.Int("down", 0, "Roll back the given number of migrations instead of applying")
	version := flag.Bool("version", false, "Print the current migration version and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)

	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	switch {
	case *version:
		v, dirty, err := migrate.GetMigrationVersion(db.DB)
		if err != nil {
			logger.Fatalw("Failed to read migration version", "error", err)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return
	case *down > 0:
		logger.Infow("Rolling back migrations", "steps", *down)
		if err := migrate.Rollback(db.DB, *down); err != nil {
			logger.Fatalw("Failed to roll back migrations", "error", err)
		}
	default:
		logger.Info("Running database migrations...")
		if err := migrate.RunMigrations(db.DB); err != nil {
			logger.Fatalw("Failed to apply migrations", "error", err)
		}
	}

	logger.Info("Migration completed successfully")
}
