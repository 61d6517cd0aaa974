package config

import (
	"time"

	"github.com/shahin-grc/serialcode/internal/types"
)

// EventConfig holds configuration for serial code lifecycle events and the
// audit consumer that persists them
type EventConfig struct {
	Enabled            bool                     `mapstructure:"enabled"`
	PublishDestination types.PublishDestination `mapstructure:"publish_destination" default:"memory"`
	Topic              string                   `mapstructure:"topic" default:"serial_code_events"`
	MaxRetries         int                      `mapstructure:"max_retries" default:"3"`
	InitialInterval    time.Duration            `mapstructure:"initial_interval" default:"100ms"`
	MaxInterval        time.Duration            `mapstructure:"max_interval" default:"5s"`
	Multiplier         float64                  `mapstructure:"multiplier" default:"2"`
	MaxElapsedTime     time.Duration            `mapstructure:"max_elapsed_time" default:"30s"`
}
