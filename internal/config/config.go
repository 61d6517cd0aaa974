package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	SerialCode SerialCodeConfig `mapstructure:"serial_code" validate:"required"`
	Event      EventConfig      `mapstructure:"event"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string        `mapstructure:"host" validate:"required"`
	Port                   int           `mapstructure:"port" validate:"required"`
	User                   string        `mapstructure:"user" validate:"required"`
	Password               string        `mapstructure:"password"`
	DBName                 string        `mapstructure:"dbname" validate:"required"`
	SSLMode                string        `mapstructure:"sslmode" validate:"required"`
	MaxOpenConns           int           `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int           `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int           `mapstructure:"conn_max_lifetime_minutes" default:"60"`
	AutoMigrate            bool          `mapstructure:"auto_migrate" default:"false"`
	QueryTimeout           time.Duration `mapstructure:"query_timeout" default:"5s"`
}

// SerialCodeConfig tunes the generation and reservation engine.
type SerialCodeConfig struct {
	DefaultReservationTTL    time.Duration `mapstructure:"default_reservation_ttl" validate:"gt=0"`
	MaxReservationTTL        time.Duration `mapstructure:"max_reservation_ttl" validate:"gtfield=DefaultReservationTTL"`
	MaxPageSize              int           `mapstructure:"max_page_size" validate:"gt=0,lte=500"`
	DefaultPageSize          int           `mapstructure:"default_page_size" validate:"gt=0"`
	MaxBatchSize             int           `mapstructure:"max_batch_size" validate:"gt=0"`
	BatchConcurrency         int           `mapstructure:"batch_concurrency" validate:"gt=0"`
	MaxLineageHops           int           `mapstructure:"max_lineage_hops" validate:"gt=0"`
	ReadRetryMaxAttempts     uint64        `mapstructure:"read_retry_max_attempts"`
	ReadRetryInitialInterval time.Duration `mapstructure:"read_retry_initial_interval"`
	SweepEnabled             bool          `mapstructure:"sweep_enabled"`
	SweepInterval            time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize           int           `mapstructure:"sweep_batch_size"`
	SweepBatchesPerSecond    float64       `mapstructure:"sweep_batches_per_second"`
	ReservationCacheTTL      time.Duration `mapstructure:"reservation_cache_ttl"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ClientID      string   `mapstructure:"client_id"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	TLS           bool     `mapstructure:"tls"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLMechanism string   `mapstructure:"sasl_mechanism"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" default:"1.0"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	// Modify config paths to ensure config.yaml is found
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/serialcode")

	// Set up environment variables support
	v.SetEnvPrefix("SERIALCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("deployment.mode", d.Deployment.Mode)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "serialcode")
	v.SetDefault("postgres.dbname", "serialcode")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("postgres.query_timeout", "5s")

	sc := d.SerialCode
	v.SetDefault("serial_code.default_reservation_ttl", sc.DefaultReservationTTL)
	v.SetDefault("serial_code.max_reservation_ttl", sc.MaxReservationTTL)
	v.SetDefault("serial_code.max_page_size", sc.MaxPageSize)
	v.SetDefault("serial_code.default_page_size", sc.DefaultPageSize)
	v.SetDefault("serial_code.max_batch_size", sc.MaxBatchSize)
	v.SetDefault("serial_code.batch_concurrency", sc.BatchConcurrency)
	v.SetDefault("serial_code.max_lineage_hops", sc.MaxLineageHops)
	v.SetDefault("serial_code.read_retry_max_attempts", sc.ReadRetryMaxAttempts)
	v.SetDefault("serial_code.read_retry_initial_interval", sc.ReadRetryInitialInterval)
	v.SetDefault("serial_code.sweep_enabled", sc.SweepEnabled)
	v.SetDefault("serial_code.sweep_interval", sc.SweepInterval)
	v.SetDefault("serial_code.sweep_batch_size", sc.SweepBatchSize)
	v.SetDefault("serial_code.sweep_batches_per_second", sc.SweepBatchesPerSecond)
	v.SetDefault("serial_code.reservation_cache_ttl", sc.ReservationCacheTTL)

	v.SetDefault("event.publish_destination", d.Event.PublishDestination)
	v.SetDefault("event.enabled", d.Event.Enabled)
	v.SetDefault("event.topic", d.Event.Topic)
	v.SetDefault("event.max_retries", d.Event.MaxRetries)
	v.SetDefault("event.initial_interval", d.Event.InitialInterval)
	v.SetDefault("event.max_interval", d.Event.MaxInterval)
	v.SetDefault("event.multiplier", d.Event.Multiplier)
	v.SetDefault("event.max_elapsed_time", d.Event.MaxElapsedTime)
	v.SetDefault("kafka.client_id", "serialcode")
	v.SetDefault("kafka.consumer_group", "serialcode-audit")
	v.SetDefault("sentry.sample_rate", 1.0)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		SerialCode: DefaultSerialCodeConfig(),
		Event: EventConfig{
			Enabled:            true,
			PublishDestination: types.PublishToMemory,
			Topic:              "serial_code_events",
			MaxRetries:         3,
			InitialInterval:    100 * time.Millisecond,
			MaxInterval:        5 * time.Second,
			Multiplier:         2,
			MaxElapsedTime:     30 * time.Second,
		},
	}
}

// DefaultSerialCodeConfig returns the engine defaults.
func DefaultSerialCodeConfig() SerialCodeConfig {
	return SerialCodeConfig{
		DefaultReservationTTL:    5 * time.Minute,
		MaxReservationTTL:        24 * time.Hour,
		MaxPageSize:              types.SerialCodeHardPageLimit,
		DefaultPageSize:          types.SerialCodeDefaultPageLimit,
		MaxBatchSize:             100,
		BatchConcurrency:         8,
		MaxLineageHops:           1000,
		ReadRetryMaxAttempts:     3,
		ReadRetryInitialInterval: 50 * time.Millisecond,
		SweepEnabled:             true,
		SweepInterval:            time.Minute,
		SweepBatchSize:           200,
		SweepBatchesPerSecond:    5,
		ReservationCacheTTL:      10 * time.Minute,
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// GetURL returns the postgres connection string in URL form, used by migrations.
func (c PostgresConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
		c.SSLMode,
	)
}
