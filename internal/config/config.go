package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/atlascaucasus/service-booking/internal/common/config"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// EngineConfig tunes the booking lifecycle engine.
type EngineConfig struct {
	MaxTransitionAttempts int
	RetryBaseDelay        time.Duration
	ActionTimeout         time.Duration
	MaxReferenceAttempts  int
	DefaultCurrency       string
	PerGuestCents         map[string]int64
}

// EventsConfig tunes asynchronous event delivery.
type EventsConfig struct {
	KafkaEnabled     bool
	Topic            string
	Source           string
	QueueSize        int
	ResendBufferSize int
	PublishTimeout   time.Duration
	ResendInterval   time.Duration
	MaxAttempts      int
}

// HTTPConfig holds the HTTP hardening knobs.
type HTTPConfig struct {
	CSRFEnabled        bool
	RateLimitPerMinute int
	RateLimitBurst     int
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

// ServiceConfig holds all configuration for the booking service.
type ServiceConfig struct {
	Port          string
	AppEnv        string
	StoreDriver   string
	RunMigrations bool
	MigrationsDir string
	DBConfig      config.DatabaseConfig
	JWTConfig     config.JWTConfig
	KafkaConfig   config.KafkaConfig
	Engine        EngineConfig
	Events        EventsConfig
	HTTP          HTTPConfig
}

// Load reads configuration from environment variables prefixed with BOOKING_.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("BOOKING")
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	cfg := &ServiceConfig{
		Port:          config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:        config.GetAppEnv(v),
		StoreDriver:   v.GetString("STORE_DRIVER"),
		RunMigrations: v.GetBool("RUN_MIGRATIONS"),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
		DBConfig:      config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:     config.LoadJWTConfig(v),
		KafkaConfig:   config.LoadKafkaConfig(v),
		Engine: EngineConfig{
			MaxTransitionAttempts: v.GetInt("MAX_TRANSITION_ATTEMPTS"),
			RetryBaseDelay:        v.GetDuration("RETRY_BASE_DELAY"),
			ActionTimeout:         v.GetDuration("ACTION_TIMEOUT"),
			MaxReferenceAttempts:  v.GetInt("MAX_REFERENCE_ATTEMPTS"),
			DefaultCurrency:       v.GetString("DEFAULT_CURRENCY"),
			PerGuestCents: map[string]int64{
				"TOUR":   v.GetInt64("PRICING_TOUR_CENTS"),
				"GUIDE":  v.GetInt64("PRICING_GUIDE_CENTS"),
				"DRIVER": v.GetInt64("PRICING_DRIVER_CENTS"),
			},
		},
		Events: EventsConfig{
			KafkaEnabled:     v.GetBool("KAFKA_ENABLED"),
			Topic:            v.GetString("EVENTS_TOPIC"),
			Source:           v.GetString("EVENTS_SOURCE"),
			QueueSize:        v.GetInt("EVENT_QUEUE_SIZE"),
			ResendBufferSize: v.GetInt("EVENT_RESEND_BUFFER"),
			PublishTimeout:   v.GetDuration("EVENT_PUBLISH_TIMEOUT"),
			ResendInterval:   v.GetDuration("EVENT_RESEND_INTERVAL"),
			MaxAttempts:      v.GetInt("EVENT_MAX_ATTEMPTS"),
		},
		HTTP: HTTPConfig{
			CSRFEnabled:        v.GetBool("CSRF_ENABLED"),
			RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
			RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
			CORSAllowedOrigins: config.SplitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			ShutdownTimeout:    v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServiceConfig) validate() error {
	switch c.StoreDriver {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("BOOKING_STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreDriver)
	}
	if c.StoreDriver == StoreMemory && c.AppEnv == "production" {
		return fmt.Errorf("BOOKING_STORE_DRIVER=%s is not allowed in production", StoreMemory)
	}
	if len(c.Engine.DefaultCurrency) != 3 {
		return fmt.Errorf("BOOKING_DEFAULT_CURRENCY must be a 3-letter code")
	}
	for entity, cents := range c.Engine.PerGuestCents {
		if cents < 0 {
			return fmt.Errorf("BOOKING_PRICING_%s_CENTS must not be negative", entity)
		}
	}
	if c.Events.KafkaEnabled && len(c.KafkaConfig.Brokers) == 0 {
		return fmt.Errorf("BOOKING_KAFKA_BROKERS is required when Kafka is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_NAME", "atlas_booking")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	v.SetDefault("MAX_TRANSITION_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", 10*time.Millisecond)
	v.SetDefault("ACTION_TIMEOUT", 10*time.Second)
	v.SetDefault("MAX_REFERENCE_ATTEMPTS", 5)
	v.SetDefault("DEFAULT_CURRENCY", "GEL")
	v.SetDefault("PRICING_TOUR_CENTS", 15000)
	v.SetDefault("PRICING_GUIDE_CENTS", 8000)
	v.SetDefault("PRICING_DRIVER_CENTS", 6000)

	v.SetDefault("KAFKA_ENABLED", true)
	v.SetDefault("EVENTS_TOPIC", "booking.events")
	v.SetDefault("EVENTS_SOURCE", "service-booking")
	v.SetDefault("EVENT_QUEUE_SIZE", 1024)
	v.SetDefault("EVENT_RESEND_BUFFER", 4096)
	v.SetDefault("EVENT_PUBLISH_TIMEOUT", 5*time.Second)
	v.SetDefault("EVENT_RESEND_INTERVAL", 30*time.Second)
	v.SetDefault("EVENT_MAX_ATTEMPTS", 5)

	v.SetDefault("CSRF_ENABLED", true)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)
}
