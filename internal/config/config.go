// Package config loads runtime configuration from OPREMA_* environment
// variables. Command-line flags in cmd/oprema override the loaded values.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration of the service.
type Config struct {
	Addr      string `env:"OPREMA_ADDR" envDefault:":8080"`
	LogFile   string `env:"OPREMA_LOG"`
	LogFormat string `env:"OPREMA_LOG_FORMAT" envDefault:"text"`

	Custody DB `envPrefix:"OPREMA_CUSTODY_"`
	Events  DB `envPrefix:"OPREMA_EVENTS_"`

	JWTSecret string `env:"OPREMA_JWT_SECRET"`
	Timezone  string `env:"OPREMA_TIMEZONE" envDefault:"UTC"`

	KafkaBrokers []string `env:"OPREMA_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"OPREMA_KAFKA_TOPIC" envDefault:"oprema.equipment"`

	OTelEndpoint string `env:"OPREMA_OTEL_ENDPOINT"`

	Retry   Retry   `envPrefix:"OPREMA_RETRY_"`
	Weights Weights `envPrefix:"OPREMA_WEIGHT_"`
}

// DB configures one connection pool.
type DB struct {
	Driver          string        `env:"DRIVER" envDefault:"sqlite"`
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

// Retry bounds how often a reservation line is retried after losing a claim
// race to a concurrent reserver.
type Retry struct {
	Attempts  int           `env:"ATTEMPTS" envDefault:"4"`
	BaseDelay time.Duration `env:"BASE_DELAY" envDefault:"20ms"`
}

// Weights are the reschedule scoring parameters.
type Weights struct {
	Base            float64 `env:"BASE" envDefault:"0.5"`
	HistoryPerEvent float64 `env:"HISTORY_PER_EVENT" envDefault:"0.05"`
	HistoryMax      float64 `env:"HISTORY_MAX" envDefault:"0.3"`
	ProximityMax    float64 `env:"PROXIMITY_MAX" envDefault:"0.2"`
	ProximityPerDay float64 `env:"PROXIMITY_PER_DAY" envDefault:"0.02"`
	After           float64 `env:"AFTER" envDefault:"0.15"`
	Before          float64 `env:"BEFORE" envDefault:"0.05"`
	AcademicWeekend float64 `env:"ACADEMIC_WEEKEND" envDefault:"-0.2"`
	EventfulWeekend float64 `env:"EVENTFUL_WEEKEND" envDefault:"0.1"`
	Min             float64 `env:"MIN" envDefault:"0.1"`
	Max             float64 `env:"MAX" envDefault:"1.0"`
	RecommendAbove  float64 `env:"RECOMMEND_ABOVE" envDefault:"0.7"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Custody.DSN == "" && cfg.Custody.Driver == "sqlite" {
		cfg.Custody.DSN = "oprema-custody.db"
	}
	if cfg.Events.DSN == "" && cfg.Events.Driver == "sqlite" {
		cfg.Events.DSN = "oprema-events.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that env parsing cannot.
func (c *Config) Validate() error {
	for name, db := range map[string]DB{"custody": c.Custody, "events": c.Events} {
		if db.Driver != "sqlite" && db.Driver != "pgx" {
			return fmt.Errorf("%s store: unsupported driver %q (want sqlite or pgx)", name, db.Driver)
		}
		if db.DSN == "" {
			return fmt.Errorf("%s store: DSN required", name)
		}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format %q (want text or json)", c.LogFormat)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.Weights.Min > c.Weights.Max {
		return fmt.Errorf("weight min %.2f exceeds max %.2f", c.Weights.Min, c.Weights.Max)
	}
	return nil
}

// Location returns the school time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
