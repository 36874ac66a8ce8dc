package config

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken      string        `envconfig:"BOT_TOKEN" required:"true"`
	DBDriver      string        `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite|postgres
	DBDSN         string        `envconfig:"DB_DSN" default:"./data/study.db"`
	CommandPrefix string        `envconfig:"COMMAND_PREFIX" default:"!"`
	TickInterval  time.Duration `envconfig:"TICK_INTERVAL" default:"10m"`
	StoreTimeout  time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr      string        `envconfig:"HTTP_ADDR" default:":8080"` // healthz + metrics
}

// Load reads an optional .env file, then environment variables into Config.
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN: must not be empty"))
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN: must not be empty"))
	}
	if utf8.RuneCountInString(c.CommandPrefix) != 1 {
		errs = append(errs, fmt.Errorf("COMMAND_PREFIX: want a single character, got %q", c.CommandPrefix))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL: must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT: must be positive"))
	}
	return errors.Join(errs...)
}
