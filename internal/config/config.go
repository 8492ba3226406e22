// Package config holds the runtime configuration shared by the karaoke
// CLI and server. Values come from flags, KARAOKE_* environment variables
// and optional .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Config.
const EnvPrefix = "KARAOKE_"

// Config is embedded into the kong CLI so each field is a global flag with
// an environment fallback.
type Config struct {
	Addr           string        `help:"HTTP listen address." default:":8080" env:"KARAOKE_ADDR"`
	Store          string        `help:"Document store: directory, file://, sqlite:, libsql://, redis:// or rediss://." default:"./songs" env:"KARAOKE_STORE"`
	LogLevel       string        `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info" env:"KARAOKE_LOG_LEVEL"`
	LogFormat      string        `name:"log-format" help:"Log format (text, json)." default:"text" env:"KARAOKE_LOG_FORMAT"`
	SessionTTL     time.Duration `name:"session-ttl" help:"Close edit sessions idle for this long (0 keeps them open)." default:"30m" env:"KARAOKE_SESSION_TTL"`
	AllowedOrigins []string      `name:"allowed-origins" help:"WebSocket origins allowed to connect (empty allows same host only)." env:"KARAOKE_ALLOWED_ORIGINS" sep:","`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:       ":8080",
		Store:      "./songs",
		LogLevel:   "info",
		LogFormat:  "text",
		SessionTTL: 30 * time.Minute,
	}
}

// LoadEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments ".env" in the working directory is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.NewIO("load env", f, err)
		}
	}
	return nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.NewValidation("addr", "listen address is required")
	}
	if strings.TrimSpace(c.Store) == "" {
		return errors.NewValidation("store", "store DSN is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidation("log-level", err.Error())
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return errors.NewValidation("log-format", err.Error())
	}
	if c.SessionTTL < 0 {
		return errors.NewValidation("session-ttl", fmt.Sprintf("must not be negative, got %s", c.SessionTTL))
	}
	for _, o := range c.AllowedOrigins {
		if strings.TrimSpace(o) == "" {
			return errors.NewValidation("allowed-origins", "empty origin")
		}
	}
	return nil
}

// InitLogging configures the global logger from c.
func (c *Config) InitLogging() error {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.NewValidation("log-level", err.Error())
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return errors.NewValidation("log-format", err.Error())
	}
	logging.InitLogger(level, format)
	return nil
}
