// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DatabaseURL  string
	JWTSecret    string
	PasswordHash string
	LogLevel     string
	LogFormat    string

	ServerURL    string
	Token        string
	Password     string
	UndoWindow   time.Duration
	AutosaveWait time.Duration
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset
// variables.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	cfg := Config{
		Port:         get("LUMI_PORT", "8080"),
		DatabaseURL:  getenv("LUMI_DATABASE_URL"),
		JWTSecret:    getenv("LUMI_JWT_SECRET"),
		PasswordHash: getenv("LUMI_PASSWORD_HASH"),
		LogLevel:     get("LUMI_LOG_LEVEL", "info"),
		LogFormat:    get("LUMI_LOG_FORMAT", "console"),
		ServerURL:    get("LUMI_SERVER_URL", "ws://localhost:8080/ws"),
		Token:        getenv("LUMI_TOKEN"),
		Password:     getenv("LUMI_PASSWORD"),
	}

	var err error
	if cfg.UndoWindow, err = duration(getenv, "LUMI_UNDO_WINDOW", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AutosaveWait, err = duration(getenv, "LUMI_AUTOSAVE_DELAY", 700*time.Millisecond); err != nil {
		return Config{}, err
	}
	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return Config{}, fmt.Errorf("LUMI_PORT: %q is not a port", cfg.Port)
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		return Config{}, fmt.Errorf("LUMI_LOG_FORMAT: %q is neither console nor json", cfg.LogFormat)
	}
	return cfg, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, v)
	}
	return d, nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string { return ":" + c.Port }
