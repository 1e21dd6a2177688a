package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIHost  = "https://api.stability.ai"
	DefaultEngine   = "stable-diffusion-xl-1024-v1-0"
	DefaultFilename = "output.png"
)

// Config is everything the process reads from its environment. The API key itself is not
// part of it: it is resolved through a param.Fetcher, named by APIKeyEnv or APIKeyParam.
type Config struct {
	APIHost     string
	Engine      string
	APIKeyParam string

	OutputDir      string
	OutputFilename string
	OutputBucket   string
	OutputPrefix   string
	Distribution   string

	RequestTimeout time.Duration
	LogLevel       string
}

const (
	APIKeyEnv       = "STABILITY_API_KEY"
	LegacyAPIKeyEnv = "STABILITY_KEY"
)

// Load reads the given dotenv files (".env" when none are named) without overriding variables
// that are already set, then builds a Config from the environment. Missing dotenv files are
// not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading dotenv: %w", err)
	}

	cfg := &Config{
		APIHost:        getEnv("STABILITY_API_HOST", DefaultAPIHost),
		Engine:         getEnv("STABILITY_ENGINE", DefaultEngine),
		APIKeyParam:    os.Getenv("STABILITY_API_KEY_PARAM"),
		OutputDir:      os.Getenv("OUTPUT_DIR"),
		OutputFilename: getEnv("OUTPUT_FILENAME", DefaultFilename),
		OutputBucket:   os.Getenv("OUTPUT_BUCKET"),
		OutputPrefix:   os.Getenv("OUTPUT_PREFIX"),
		Distribution:   os.Getenv("DISTRIBUTION"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("REQUEST_TIMEOUT: must not be negative, got %s", v)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
