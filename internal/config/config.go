package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Enrichment EnrichmentConfig
	API        APIConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type EnrichmentConfig struct {
	// WebhookURL, when set, mirrors every enrichment request to an external
	// processor in addition to the local job queue.
	WebhookURL   string
	PollInterval string
	MaxAttempts  int
	FetchTimeout string
}

type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level         string
	FlushInterval string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Enrichment: EnrichmentConfig{
			PollInterval: "500ms",
			MaxAttempts:  3,
			FetchTimeout: "10s",
		},
		Log: LogConfig{
			Level:         "info",
			FlushInterval: "2s",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "wishwell-data"
		}
	}
	return filepath.Join(dir, "wishwell")
}

// Load reads configuration from an optional .env file, the JSON config file
// at $XDG_CONFIG_HOME/wishwell/config.json, and WISHWELL_* environment
// variables. Environment variables override file values.
func Load() (Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.Token == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable WISHWELL_API_TOKEN or .env")
	}

	return cfg, nil
}
