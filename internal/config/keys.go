package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "WISHWELL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "WISHWELL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "enrichment.webhook_url", typ: kString, env: "WISHWELL_ENRICHMENT_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Enrichment.WebhookURL },
	},
	{
		key: "enrichment.poll_interval", typ: kString, env: "WISHWELL_ENRICHMENT_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Enrichment.PollInterval },
	},
	{
		key: "enrichment.max_attempts", typ: kInt, env: "WISHWELL_ENRICHMENT_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Enrichment.MaxAttempts },
	},
	{
		key: "enrichment.fetch_timeout", typ: kString, env: "WISHWELL_ENRICHMENT_FETCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Enrichment.FetchTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Enrichment.FetchTimeout },
	},
	{
		key: "api.token", typ: kString, env: "WISHWELL_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "log.level", typ: kString, env: "WISHWELL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.flush_interval", typ: kString, env: "WISHWELL_LOG_FLUSH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Log.FlushInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.FlushInterval },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
