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
	kBool
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
		key: "server.host", typ: kString, env: "BIDFETCH_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "BIDFETCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "BIDFETCH_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "portal.login_url", typ: kString, env: "BIDFETCH_PORTAL_LOGIN_URL",
		apply:   func(cfg *Config, v any) { cfg.Portal.LoginURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.LoginURL },
	},
	{
		key: "portal.base_url", typ: kString, env: "BIDFETCH_PORTAL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Portal.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.BaseURL },
	},
	{
		key: "portal.po_detail_url", typ: kString, env: "BIDFETCH_PORTAL_PO_DETAIL_URL",
		apply:   func(cfg *Config, v any) { cfg.Portal.PODetailURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.PODetailURL },
	},
	{
		key: "portal.item_detail_url", typ: kString, env: "BIDFETCH_PORTAL_ITEM_DETAIL_URL",
		apply:   func(cfg *Config, v any) { cfg.Portal.ItemDetailURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.ItemDetailURL },
	},
	{
		key: "portal.username", typ: kString, env: "BIDFETCH_PORTAL_USERNAME",
		apply:   func(cfg *Config, v any) { cfg.Portal.Username = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.Username },
	},
	{
		key: "portal.password", typ: kString, env: "BIDFETCH_PORTAL_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Portal.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.Password },
	},
	{
		key: "scrape.headless", typ: kBool, env: "BIDFETCH_SCRAPE_HEADLESS",
		apply:   func(cfg *Config, v any) { cfg.Scrape.Headless = v.(bool) },
		extract: func(cfg Config) any { return cfg.Scrape.Headless },
	},
	{
		key: "scrape.timeout_seconds", typ: kInt, env: "BIDFETCH_SCRAPE_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Scrape.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Scrape.TimeoutSeconds },
	},
	{
		key: "scrape.download_dir", typ: kString, env: "BIDFETCH_SCRAPE_DOWNLOAD_DIR",
		apply:   func(cfg *Config, v any) { cfg.Scrape.DownloadDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Scrape.DownloadDir },
	},
	{
		key: "scrape.message_limit", typ: kInt, env: "BIDFETCH_SCRAPE_MESSAGE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Scrape.MessageLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Scrape.MessageLimit },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BIDFETCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "jobs.capacity", typ: kInt, env: "BIDFETCH_JOBS_CAPACITY",
		apply:   func(cfg *Config, v any) { cfg.Jobs.Capacity = v.(int) },
		extract: func(cfg Config) any { return cfg.Jobs.Capacity },
	},
	{
		key: "jobs.ttl_minutes", typ: kInt, env: "BIDFETCH_JOBS_TTL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Jobs.TTLMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Jobs.TTLMinutes },
	},
	{
		key: "jobs.max_concurrent", typ: kInt, env: "BIDFETCH_JOBS_MAX_CONCURRENT",
		apply:   func(cfg *Config, v any) { cfg.Jobs.MaxConcurrent = v.(int) },
		extract: func(cfg Config) any { return cfg.Jobs.MaxConcurrent },
	},
	{
		key: "index.interval_seconds", typ: kInt, env: "BIDFETCH_INDEX_INTERVAL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Index.IntervalSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Index.IntervalSeconds },
	},
	{
		key: "log.level", typ: kString, env: "BIDFETCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "telemetry.otlp_endpoint", typ: kString, env: "BIDFETCH_TELEMETRY_OTLP_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPEndpoint },
	},
	{
		key: "telemetry.service_name", typ: kString, env: "BIDFETCH_TELEMETRY_SERVICE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.ServiceName = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.ServiceName },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
