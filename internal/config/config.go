package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers supported by the persistent store adapter.
const (
	StoreDriverMemory   = "memory"
	StoreDriverRedis    = "redis"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

// Config holds runtime configuration values for the grading desk.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	GradingBaseURL          string
	GradingTimeout          time.Duration
	StoreDriver             string
	StoreSQLitePath         string
	DatabaseURL             string
	RedisURL                string
	StoreKeyPrefix          string
	StoreMaxValueBytes      int
	SettingsDebounce        time.Duration
	ProgressInterval        time.Duration
	ToastTTL                time.Duration
	NATSURL                 string
	NATSSubject             string
	DefaultTheme            string
	StreamKeepAlive         time.Duration
	RequireConsistentRubric bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "GEMA Grader Desk")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8090")
	v.SetDefault("grading.base_url", "http://127.0.0.1:8000")
	v.SetDefault("grading.timeout", "10m")
	v.SetDefault("store.driver", StoreDriverSQLite)
	v.SetDefault("store.sqlite_path", "grader.db")
	v.SetDefault("store.key_prefix", "grader:")
	v.SetDefault("store.max_value_bytes", 5*1024*1024)
	v.SetDefault("settings.persist_debounce", "200ms")
	v.SetDefault("workspace.progress_interval", "800ms")
	v.SetDefault("toast.ttl", "3s")
	v.SetDefault("nats.subject", "grader.events")
	v.SetDefault("theme.default", "dark")
	v.SetDefault("stream.keepalive", "30s")
	v.SetDefault("rubric.require_consistent_totals", false)

	durations := map[string]time.Duration{}
	for _, key := range []string{"grading.timeout", "settings.persist_debounce", "workspace.progress_interval", "toast.ttl", "stream.keepalive"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		GradingBaseURL:          strings.TrimRight(v.GetString("grading.base_url"), "/"),
		GradingTimeout:          durations["grading.timeout"],
		StoreDriver:             strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
		StoreSQLitePath:         v.GetString("store.sqlite_path"),
		DatabaseURL:             v.GetString("database.url"),
		RedisURL:                v.GetString("redis.url"),
		StoreKeyPrefix:          v.GetString("store.key_prefix"),
		StoreMaxValueBytes:      v.GetInt("store.max_value_bytes"),
		SettingsDebounce:        durations["settings.persist_debounce"],
		ProgressInterval:        durations["workspace.progress_interval"],
		ToastTTL:                durations["toast.ttl"],
		NATSURL:                 v.GetString("nats.url"),
		NATSSubject:             v.GetString("nats.subject"),
		DefaultTheme:            strings.ToLower(v.GetString("theme.default")),
		StreamKeepAlive:         durations["stream.keepalive"],
		RequireConsistentRubric: v.GetBool("rubric.require_consistent_totals"),
	}

	if cfg.GradingBaseURL == "" {
		return Config{}, fmt.Errorf("grading base url must be provided")
	}

	switch cfg.StoreDriver {
	case StoreDriverMemory, StoreDriverSQLite:
	case StoreDriverRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("redis url must be provided for the redis store")
		}
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url must be provided for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	if cfg.StoreMaxValueBytes <= 0 {
		cfg.StoreMaxValueBytes = 5 * 1024 * 1024
	}

	if cfg.DefaultTheme != "light" {
		cfg.DefaultTheme = "dark"
	}

	return cfg, nil
}
