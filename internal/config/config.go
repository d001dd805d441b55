// Package config loads gateway settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"calendar-mcp/internal/discovery"
	"calendar-mcp/internal/logger"
	"calendar-mcp/internal/tracing"
)

// EnvPrefix prefixes every environment override: CALMCP_SERVER_PORT and so on.
const EnvPrefix = "CALMCP"

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendGraph  = "graph"
)

// Cache drivers.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Discovery discovery.Config `mapstructure:"discovery"`
	Dispatch  DispatchConfig   `mapstructure:"dispatch"`
	Log       logger.Config    `mapstructure:"log"`
	Calendar  CalendarConfig   `mapstructure:"calendar"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Tracing   tracing.Config   `mapstructure:"tracing"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// TLS reports whether both certificate and key are configured.
func (s ServerConfig) TLS() bool { return s.TLSCertFile != "" && s.TLSKeyFile != "" }

// AuthConfig holds the shared caller secret.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DispatchConfig bounds tool invocations.
type DispatchConfig struct {
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// CalendarConfig selects and configures the calendar backend.
type CalendarConfig struct {
	Backend string       `mapstructure:"backend"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Graph   GraphConfig  `mapstructure:"graph"`
}

// SQLiteConfig locates the event database.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// GraphConfig holds Microsoft Graph application credentials.
type GraphConfig struct {
	TenantID     string        `mapstructure:"tenant_id"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	UserID       string        `mapstructure:"user_id"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// CacheConfig configures the availability cache.
type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

// RedisConfig locates the shared cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"server.port":                  "PORT",
	"server.tls_cert_file":         "TLS_CERT_FILE",
	"server.tls_key_file":          "TLS_KEY_FILE",
	"auth.api_key":                 "API_KEY",
	"calendar.graph.client_id":     "MS_CLIENT_ID",
	"calendar.graph.client_secret": "MS_CLIENT_SECRET",
	"calendar.graph.tenant_id":     "MS_TENANT_ID",
	"calendar.graph.user_id":       "MS_USER_ID",
	"cache.redis.addr":             "REDIS_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	v.SetDefault("auth.api_key", "")

	v.SetDefault("discovery.catalog_interval", discovery.DefaultCatalogInterval.String())
	v.SetDefault("discovery.keepalive_interval", discovery.DefaultKeepaliveInterval.String())
	v.SetDefault("discovery.error_backoff", discovery.DefaultErrorBackoff.String())

	v.SetDefault("dispatch.handler_timeout", "30s")
	v.SetDefault("dispatch.request_timeout", "60s")
	v.SetDefault("dispatch.max_body_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("calendar.backend", BackendMemory)
	v.SetDefault("calendar.sqlite.path", "calendar.db")
	v.SetDefault("calendar.graph.tenant_id", "")
	v.SetDefault("calendar.graph.client_id", "")
	v.SetDefault("calendar.graph.client_secret", "")
	v.SetDefault("calendar.graph.user_id", "")
	v.SetDefault("calendar.graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("calendar.graph.timeout", "15s")

	v.SetDefault("cache.driver", CacheNone)
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "calmcp:availability:")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "calendar-mcp")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads configuration. When path is empty a calendar-mcp.yaml in ./config
// or the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("calendar-mcp")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that would keep the gateway from running.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.APIKey) == "" {
		return errors.New("auth.api_key is required (set API_KEY or CALMCP_AUTH_API_KEY)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file must be set together")
	}
	for name, d := range map[string]time.Duration{
		"discovery.catalog_interval":   c.Discovery.CatalogInterval,
		"discovery.keepalive_interval": c.Discovery.KeepaliveInterval,
		"discovery.error_backoff":      c.Discovery.ErrorBackoff,
		"dispatch.handler_timeout":     c.Dispatch.HandlerTimeout,
		"dispatch.request_timeout":     c.Dispatch.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	// The handler deadline must fire first so the dispatcher, not the router,
	// writes the timeout response.
	if c.Dispatch.RequestTimeout <= c.Dispatch.HandlerTimeout {
		return fmt.Errorf("dispatch.request_timeout (%s) must exceed dispatch.handler_timeout (%s)",
			c.Dispatch.RequestTimeout, c.Dispatch.HandlerTimeout)
	}

	switch c.Calendar.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Calendar.SQLite.Path == "" {
			return errors.New("calendar.sqlite.path is required for the sqlite backend")
		}
	case BackendGraph:
		var missing []string
		for name, val := range map[string]string{
			"MS_CLIENT_ID":     c.Calendar.Graph.ClientID,
			"MS_CLIENT_SECRET": c.Calendar.Graph.ClientSecret,
			"MS_TENANT_ID":     c.Calendar.Graph.TenantID,
			"MS_USER_ID":       c.Calendar.Graph.UserID,
		} {
			if val == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			return fmt.Errorf("missing Microsoft Graph credentials: %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("unknown calendar.backend %q", c.Calendar.Backend)
	}

	switch c.Cache.Driver {
	case CacheNone, "":
	case CacheMemory, CacheRedis:
		if c.Cache.TTL <= 0 {
			return errors.New("cache.ttl must be positive")
		}
		if c.Cache.Driver == CacheRedis && c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache.driver %q", c.Cache.Driver)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return errors.New("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}
