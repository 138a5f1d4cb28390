package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Environment is "development", "staging", or "production"
	Environment string

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Loopback LoopbackConfig

	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes and scraping)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis configuration for the login rate limiter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds the server-side authentication pipeline configuration
type AuthConfig struct {
	// OIDC issuer and client used to verify incoming ID tokens
	IssuerURL string
	ClientID  string

	// RequireVerification forces cryptographic token verification. It may
	// only be disabled in the development environment.
	RequireVerification bool

	// TablesPath points at the YAML file holding the admin-domain
	// allow-list and the domain-to-organization map. Empty uses built-in
	// defaults.
	TablesPath string

	// WatchTables enables hot reload of the tables file.
	WatchTables bool

	// Login rate limiting (per client IP)
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
}

// LoopbackConfig holds the desktop loopback OAuth flow configuration
type LoopbackConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string

	// ListenAddr and CallbackPath form the registered redirect URI.
	ListenAddr   string
	CallbackPath string

	// Timeout bounds the whole flow; ExchangeTimeout bounds the nested
	// code-for-token POST and must be shorter.
	Timeout         time.Duration
	ExchangeTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool

	TracingEnabled  bool
	TracingEndpoint string
	ServiceName     string
	ServiceVersion  string
	TracingInsecure bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("EVENTOSTEC_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("EVENTOSTEC_HOST", "0.0.0.0"),
			Port:            getEnv("EVENTOSTEC_PORT", "8080"),
			ReadTimeout:     getEnvDuration("EVENTOSTEC_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("EVENTOSTEC_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("EVENTOSTEC_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("EVENTOSTEC_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("EVENTOSTEC_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("EVENTOSTEC_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("EVENTOSTEC_POSTGRES_MAX_CONNS", 20),
			MaxIdleConns: getEnvInt("EVENTOSTEC_POSTGRES_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("EVENTOSTEC_REDIS_ADDR", ""),
			Password: getEnv("EVENTOSTEC_REDIS_PASSWORD", ""),
			DB:       getEnvInt("EVENTOSTEC_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			IssuerURL:           getEnv("EVENTOSTEC_OIDC_ISSUER", "https://accounts.google.com"),
			ClientID:            getEnv("EVENTOSTEC_OIDC_CLIENT_ID", ""),
			RequireVerification: getEnvBool("EVENTOSTEC_REQUIRE_VERIFICATION", true),
			TablesPath:          getEnv("EVENTOSTEC_AUTH_TABLES", ""),
			WatchTables:         getEnvBool("EVENTOSTEC_AUTH_TABLES_WATCH", false),
			RateLimitPerWindow:  getEnvInt("EVENTOSTEC_LOGIN_RATE_LIMIT", 10),
			RateLimitWindow:     getEnvDuration("EVENTOSTEC_LOGIN_RATE_WINDOW", time.Minute),
		},
		Loopback: LoopbackConfig{
			ClientID:        getEnv("EVENTOSTEC_OAUTH_CLIENT_ID", ""),
			ClientSecret:    getEnv("EVENTOSTEC_OAUTH_CLIENT_SECRET", ""),
			AuthURL:         getEnv("EVENTOSTEC_OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
			TokenURL:        getEnv("EVENTOSTEC_OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			Scopes:          getEnvList("EVENTOSTEC_OAUTH_SCOPES", []string{"openid", "email", "profile"}),
			ListenAddr:      getEnv("EVENTOSTEC_OAUTH_LISTEN_ADDR", "127.0.0.1:53682"),
			CallbackPath:    getEnv("EVENTOSTEC_OAUTH_CALLBACK_PATH", "/oauth/callback"),
			Timeout:         getEnvDuration("EVENTOSTEC_OAUTH_TIMEOUT", 3*time.Minute),
			ExchangeTimeout: getEnvDuration("EVENTOSTEC_OAUTH_EXCHANGE_TIMEOUT", 30*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:        getEnv("EVENTOSTEC_LOG_LEVEL", "info"),
			MetricsEnabled:  getEnvBool("EVENTOSTEC_METRICS_ENABLED", true),
			TracingEnabled:  getEnvBool("EVENTOSTEC_TRACING_ENABLED", false),
			TracingEndpoint: getEnv("EVENTOSTEC_TRACING_ENDPOINT", "localhost:4317"),
			ServiceName:     getEnv("EVENTOSTEC_SERVICE_NAME", "eventostec-auth"),
			ServiceVersion:  getEnv("EVENTOSTEC_SERVICE_VERSION", "1.0.0"),
			TracingInsecure: getEnvBool("EVENTOSTEC_TRACING_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	// Token verification may only be turned off in development. Anywhere
	// else an unverified decoder would let a client mint its own identity.
	if !c.Auth.RequireVerification && c.Environment != "development" {
		return fmt.Errorf("token verification cannot be disabled in %s", c.Environment)
	}

	if c.Auth.RequireVerification {
		if c.Auth.IssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required when verification is enabled")
		}
		if c.Auth.ClientID == "" {
			return fmt.Errorf("OIDC client ID is required when verification is enabled")
		}
	}

	if c.Loopback.ExchangeTimeout >= c.Loopback.Timeout {
		return fmt.Errorf("token exchange timeout must be shorter than the flow timeout")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
