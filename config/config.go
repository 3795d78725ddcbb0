package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/corbado-session-sdk/jwks"
	"github.com/upb/corbado-session-sdk/session"
	"github.com/upb/corbado-session-sdk/utils"
)

const (
	// DefaultBackendAPI is the Corbado backend API base URL
	DefaultBackendAPI = "https://backendapi.cloud.corbado.io/v2"

	// DefaultShortSessionCookieName is the cookie the Corbado frontend stores the session token in
	DefaultShortSessionCookieName = "cbo_short_session"

	backendAPIVersion = "/v2"
	jwksPath          = "/.well-known/jwks"
)

// Config represents the complete application configuration
type Config struct {
	Corbado       CorbadoConfig
	Session       SessionConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required"`
}

// CorbadoConfig holds the Corbado project settings
type CorbadoConfig struct {
	ProjectID              string `validate:"required,startswith=pro-"`
	APISecret              string `validate:"omitempty,startswith=corbado1_"`
	BackendAPI             string `validate:"required"`
	FrontendAPI            string `validate:"required,https_origin"`
	CNAME                  string
	Issuer                 string `validate:"required"`
	JWKSURI                string `validate:"required,url"`
	ShortSessionCookieName string `validate:"required"`
}

// SessionConfig holds session validation tuning. Cache TTL and HTTP timeout must be positive;
// a zero refresh cooldown lets every unknown kid refetch the key set.
type SessionConfig struct {
	JWKSCacheTTL        time.Duration `validate:"gt=0"`
	JWKSRefreshCooldown time.Duration `validate:"gte=0"`
	ClockSkew           time.Duration `validate:"gte=0"`
	HTTPTimeout         time.Duration `validate:"gt=0"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required,oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=json text console"`
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	projectID := strings.TrimSpace(getEnv("CORBADO_PROJECT_ID", ""))
	frontendAPI := getEnv("CORBADO_FRONTEND_API", session.LegacyIssuer(projectID))
	cname := strings.TrimSpace(getEnv("CORBADO_CNAME", ""))

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Corbado: CorbadoConfig{
			ProjectID:              projectID,
			APISecret:              getEnv("CORBADO_API_SECRET", ""),
			BackendAPI:             NormalizeBackendAPI(getEnv("CORBADO_BACKEND_API", DefaultBackendAPI)),
			FrontendAPI:            frontendAPI,
			CNAME:                  cname,
			Issuer:                 getEnv("CORBADO_ISSUER", DeriveIssuer(cname, frontendAPI)),
			JWKSURI:                getEnv("CORBADO_JWKS_URI", frontendAPI+jwksPath),
			ShortSessionCookieName: getEnv("CORBADO_SHORT_SESSION_COOKIE_NAME", DefaultShortSessionCookieName),
		},
		Session: SessionConfig{
			JWKSCacheTTL:        getEnvAsDuration("SESSION_JWKS_CACHE_TTL", jwks.DefaultLifespan),
			JWKSRefreshCooldown: getEnvAsDuration("SESSION_JWKS_REFRESH_COOLDOWN", jwks.DefaultRefreshCooldown),
			ClockSkew:           getEnvAsDuration("SESSION_CLOCK_SKEW", 0),
			HTTPTimeout:         getEnvAsDuration("SESSION_HTTP_TIMEOUT", session.DefaultHTTPTimeout),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "json")),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct constraints and the Corbado URL rules
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	if err := utils.ValidateHTTPSOrigin(strings.TrimSuffix(c.Corbado.BackendAPI, backendAPIVersion)); err != nil {
		return fmt.Errorf("invalid backend API: %w", err)
	}

	if c.Corbado.CNAME != "" {
		if err := utils.ValidateHTTPSOrigin(DeriveIssuer(c.Corbado.CNAME, c.Corbado.FrontendAPI)); err != nil {
			return fmt.Errorf("invalid CNAME: %w", err)
		}
	}

	return nil
}

// NormalizeBackendAPI appends the API version to the backend base URL when missing.
func NormalizeBackendAPI(backendAPI string) string {
	backendAPI = strings.TrimSpace(backendAPI)
	if strings.HasSuffix(backendAPI, backendAPIVersion) {
		return backendAPI
	}
	return strings.TrimRight(backendAPI, "/") + backendAPIVersion
}

// DeriveIssuer returns the issuer tokens are expected to carry: the CNAME (https
// prefixed when given as a bare host) when set, the frontend API otherwise.
func DeriveIssuer(cname, frontendAPI string) string {
	cname = strings.TrimSpace(cname)
	if cname == "" {
		return frontendAPI
	}
	if strings.HasPrefix(cname, "https://") {
		return cname
	}
	return "https://" + cname
}

// SessionValidatorConfig returns the session.Config for this project.
func (c *Config) SessionValidatorConfig() session.Config {
	return session.Config{
		Issuer:           c.Corbado.Issuer,
		ProjectID:        c.Corbado.ProjectID,
		JWKSURI:          c.Corbado.JWKSURI,
		KeyCacheLifespan: c.Session.JWKSCacheTTL,
		ClockSkew:        c.Session.ClockSkew,
		HTTPTimeout:      c.Session.HTTPTimeout,
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
