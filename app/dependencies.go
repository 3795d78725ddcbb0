package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/upb/corbado-session-sdk/config"
	"github.com/upb/corbado-session-sdk/jwks"
	"github.com/upb/corbado-session-sdk/middleware"
	"github.com/upb/corbado-session-sdk/observability"
	"github.com/upb/corbado-session-sdk/session"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  observability.Metrics

	// Session validation
	KeyResolver       *jwks.Resolver
	Validator         *session.Validator
	SessionMiddleware *middleware.SessionMiddleware
}

// Option customizes dependency construction
type Option func(*options)

type options struct {
	httpClient jwks.HTTPClient
}

// WithHTTPClient sets the client used to fetch the JWKS
func WithHTTPClient(client jwks.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NopMetrics{},
	}

	deps.initMetrics(cfg)

	if err := deps.initSession(cfg, o); err != nil {
		return nil, fmt.Errorf("failed to initialize session validation: %w", err)
	}

	// Warm the key cache; a failure is not fatal, the next validation retries.
	if err := deps.KeyResolver.Refresh(ctx); err != nil {
		logger.Warn("initial JWKS fetch failed",
			zap.String("jwks_uri", cfg.Corbado.JWKSURI),
			zap.Error(err))
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("project_id", cfg.Corbado.ProjectID),
		zap.String("issuer", cfg.Corbado.Issuer))
	return deps, nil
}

// initMetrics creates a dedicated registry so tests and multiple instances never collide
func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		return
	}

	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewPrometheusMetrics(d.Registry)
}

// initSession builds the key resolver, the validator on top of it and the HTTP middleware
func (d *Dependencies) initSession(cfg *config.Config, o *options) error {
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Session.HTTPTimeout}
	}

	resolver, err := jwks.NewResolver(cfg.Corbado.JWKSURI,
		jwks.WithHTTPClient(client),
		jwks.WithLifespan(cfg.Session.JWKSCacheTTL),
		jwks.WithRefreshCooldown(cfg.Session.JWKSRefreshCooldown),
		jwks.WithLogger(d.Logger.Named("jwks")),
		jwks.WithMetrics(d.Metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create key resolver: %w", err)
	}
	d.KeyResolver = resolver

	validator, err := session.NewValidator(cfg.SessionValidatorConfig(),
		session.WithKeyResolver(resolver),
		session.WithLogger(d.Logger.Named("session")),
		session.WithMetrics(d.Metrics),
	)
	if err != nil {
		return err
	}
	d.Validator = validator

	d.SessionMiddleware = middleware.NewSessionMiddleware(validator, cfg.Corbado.ShortSessionCookieName, d.Logger)
	return nil
}
