package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upb/corbado-session-sdk/jwks"
	"github.com/upb/corbado-session-sdk/observability"
)

// DefaultHTTPTimeout bounds a single JWKS fetch when no HTTP client is supplied.
const DefaultHTTPTimeout = 10 * time.Second

// Config is the construction-time configuration of a Validator.
type Config struct {
	Issuer           string
	ProjectID        string
	JWKSURI          string
	KeyCacheLifespan time.Duration // 0 means jwks.DefaultLifespan
	ClockSkew        time.Duration
	HTTPTimeout      time.Duration // 0 means DefaultHTTPTimeout
}

// KeyResolver resolves verification keys by key id. *jwks.Resolver implements it.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (*jwks.VerificationKey, error)
}

// Validator validates short-session tokens. It is safe for concurrent use.
type Validator struct {
	resolver KeyResolver
	verifier *Verifier
	policy   IssuerPolicy
	logger   *zap.Logger
	metrics  observability.Metrics
	tracer   trace.Tracer

	now        func() time.Time
	httpClient jwks.HTTPClient
}

// Option configures a Validator.
type Option func(*Validator)

// WithKeyResolver replaces the JWKS resolver built from Config.JWKSURI.
func WithKeyResolver(resolver KeyResolver) Option {
	return func(v *Validator) {
		v.resolver = resolver
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics observability.Metrics) Option {
	return func(v *Validator) {
		if metrics != nil {
			v.metrics = metrics
		}
	}
}

// WithTracer sets the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(v *Validator) {
		if tracer != nil {
			v.tracer = tracer
		}
	}
}

// WithClock sets the time source for exp/nbf checks and key cache freshness.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithHTTPClient sets the client used by the built-in JWKS resolver.
func WithHTTPClient(client jwks.HTTPClient) Option {
	return func(v *Validator) {
		v.httpClient = client
	}
}

// NewValidator creates a Validator. Unusable configuration is reported as *ConfigError;
// this is the only place the package returns an error instead of a Result.
func NewValidator(cfg Config, opts ...Option) (*Validator, error) {
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	cfg.JWKSURI = strings.TrimSpace(cfg.JWKSURI)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	v := &Validator{
		policy:  NewIssuerPolicy(IssuerConfig{ConfiguredIssuer: cfg.Issuer, ProjectID: cfg.ProjectID}),
		logger:  zap.NewNop(),
		metrics: observability.NopMetrics{},
		tracer:  observability.Tracer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	verifier, err := NewVerifier(cfg.ClockSkew, v.now)
	if err != nil {
		return nil, &ConfigError{Problems: []string{err.Error()}}
	}
	v.verifier = verifier

	if v.resolver == nil {
		resolver, err := v.newResolver(cfg)
		if err != nil {
			return nil, &ConfigError{Problems: []string{err.Error()}}
		}
		v.resolver = resolver
	}

	return v, nil
}

func (cfg Config) validate() error {
	var problems []string
	if cfg.Issuer == "" {
		problems = append(problems, "issuer is required")
	}
	if cfg.ProjectID == "" {
		problems = append(problems, "project id is required")
	}
	if cfg.JWKSURI == "" {
		problems = append(problems, "JWKS URI is required")
	}
	if cfg.KeyCacheLifespan < 0 {
		problems = append(problems, "key cache lifespan must be non-negative")
	}
	if cfg.ClockSkew < 0 {
		problems = append(problems, "clock skew must be non-negative")
	}
	if cfg.HTTPTimeout < 0 {
		problems = append(problems, "HTTP timeout must be non-negative")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func (v *Validator) newResolver(cfg Config) (*jwks.Resolver, error) {
	lifespan := cfg.KeyCacheLifespan
	if lifespan == 0 {
		lifespan = jwks.DefaultLifespan
	}

	client := v.httpClient
	if client == nil {
		timeout := cfg.HTTPTimeout
		if timeout == 0 {
			timeout = DefaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return jwks.NewResolver(cfg.JWKSURI,
		jwks.WithHTTPClient(client),
		jwks.WithLifespan(lifespan),
		jwks.WithClock(v.now),
		jwks.WithLogger(v.logger),
		jwks.WithMetrics(v.metrics),
		jwks.WithTracer(v.tracer),
	)
}

// ValidateToken validates token and returns the identity it carries. Every failure,
// including a panic in a collaborator, is reported through Result.Err.
func (v *Validator) ValidateToken(ctx context.Context, token string) (result Result) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, "session.ValidateToken")

	defer func() {
		if rec := recover(); rec != nil {
			result = rejected(newValidationError(KindUnexpected, "validation aborted", fmt.Errorf("panic: %v", rec)))
		}
		v.observe(ctx, span, time.Since(start), result)
		span.End()
	}()

	return v.validate(ctx, span, token)
}

func (v *Validator) validate(ctx context.Context, span trace.Span, token string) Result {
	if strings.TrimSpace(token) == "" {
		return rejected(newValidationError(KindEmptyToken, ErrEmptyToken.Message, nil))
	}

	header, err := ParseHeader(token)
	if err != nil {
		return rejected(asValidationError(err))
	}
	if err := checkAlgorithm(header); err != nil {
		return rejected(asValidationError(err))
	}
	span.SetAttributes(attribute.String("session.kid", header.KeyID))

	key, err := v.resolver.Resolve(ctx, header.KeyID)
	if err != nil {
		return rejected(keyResolutionError(header.KeyID, err))
	}

	claims, err := v.verifier.Verify(token, key)
	if err != nil {
		return rejected(asValidationError(err))
	}

	if err := v.policy.Check(claims.Issuer); err != nil {
		return rejected(asValidationError(err))
	}

	return authenticated(claims)
}

func keyResolutionError(kid string, err error) *ValidationError {
	message := "key set unavailable"
	if errors.Is(err, jwks.ErrKeyNotFound) {
		message = fmt.Sprintf("no published key with kid %q", kid)
	}
	return newValidationError(KindKeyResolution, message, err)
}

func asValidationError(err error) *ValidationError {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}
	return newValidationError(KindUnexpected, "unexpected validation failure", err)
}

func (v *Validator) observe(ctx context.Context, span trace.Span, elapsed time.Duration, result Result) {
	labels := observability.ValidationLabels{Result: "authenticated"}
	if result.Rejected() {
		labels = observability.ValidationLabels{Result: "rejected", Kind: result.Kind().String()}
	}

	span.SetAttributes(attribute.String("session.result", labels.Result))
	if result.Err != nil {
		span.SetAttributes(attribute.String("session.error_kind", labels.Kind))
		observability.FinishSpan(span, result.Err)
	} else {
		observability.FinishSpan(span, nil)
	}

	v.metrics.RecordValidation(ctx, labels)
	v.metrics.RecordValidationLatency(ctx, elapsed.Seconds(), labels)

	if result.Authenticated {
		v.logger.Debug("session token validated",
			zap.String("user_id", result.UserID),
			zap.Duration("duration", elapsed))
		return
	}

	fields := []zap.Field{
		zap.String("kind", labels.Kind),
		zap.String("reason", result.Err.Message),
	}
	if result.Err.Err != nil {
		fields = append(fields, zap.NamedError("cause", result.Err.Err))
	}

	switch result.Err.Kind {
	case KindKeyResolution, KindUnexpected:
		v.logger.Warn("session token rejected", fields...)
	default:
		v.logger.Info("session token rejected", fields...)
	}
}
