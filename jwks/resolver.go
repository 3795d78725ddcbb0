package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upb/corbado-session-sdk/apierror"
	"github.com/upb/corbado-session-sdk/observability"
)

// DefaultLifespan is how long a fetched key set is served before the next resolution refetches it.
const DefaultLifespan = 300 * time.Second

// DefaultRefreshCooldown is the minimum interval between refreshes forced by unknown key ids.
const DefaultRefreshCooldown = 30 * time.Second

// maxKeySetSize caps the JWKS response body (1 MiB).
const maxKeySetSize = 1 << 20

// fetch reasons, used as log fields and metric labels
const (
	reasonInitial    = "initial"
	reasonExpired    = "expired"
	reasonUnknownKID = "unknown_kid"
	reasonManual     = "manual"
)

// HTTPClient abstracts the HTTP client used for fetching the key set.
// The standard *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CacheStats describes the cached key set.
type CacheStats struct {
	Cached    bool
	KeyCount  int
	FetchedAt time.Time
	ExpiresAt time.Time
	Fetches   int64
}

// Resolver maps key ids to verification keys, fetching and caching the key set from a JWKS URL.
//
// Resolver is safe for concurrent use. Lookups only take a read lock; fetches are serialized
// so that concurrent callers observing a stale cache trigger a single request.
type Resolver struct {
	jwksURL  string
	client   HTTPClient
	lifespan time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  observability.Metrics
	tracer   trace.Tracer

	mu        sync.RWMutex
	keySet    *KeySet
	fetchedAt time.Time

	refreshMu  sync.Mutex
	cooldown   time.Duration
	lastForced time.Time // guarded by refreshMu
	fetches    atomic.Int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used to fetch the key set. Timeouts belong on this client.
func WithHTTPClient(client HTTPClient) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithLifespan sets how long a fetched key set is served from memory.
func WithLifespan(lifespan time.Duration) Option {
	return func(r *Resolver) {
		r.lifespan = lifespan
	}
}

// WithRefreshCooldown sets the minimum interval between refreshes triggered by an unknown kid.
// Within the cooldown an unknown kid is rejected from the cached set. Zero disables it.
func WithRefreshCooldown(cooldown time.Duration) Option {
	return func(r *Resolver) {
		r.cooldown = cooldown
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics observability.Metrics) Option {
	return func(r *Resolver) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithTracer sets the tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Resolver) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithClock overrides the time source used for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a resolver for the key set published at jwksURL.
func NewResolver(jwksURL string, opts ...Option) (*Resolver, error) {
	jwksURL = strings.TrimSpace(jwksURL)
	if jwksURL == "" {
		return nil, errors.New("jwks: URL is required")
	}

	r := &Resolver{
		jwksURL:  jwksURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		lifespan: DefaultLifespan,
		cooldown: DefaultRefreshCooldown,
		now:      time.Now,
		logger:   zap.NewNop(),
		metrics:  observability.NopMetrics{},
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.lifespan < 0 {
		return nil, fmt.Errorf("jwks: lifespan must be non-negative, got %s", r.lifespan)
	}
	if r.cooldown < 0 {
		return nil, fmt.Errorf("jwks: refresh cooldown must be non-negative, got %s", r.cooldown)
	}

	return r, nil
}

// URL returns the JWKS endpoint
func (r *Resolver) URL() string {
	return r.jwksURL
}

// Resolve returns the verification key for kid. A fresh cache that contains kid is answered
// without network access; a stale or empty cache is refetched; a fresh cache that lacks kid is
// refetched once before giving up, at most once per refresh cooldown.
func (r *Resolver) Resolve(ctx context.Context, kid string) (*VerificationKey, error) {
	if kid == "" {
		return nil, &ResolutionError{KeyID: kid, Err: ErrKeyNotFound}
	}

	r.mu.RLock()
	current, fresh := r.keySet, r.freshLocked()
	r.mu.RUnlock()

	if fresh {
		if key, ok := current.Lookup(kid); ok {
			return key, nil
		}
		// fresh set without kid: the issuer may have rotated keys
		return r.resolveAfterRefresh(ctx, kid, current, reasonUnknownKID)
	}

	reason := reasonExpired
	if current == nil {
		reason = reasonInitial
	}
	return r.resolveAfterRefresh(ctx, kid, current, reason)
}

func (r *Resolver) resolveAfterRefresh(ctx context.Context, kid string, seen *KeySet, reason string) (*VerificationKey, error) {
	set, err := r.refresh(ctx, seen, reason)
	if err != nil {
		return nil, &ResolutionError{KeyID: kid, Err: err}
	}

	key, ok := set.Lookup(kid)
	if !ok {
		return nil, &ResolutionError{KeyID: kid, Err: ErrKeyNotFound}
	}
	return key, nil
}

// Refresh fetches the key set and replaces the cached one.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.mu.RLock()
	seen := r.keySet
	r.mu.RUnlock()

	_, err := r.refresh(ctx, seen, reasonManual)
	return err
}

// refresh fetches and swaps in a new key set unless another caller already replaced seen
// with a fresh set while this one waited for the refresh lock.
func (r *Resolver) refresh(ctx context.Context, seen *KeySet, reason string) (*KeySet, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	r.mu.RLock()
	current, fresh := r.keySet, r.freshLocked()
	r.mu.RUnlock()
	if current != nil && current != seen && fresh {
		return current, nil
	}

	if reason == reasonUnknownKID {
		now := r.now()
		if !r.lastForced.IsZero() && now.Sub(r.lastForced) < r.cooldown {
			r.logger.Debug("jwks refresh skipped, cooldown active",
				zap.String("url", r.jwksURL),
				zap.Duration("cooldown", r.cooldown))
			return current, nil
		}
		r.lastForced = now
	}

	set, err := r.fetch(ctx, reason)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.keySet = set
	r.fetchedAt = r.now()
	r.mu.Unlock()

	return set, nil
}

// freshLocked reports whether the cached set may be served. Caller must hold mu.
func (r *Resolver) freshLocked() bool {
	return r.keySet != nil && r.now().Sub(r.fetchedAt) < r.lifespan
}

func (r *Resolver) fetch(ctx context.Context, reason string) (_ *KeySet, err error) {
	ctx, span := r.tracer.Start(ctx, "jwks.Fetch", trace.WithAttributes(
		attribute.String("jwks.url", r.jwksURL),
		attribute.String("jwks.reason", reason),
	))
	start := time.Now()
	r.fetches.Add(1)

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			r.logger.Warn("jwks fetch failed",
				zap.String("url", r.jwksURL),
				zap.String("reason", reason),
				zap.Error(err))
		}
		r.metrics.RecordKeySetFetch(ctx, time.Since(start).Seconds(), observability.FetchLabels{
			Reason:  reason,
			Outcome: outcome,
		})
		observability.FinishSpan(span, err)
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, apierror.FromResponse(resp.StatusCode, body))
	}

	set, err := ParseKeySet(body)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("jwks.key_count", set.Len()))
	r.logger.Debug("jwks fetched",
		zap.String("url", r.jwksURL),
		zap.String("reason", reason),
		zap.Strings("kids", set.KeyIDs()),
		zap.Duration("duration", time.Since(start)))

	return set, nil
}

// Invalidate drops the cached key set; the next resolution fetches a new one.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keySet = nil
	r.fetchedAt = time.Time{}
}

// FetchCount returns the number of fetches attempted so far.
func (r *Resolver) FetchCount() int64 {
	return r.fetches.Load()
}

// Stats returns cache statistics
func (r *Resolver) Stats() CacheStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := CacheStats{
		Cached:  r.keySet != nil,
		Fetches: r.fetches.Load(),
	}
	if r.keySet != nil {
		stats.KeyCount = r.keySet.Len()
		stats.FetchedAt = r.fetchedAt
		stats.ExpiresAt = r.fetchedAt.Add(r.lifespan)
	}
	return stats
}
