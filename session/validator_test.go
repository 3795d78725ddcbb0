package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/corbado-session-sdk/jwks"
	"github.com/upb/corbado-session-sdk/jwks/jwkstest"
	"github.com/upb/corbado-session-sdk/observability"
)

const (
	testKID       = "kid123"
	testProjectID = "pro-55"
	testIssuer    = "https://auth.acme.com"
)

func validClaims(issuer string, now time.Time) *sessionClaims {
	return &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "12345",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Name: "Test Name",
	}
}

type testEnv struct {
	key       jwkstest.Key
	server    *jwkstest.Server
	validator *Validator
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	key := jwkstest.GenerateKey(t, testKID)
	server := jwkstest.NewServer(t, key)

	validator, err := NewValidator(Config{
		Issuer:    testIssuer,
		ProjectID: testProjectID,
		JWKSURI:   server.URL,
	}, opts...)
	require.NoError(t, err)

	return &testEnv{key: key, server: server, validator: validator}
}

func TestNewValidator_ConfigErrors(t *testing.T) {
	valid := Config{Issuer: testIssuer, ProjectID: testProjectID, JWKSURI: "https://example.com/jwks"}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "empty issuer", modify: func(c *Config) { c.Issuer = "" }},
		{name: "whitespace issuer", modify: func(c *Config) { c.Issuer = "  " }},
		{name: "empty project id", modify: func(c *Config) { c.ProjectID = "" }},
		{name: "empty jwks uri", modify: func(c *Config) { c.JWKSURI = "" }},
		{name: "negative lifespan", modify: func(c *Config) { c.KeyCacheLifespan = -time.Second }},
		{name: "negative skew", modify: func(c *Config) { c.ClockSkew = -time.Second }},
		{name: "negative timeout", modify: func(c *Config) { c.HTTPTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)

			v, err := NewValidator(cfg)
			assert.Nil(t, v)
			assert.True(t, IsConfigError(err))
		})
	}

	t.Run("valid", func(t *testing.T) {
		v, err := NewValidator(valid)
		require.NoError(t, err)
		assert.NotNil(t, v)
	})
}

func TestValidateToken_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	result := env.validator.ValidateToken(context.Background(), env.key.Sign(t, validClaims(testIssuer, time.Now())))

	require.Nil(t, result.Err)
	assert.True(t, result.Authenticated)
	assert.False(t, result.Rejected())
	assert.Equal(t, "12345", result.UserID)
	assert.Equal(t, "Test Name", result.FullName)

	user, ok := result.User()
	require.True(t, ok)
	assert.Equal(t, User{ID: "12345", FullName: "Test Name"}, user)
}

func TestValidateToken_DerivedIssuers(t *testing.T) {
	env := newTestEnv(t)

	for _, issuer := range []string{
		"https://pro-55.frontendapi.corbado.io",
		"https://pro-55.frontendapi.cloud.corbado.io",
	} {
		t.Run(issuer, func(t *testing.T) {
			result := env.validator.ValidateToken(context.Background(), env.key.Sign(t, validClaims(issuer, time.Now())))
			assert.True(t, result.Authenticated, "unexpected rejection: %v", result.Err)
		})
	}
}

func TestValidateToken_Rejections(t *testing.T) {
	env := newTestEnv(t)
	stranger := jwkstest.GenerateKey(t, testKID)
	now := time.Now()

	hmacToken := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(testIssuer, now))
		token.Header["kid"] = testKID
		signed, err := token.SignedString([]byte("shared-secret"))
		require.NoError(t, err)
		return signed
	}
	noneToken := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(testIssuer, now))
		token.Header["kid"] = testKID
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		return signed
	}
	withClaims := func(modify func(*sessionClaims)) string {
		claims := validClaims(testIssuer, now)
		modify(claims)
		return env.key.Sign(t, claims)
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: ErrEmptyToken},
		{name: "whitespace", token: "   ", wantErr: ErrEmptyToken},
		{name: "garbage", token: "not-a-token", wantErr: ErrMalformedToken},
		{name: "hmac", token: hmacToken(), wantErr: ErrUnsupportedAlgorithm},
		{name: "none", token: noneToken(), wantErr: ErrUnsupportedAlgorithm},
		{name: "signed by unrelated key", token: stranger.Sign(t, validClaims(testIssuer, now)), wantErr: ErrSignatureInvalid},
		{name: "expired", token: withClaims(func(c *sessionClaims) {
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		}), wantErr: ErrTokenExpired},
		{name: "not yet valid", token: withClaims(func(c *sessionClaims) {
			c.NotBefore = jwt.NewNumericDate(now.Add(time.Hour))
			c.ExpiresAt = jwt.NewNumericDate(now.Add(2 * time.Hour))
		}), wantErr: ErrTokenNotYetValid},
		{name: "empty issuer", token: withClaims(func(c *sessionClaims) { c.Issuer = "" }), wantErr: ErrEmptyIssuer},
		{name: "issuer mismatch", token: withClaims(func(c *sessionClaims) { c.Issuer = "https://invalid.com" }), wantErr: ErrIssuerMismatch},
		{name: "other project", token: withClaims(func(c *sessionClaims) {
			c.Issuer = "https://pro-12.frontendapi.corbado.io"
		}), wantErr: ErrIssuerMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := env.validator.ValidateToken(context.Background(), tt.token)

			assert.False(t, result.Authenticated)
			assert.True(t, result.Rejected())
			require.NotNil(t, result.Err)
			assert.ErrorIs(t, result.Err, tt.wantErr)
			assert.Empty(t, result.UserID)

			_, ok := result.User()
			assert.False(t, ok)
		})
	}
}

func TestValidateToken_MismatchDetail(t *testing.T) {
	env := newTestEnv(t)

	result := env.validator.ValidateToken(context.Background(), env.key.Sign(t, validClaims("https://invalid.com", time.Now())))

	require.NotNil(t, result.Err)
	assert.Equal(t, KindIssuerMismatch, result.Kind())
	assert.Equal(t, "issuer mismatch (configured: 'https://auth.acme.com', token: 'https://invalid.com')", result.Err.Message)
}

func TestValidateToken_NoFetchBeforeAlgorithmAndShape(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "a.b", "not-a-token"} {
		env.validator.ValidateToken(context.Background(), token)
	}

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(testIssuer, time.Now()))
	hmac.Header["kid"] = testKID
	signed, err := hmac.SignedString([]byte("secret"))
	require.NoError(t, err)
	env.validator.ValidateToken(context.Background(), signed)

	assert.Zero(t, env.server.Hits())
}

func TestValidateToken_CachesKeys(t *testing.T) {
	env := newTestEnv(t)
	token := env.key.Sign(t, validClaims(testIssuer, time.Now()))

	first := env.validator.ValidateToken(context.Background(), token)
	require.True(t, first.Authenticated)
	assert.EqualValues(t, 1, env.server.Hits())

	for i := 0; i < 3; i++ {
		result := env.validator.ValidateToken(context.Background(), token)
		assert.True(t, result.Authenticated)
		assert.EqualValues(t, 1, env.server.Hits())
	}
}

func TestValidateToken_UnknownKid(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	require.True(t, env.validator.ValidateToken(context.Background(), env.key.Sign(t, validClaims(testIssuer, now))).Authenticated)
	require.EqualValues(t, 1, env.server.Hits())

	rotated := jwkstest.GenerateKey(t, "kid999")
	result := env.validator.ValidateToken(context.Background(), rotated.Sign(t, validClaims(testIssuer, now)))

	assert.ErrorIs(t, result.Err, ErrKeyResolution)
	assert.ErrorIs(t, result.Err, jwks.ErrKeyNotFound)
	// initial fetch plus exactly one forced refresh
	assert.EqualValues(t, 2, env.server.Hits())
}

func TestValidateToken_UnknownKidOnColdCache(t *testing.T) {
	env := newTestEnv(t)
	rotated := jwkstest.GenerateKey(t, "kid999")

	result := env.validator.ValidateToken(context.Background(), rotated.Sign(t, validClaims(testIssuer, time.Now())))

	assert.ErrorIs(t, result.Err, jwks.ErrKeyNotFound)
	// the initial fetch counts as the refresh
	assert.EqualValues(t, 1, env.server.Hits())
}

func TestValidateToken_KeyRotation(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	require.True(t, env.validator.ValidateToken(context.Background(), env.key.Sign(t, validClaims(testIssuer, now))).Authenticated)

	rotated := jwkstest.GenerateKey(t, "kid456")
	env.server.SetKeys(env.key, rotated)

	result := env.validator.ValidateToken(context.Background(), rotated.Sign(t, validClaims(testIssuer, now)))
	assert.True(t, result.Authenticated, "unexpected rejection: %v", result.Err)
	assert.EqualValues(t, 2, env.server.Hits())
}

func TestValidateToken_EndpointUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.server.SetResponse(http.StatusServiceUnavailable, "")

	result := env.validator.ValidateToken(context.Background(), env.key.Sign(t, validClaims(testIssuer, time.Now())))

	assert.ErrorIs(t, result.Err, ErrKeyResolution)
	assert.ErrorIs(t, result.Err, jwks.ErrFetchFailed)
}

type MockKeyResolver struct {
	mock.Mock
}

func (m *MockKeyResolver) Resolve(ctx context.Context, kid string) (*jwks.VerificationKey, error) {
	args := m.Called(ctx, kid)
	if key := args.Get(0); key != nil {
		return key.(*jwks.VerificationKey), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestValidateToken_CustomResolver(t *testing.T) {
	key := jwkstest.GenerateKey(t, testKID)
	resolver := new(MockKeyResolver)
	resolver.On("Resolve", mock.Anything, testKID).Return(verificationKey(key), nil).Once()

	v, err := NewValidator(Config{Issuer: testIssuer, ProjectID: testProjectID, JWKSURI: "https://unused.example.com"},
		WithKeyResolver(resolver))
	require.NoError(t, err)

	result := v.ValidateToken(context.Background(), key.Sign(t, validClaims(testIssuer, time.Now())))
	assert.True(t, result.Authenticated)
	resolver.AssertExpectations(t)
}

type panickingResolver struct{}

func (panickingResolver) Resolve(context.Context, string) (*jwks.VerificationKey, error) {
	panic("boom")
}

func TestValidateToken_RecoversPanics(t *testing.T) {
	key := jwkstest.GenerateKey(t, testKID)
	v, err := NewValidator(Config{Issuer: testIssuer, ProjectID: testProjectID, JWKSURI: "https://unused.example.com"},
		WithKeyResolver(panickingResolver{}))
	require.NoError(t, err)

	var result Result
	assert.NotPanics(t, func() {
		result = v.ValidateToken(context.Background(), key.Sign(t, validClaims(testIssuer, time.Now())))
	})
	assert.Equal(t, KindUnexpected, result.Kind())
	assert.ErrorIs(t, result.Err, ErrUnexpected)
}

func TestValidateToken_UnexpectedResolverError(t *testing.T) {
	key := jwkstest.GenerateKey(t, testKID)
	resolver := new(MockKeyResolver)
	resolver.On("Resolve", mock.Anything, testKID).Return(nil, errors.New("vault sealed"))

	v, err := NewValidator(Config{Issuer: testIssuer, ProjectID: testProjectID, JWKSURI: "https://unused.example.com"},
		WithKeyResolver(resolver))
	require.NoError(t, err)

	result := v.ValidateToken(context.Background(), key.Sign(t, validClaims(testIssuer, time.Now())))
	assert.Equal(t, KindKeyResolution, result.Kind())
	assert.EqualError(t, errors.Unwrap(result.Err), "vault sealed")
}

func TestValidateToken_Clock(t *testing.T) {
	key := jwkstest.GenerateKey(t, testKID)
	server := jwkstest.NewServer(t, key)
	issued := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	now := issued.Add(2 * time.Hour)

	v, err := NewValidator(Config{Issuer: testIssuer, ProjectID: testProjectID, JWKSURI: server.URL},
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	result := v.ValidateToken(context.Background(), key.Sign(t, validClaims(testIssuer, issued)))
	assert.ErrorIs(t, result.Err, ErrTokenExpired)
}

func TestValidateToken_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	token := env.key.Sign(t, validClaims(testIssuer, time.Now()))

	var wg sync.WaitGroup
	results := make(chan Result, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- env.validator.ValidateToken(context.Background(), token)
		}()
	}
	wg.Wait()
	close(results)

	for result := range results {
		assert.True(t, result.Authenticated)
	}
	assert.EqualValues(t, 1, env.server.Hits())
}

func TestValidateToken_Observability(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	metrics := observability.NewPrometheusMetrics(reg)
	core, logs := observer.New(zap.DebugLevel)

	env := newTestEnv(t,
		WithTracer(provider.Tracer("test")),
		WithMetrics(metrics),
		WithLogger(zap.New(core)),
	)
	token := env.key.Sign(t, validClaims(testIssuer, time.Now()))

	env.validator.ValidateToken(context.Background(), token)
	env.validator.ValidateToken(context.Background(), "")

	spans := map[string][]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		spans[span.Name()] = append(spans[span.Name()], span)
	}
	require.Len(t, spans["session.ValidateToken"], 2)
	require.Len(t, spans["jwks.Fetch"], 1)
	assert.Contains(t, spans["session.ValidateToken"][0].Attributes(), attribute.String("session.result", "authenticated"))
	assert.Contains(t, spans["session.ValidateToken"][1].Attributes(), attribute.String("session.error_kind", "empty_token"))

	// one series per result/kind pair
	validations, err := testutil.GatherAndCount(reg, "corbado_session_validations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, validations)

	validated := logs.FilterMessage("session token validated").All()
	require.Len(t, validated, 1)
	assert.Equal(t, "12345", validated[0].ContextMap()["user_id"])

	rejections := logs.FilterMessage("session token rejected").All()
	require.Len(t, rejections, 1)
	assert.Equal(t, "empty_token", rejections[0].ContextMap()["kind"])
	for _, entry := range logs.All() {
		for _, value := range entry.ContextMap() {
			assert.NotEqual(t, token, value, "token must never be logged")
		}
	}
}
