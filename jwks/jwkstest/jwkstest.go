// Package jwkstest provides an in-process JWKS endpoint and signing keys for tests.
package jwkstest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// Key is an RSA signing key published under KeyID.
type Key struct {
	KeyID   string
	Private *rsa.PrivateKey
}

// GenerateKey creates a 2048 bit RSA key.
func GenerateKey(t testing.TB, kid string) Key {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return Key{KeyID: kid, Private: privateKey}
}

// Sign issues an RS256 token with the key id header set.
func (k Key) Sign(t testing.TB, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.KeyID

	signed, err := token.SignedString(k.Private)
	require.NoError(t, err)
	return signed
}

// Document renders the public halves of keys as a JWKS document.
func Document(t testing.TB, keys ...Key) []byte {
	t.Helper()
	set := jwk.NewSet()
	for _, k := range keys {
		key, err := jwk.FromRaw(&k.Private.PublicKey)
		require.NoError(t, err)
		require.NoError(t, key.Set(jwk.KeyIDKey, k.KeyID))
		require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
		require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))
		require.NoError(t, set.AddKey(key))
	}

	doc, err := json.Marshal(set)
	require.NoError(t, err)
	return doc
}

// Server is a JWKS endpoint that counts requests.
type Server struct {
	*httptest.Server

	t      testing.TB
	mu     sync.Mutex
	status int
	body   []byte
	delay  time.Duration
	hits   atomic.Int64
}

// NewServer starts a server publishing keys. It is closed when the test ends.
func NewServer(t testing.TB, keys ...Key) *Server {
	t.Helper()
	s := &Server{t: t, status: http.StatusOK, body: Document(t, keys...)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, _ *http.Request) {
	s.hits.Add(1)

	s.mu.Lock()
	status, body, delay := s.status, s.body, s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// SetKeys replaces the published keys and resets the status to 200.
func (s *Server) SetKeys(keys ...Key) {
	doc := Document(s.t, keys...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = http.StatusOK
	s.body = doc
}

// SetResponse makes the server answer with a fixed status and body.
func (s *Server) SetResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = []byte(body)
}

// SetDelay delays every response by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Hits returns the number of requests served.
func (s *Server) Hits() int64 {
	return s.hits.Load()
}
