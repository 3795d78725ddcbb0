package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedIssuers(t *testing.T) {
	assert.Equal(t, "https://pro-55.frontendapi.corbado.io", LegacyIssuer("pro-55"))
	assert.Equal(t, "https://pro-55.frontendapi.cloud.corbado.io", CurrentIssuer("pro-55"))
}

func TestIssuerPolicy_Check(t *testing.T) {
	policy := NewIssuerPolicy(IssuerConfig{ConfiguredIssuer: "https://auth.acme.com", ProjectID: "pro-55"})

	tests := []struct {
		name     string
		issuer   string
		wantKind ErrorKind
	}{
		{name: "legacy form", issuer: "https://pro-55.frontendapi.corbado.io"},
		{name: "current form", issuer: "https://pro-55.frontendapi.cloud.corbado.io"},
		{name: "configured issuer", issuer: "https://auth.acme.com"},
		{name: "empty", issuer: "", wantKind: KindEmptyIssuer},
		{name: "unknown", issuer: "https://invalid.com", wantKind: KindIssuerMismatch},
		{name: "other project", issuer: "https://pro-12.frontendapi.corbado.io", wantKind: KindIssuerMismatch},
		{name: "trailing slash", issuer: "https://auth.acme.com/", wantKind: KindIssuerMismatch},
		{name: "different case", issuer: "https://AUTH.acme.com", wantKind: KindIssuerMismatch},
		{name: "http scheme", issuer: "http://pro-55.frontendapi.corbado.io", wantKind: KindIssuerMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.issuer)
			if tt.wantKind == "" {
				assert.NoError(t, err)
				assert.True(t, policy.Accepts(tt.issuer))
				return
			}

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantKind, validationErr.Kind)
			assert.False(t, policy.Accepts(tt.issuer))
		})
	}
}

func TestIssuerPolicy_MismatchMessage(t *testing.T) {
	policy := NewIssuerPolicy(IssuerConfig{ConfiguredIssuer: "https://auth.acme.com", ProjectID: "pro-55"})

	err := policy.Check("https://invalid.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer mismatch (configured: 'https://auth.acme.com', token: 'https://invalid.com')")
}

func TestIssuerPolicy_DerivedFormsWithoutOverride(t *testing.T) {
	// configured issuer equal to the legacy form, as derived from the default frontend API
	policy := NewIssuerPolicy(IssuerConfig{ConfiguredIssuer: LegacyIssuer("pro-12"), ProjectID: "pro-12"})

	assert.True(t, policy.Accepts("https://pro-12.frontendapi.corbado.io"))
	assert.True(t, policy.Accepts("https://pro-12.frontendapi.cloud.corbado.io"))
	assert.False(t, policy.Accepts("https://pro-55.frontendapi.corbado.io"))
}
