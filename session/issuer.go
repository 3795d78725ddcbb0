package session

import "fmt"

// IssuerConfig is the issuer trust configuration of one project.
type IssuerConfig struct {
	ConfiguredIssuer string
	ProjectID        string
}

// LegacyIssuer returns the issuer used by projects on the original frontend API domain.
func LegacyIssuer(projectID string) string {
	return "https://" + projectID + ".frontendapi.corbado.io"
}

// CurrentIssuer returns the issuer used by projects on the cloud frontend API domain.
func CurrentIssuer(projectID string) string {
	return "https://" + projectID + ".frontendapi.cloud.corbado.io"
}

// IssuerPolicy accepts both derived project issuers plus the configured issuer.
// Comparison is exact.
type IssuerPolicy struct {
	configured string
	accepted   [2]string
}

// NewIssuerPolicy builds the policy for cfg.
func NewIssuerPolicy(cfg IssuerConfig) IssuerPolicy {
	return IssuerPolicy{
		configured: cfg.ConfiguredIssuer,
		accepted:   [2]string{LegacyIssuer(cfg.ProjectID), CurrentIssuer(cfg.ProjectID)},
	}
}

// Check returns nil when issuer is trusted, otherwise a *ValidationError of kind
// KindEmptyIssuer or KindIssuerMismatch.
func (p IssuerPolicy) Check(issuer string) error {
	if issuer == "" {
		return newValidationError(KindEmptyIssuer, "token issuer is empty", nil)
	}

	for _, accepted := range p.accepted {
		if issuer == accepted {
			return nil
		}
	}
	if issuer == p.configured {
		return nil
	}

	return newValidationError(KindIssuerMismatch,
		fmt.Sprintf("issuer mismatch (configured: '%s', token: '%s')", p.configured, issuer), nil)
}

// Accepts reports whether issuer is trusted
func (p IssuerPolicy) Accepts(issuer string) bool {
	return p.Check(issuer) == nil
}
