// Package session validates Corbado short-session tokens.
//
// A Validator parses the token header, resolves the signing key from the project's JWKS
// endpoint, verifies the RS256 signature and the exp/nbf claims, and checks the issuer
// against the project's trusted issuers. The outcome is always a Result:
//
//	validator, err := session.NewValidator(session.Config{
//	    Issuer:    "https://auth.acme.com",
//	    ProjectID: "pro-55",
//	    JWKSURI:   "https://pro-55.frontendapi.cloud.corbado.io/.well-known/jwks",
//	})
//	if err != nil {
//	    // misconfiguration, fail at startup
//	}
//
//	result := validator.ValidateToken(ctx, token)
//	if user, ok := result.User(); ok {
//	    // user.ID, user.FullName
//	}
//
// Rejections carry a stable ErrorKind and can be matched with errors.Is against the
// package's sentinel errors, e.g. errors.Is(result.Err, session.ErrTokenExpired).
package session
