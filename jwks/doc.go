// Package jwks resolves token verification keys from a remote JSON Web Key Set.
//
// A Resolver fetches the key set lazily, serves it from memory for a bounded
// lifespan (300 seconds by default) and replaces it as a whole on refresh, so
// readers never observe a partially updated set. A key id missing from a fresh
// set triggers exactly one forced refresh to pick up rotated keys.
//
//	resolver, err := jwks.NewResolver("https://pro-1234.frontendapi.corbado.io/.well-known/jwks")
//	if err != nil {
//	    // misconfiguration
//	}
//	key, err := resolver.Resolve(ctx, kid)
package jwks
