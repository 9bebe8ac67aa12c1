// Package auth resolves the requesting user.
//
// User is the identity value type the rest of the service consumes. Two
// providers implement resolution: OIDCProvider verifies bearer ID tokens
// against an OpenID Connect issuer, and StaticProvider returns a fixed
// user for local development. The active provider is chosen by
// configuration, never inferred from credentials.
package auth
