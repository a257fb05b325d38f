// Package identity authenticates API callers. Users sign in at an external
// OpenID Connect provider; requests carry its ID token as a bearer token,
// which is verified against the provider's published keys. The verified
// subject is the user id used throughout the service.
package identity
