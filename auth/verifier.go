// Package auth defines the pluggable credential check a Server uses while
// processing a login_request. SoupBinTCP authentication is explicitly out
// of scope beyond this predicate (SPEC_FULL.md §1).
package auth

// Verifier reports whether username/password are acceptable. It is called
// once per login_request, synchronously, from the connection's read loop.
type Verifier func(username, password string) bool

// AllowAll is the default Verifier: it accepts every set of credentials.
// Mirrors the reference implementation's AnonymousLoginVerifier.
func AllowAll(username, password string) bool { return true }
