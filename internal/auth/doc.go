// Package auth provides credential verification for presence-gateway.
//
// # Authentication Method
//
// Clients authenticate with JWT tokens signed with HS256 using the configured
// jwt_secret. Tokens are issued by the external auth service; this package
// only verifies them.
//
// # Error Taxonomy
//
// Verification failures are classified into three sentinel errors:
//
//   - ErrMissingToken: no credential was supplied
//   - ErrExpiredToken: the credential is past its expiry
//   - ErrInvalidToken: the signature or claims are bad (wraps the cause)
//
// All three reject the handshake before the connection becomes usable.
//
// # Usage
//
// Create a verifier once at startup with the configured secret:
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
//
// Verify a handshake credential:
//
//	userID, err := verifier.Verify(token)
//
// Protect a REST endpoint:
//
//	mux.Handle("/api/presence", auth.HTTPAuthMiddleware(verifier)(handler))
package auth
