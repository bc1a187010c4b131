// Package auth implements stateless token-based authentication: bcrypt
// credential verification, HMAC-SHA-256 JWT issuance and validation, and the
// HTTP surface that exposes them.
//
// Sessions:
//   - A login exchanges an identifier/password pair for a signed access token.
//     All session state lives inside the token claims (sub, role, iss, iat,
//     nbf, exp, jti); the server keeps no per-session record.
//   - Refresh rotates tokens: a currently valid token yields a fresh one with
//     a new jti, and the old jti is revoked so it cannot be replayed.
//   - Logout records the token's jti in the revocation index, the single
//     deliberate exception to statelessness. Entries are pruned once their
//     natural expiry passes.
//
// Failure taxonomy:
//   - Every authentication failure carries a coarse machine-readable text
//     code (token_expired, token_invalid, token_absent, ...). The HTTP layer
//     maps all of them to 401 responses; credential failures never reveal
//     whether the identifier or the password was wrong.
package auth
