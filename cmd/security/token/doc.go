// Package token issues and validates the signed bearer tokens that authd
// hands out after a successful login.
//
// Tokens are compact JWTs signed with an HMAC algorithm (HS256 by default).
// The claim set is sub (account id, decimal), iat, exp, jti and iss.
// Nothing is stored server-side; validity is a pure function of the token,
// the secret and the clock.
package token
