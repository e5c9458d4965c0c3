package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const refreshTokenBytes = 32

// NewRefreshToken mints the opaque token handed to portal clients alongside
// the access token. Only its sha256 digest is persisted in
// refresh_token_sessions, so the plaintext exists nowhere but the response.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken computes the digest stored for, and looked up by, a refresh
// session row.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
