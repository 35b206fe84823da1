package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmptySecret is returned when no hashing key is configured.
var ErrEmptySecret = errors.New("crypto: hashing secret is empty")

// Hasher produces keyed, deterministic hex digests.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed by secret.
func NewHasher(secret string) (Hasher, error) {
	if strings.TrimSpace(secret) == "" {
		return Hasher{}, ErrEmptySecret
	}
	return Hasher{key: []byte(secret)}, nil
}

// Hash returns the hex encoded HMAC-SHA256 of input.
func (h Hasher) Hash(input string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(input))
	return hex.EncodeToString(mac.Sum(nil))
}

// PasswordDigest hashes a plaintext password for storage.
func (h Hasher) PasswordDigest(plain string) string {
	return h.Hash(plain)
}

type tagPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerificationTag derives the tag embedded in tokens from the stored email and digest.
func (h Hasher) VerificationTag(email, digest string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding a struct of two strings cannot fail
	_ = enc.Encode(tagPayload{Email: email, Password: digest})
	return h.Hash(strings.TrimSpace(buf.String()))
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
