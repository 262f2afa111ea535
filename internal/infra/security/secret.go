package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	uuid "github.com/google/uuid"
)

const secretByteLength = 32

// GeneratedSecret is the one-time output of token issuance. Raw is returned
// to the caller exactly once; only Hash is persisted.
type GeneratedSecret struct {
	TokenID string
	Raw     string
	Secret  string
	Hash    string
}

// GenerateTokenSecret mints a new opaque bearer credential of the form
// "<prefix>_<tokenID>_<secret>". The token id travels in the clear so
// validation can look up the record without scanning hashes.
func GenerateTokenSecret(prefix string) (*GeneratedSecret, error) {
	if prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}

	buf := make([]byte, secretByteLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	tokenID := uuid.NewString()
	secret := base64.RawURLEncoding.EncodeToString(buf)

	return &GeneratedSecret{
		TokenID: tokenID,
		Raw:     fmt.Sprintf("%s_%s_%s", prefix, tokenID, secret),
		Secret:  secret,
		Hash:    HashSecret(secret),
	}, nil
}

// HashSecret calculates the SHA-256 hex digest of the provided secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecretHash compares a presented secret against a stored hash in
// constant time. The comparison runs over the digests, so timing reveals
// nothing about the stored value.
func VerifySecretHash(storedHash, presentedSecret string) bool {
	if storedHash == "" || presentedSecret == "" {
		return false
	}

	stored, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}

	presented := sha256.Sum256([]byte(presentedSecret))
	return subtle.ConstantTimeCompare(stored, presented[:]) == 1
}
