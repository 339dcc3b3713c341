// Package tokenhash derives the at-rest digests of opaque refresh and reset secrets
// and generates the random values those secrets and session identifiers are made of.
package tokenhash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// DigestLength is the length of a hex encoded digest.
const DigestLength = sha256.Size * 2

var ErrGenerationFailed = errors.New("failed to generate secure token")

// Digest returns the hex encoded SHA-256 of raw. It is deterministic, so the digest of a
// presented secret can be looked up directly.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateSecret returns n random bytes encoded as unpadded base64url.
func GenerateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Join(ErrGenerationFailed, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateSessionID returns a fresh 32 character identifier for a login lineage.
func GenerateSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
