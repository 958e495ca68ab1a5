// Package auth implements single-admin bearer token authentication for
// the HTTP server, narrowed from a SCRAM-SHA-256 multi-user scheme down
// to the one credential L-Store's admin surface needs: a pbkdf2-derived
// token checked in constant time.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength     = 16
	iterationCount = 4096
	keyLength      = 32
)

// ErrInvalidToken is returned when a request's bearer token does not
// match the configured admin token.
var ErrInvalidToken = errors.New("auth: invalid bearer token")

// Verifier holds a derived admin token and checks bearer tokens
// against it in constant time.
type Verifier struct {
	salt       []byte
	derivedKey []byte
}

// NewVerifier derives a verifier from a plaintext admin token using a
// freshly generated random salt.
func NewVerifier(plaintextToken string) (*Verifier, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("auth: generate salt: %w", err)
	}
	return &Verifier{
		salt:       salt,
		derivedKey: pbkdf2.Key([]byte(plaintextToken), salt, iterationCount, keyLength, sha256.New),
	}, nil
}

// NewVerifierFromSalt rebuilds a verifier from a previously generated
// salt, e.g. loaded from server configuration.
func NewVerifierFromSalt(plaintextToken string, salt []byte) *Verifier {
	return &Verifier{
		salt:       salt,
		derivedKey: pbkdf2.Key([]byte(plaintextToken), salt, iterationCount, keyLength, sha256.New),
	}
}

// Salt returns the salt in use, for persisting alongside server config.
func (v *Verifier) Salt() []byte { return v.salt }

// SaltBase64 returns the salt base64-encoded, for JSON/YAML config
// files.
func (v *Verifier) SaltBase64() string { return base64.StdEncoding.EncodeToString(v.salt) }

// Verify checks candidateToken against the derived admin token,
// comparing in constant time to avoid leaking timing information.
func (v *Verifier) Verify(candidateToken string) error {
	candidateKey := pbkdf2.Key([]byte(candidateToken), v.salt, iterationCount, keyLength, sha256.New)
	if subtle.ConstantTimeCompare(v.derivedKey, candidateKey) != 1 {
		return ErrInvalidToken
	}
	return nil
}
