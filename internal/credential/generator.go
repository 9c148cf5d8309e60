// Package credential produces identifiers, secrets, short ids and Reality key
// pairs. Every value comes from a cryptographically secure source; a failing
// source is an error, never a fallback.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Largest multiple of len(alphanumeric) below 256; bytes at or above it are
// rejected so every character is equally likely.
const rejectionBound = 256 - 256%len(alphanumeric)

var (
	ErrRandomSource    = errors.New("credential: secure random source unavailable")
	ErrInvalidLength   = errors.New("credential: invalid secret length")
	ErrKeyPairFailed   = errors.New("credential: key pair generation failed")
	ErrNoKeyPairSource = errors.New("credential: no key pair source configured")
)

// KeyPair is a Reality X25519 key pair in sing-box's text encoding.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// KeyPairSource generates Reality key pairs.
type KeyPairSource interface {
	Generate(ctx context.Context) (KeyPair, error)
}

// Generator produces fresh credentials.
type Generator struct {
	rand io.Reader
	keys KeyPairSource
}

// NewGenerator returns a generator reading from crypto/rand.
func NewGenerator(keys KeyPairSource) *Generator {
	return &Generator{rand: rand.Reader, keys: keys}
}

// WithRand replaces the random source. Used by tests.
func (g *Generator) WithRand(r io.Reader) *Generator {
	cp := *g
	cp.rand = r
	return &cp
}

// NewUserIdentifier returns a random (version 4) UUID string.
func (g *Generator) NewUserIdentifier() (string, error) {
	id, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	return id.String(), nil
}

// NewSharedSecret returns length random alphanumeric characters.
func (g *Generator) NewSharedSecret(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("%w: %w", ErrRandomSource, err)
		}
		for _, b := range buf {
			if int(b) >= rejectionBound {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// NewCorrelationTag returns 4 random bytes hex encoded, used as the Reality short id.
func (g *Generator) NewCorrelationTag() (string, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	return hex.EncodeToString(buf), nil
}

// NewKeyPair asks the configured source for a key pair. Empty halves are
// treated as a failure.
func (g *Generator) NewKeyPair(ctx context.Context) (KeyPair, error) {
	if g.keys == nil {
		return KeyPair{}, ErrNoKeyPairSource
	}
	kp, err := g.keys.Generate(ctx)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %w", ErrKeyPairFailed, err)
	}
	if kp.PrivateKey == "" || kp.PublicKey == "" {
		return KeyPair{}, fmt.Errorf("%w: empty key material", ErrKeyPairFailed)
	}
	return kp, nil
}
