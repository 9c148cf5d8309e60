package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/curve25519"

	"github.com/creamcroissant/sbnode/internal/support/execx"
)

var (
	privateKeyLine = regexp.MustCompile(`(?im)^\s*private\s*key\s*:\s*(\S+)\s*$`)
	publicKeyLine  = regexp.MustCompile(`(?im)^\s*public\s*key\s*:\s*(\S+)\s*$`)
)

// SingBoxKeyPair runs `sing-box generate reality-keypair`.
type SingBoxKeyPair struct {
	Path   string
	Runner execx.Runner
}

func (s SingBoxKeyPair) Generate(ctx context.Context) (KeyPair, error) {
	path := s.Path
	if path == "" {
		path = "sing-box"
	}
	runner := s.Runner
	if runner == nil {
		runner = execx.Default
	}
	out, err := runner.Run(ctx, path, "generate", "reality-keypair")
	if err != nil {
		return KeyPair{}, err
	}
	return ParseKeyPairOutput(string(out))
}

// ParseKeyPairOutput extracts the key pair from reality-keypair output:
//
//	PrivateKey: ...
//	PublicKey: ...
func ParseKeyPairOutput(out string) (KeyPair, error) {
	priv := privateKeyLine.FindStringSubmatch(out)
	pub := publicKeyLine.FindStringSubmatch(out)
	if len(priv) < 2 || len(pub) < 2 {
		return KeyPair{}, fmt.Errorf("unexpected reality-keypair output %q", strings.TrimSpace(out))
	}
	return KeyPair{PrivateKey: priv[1], PublicKey: pub[1]}, nil
}

// X25519KeyPair generates the key pair in-process.
type X25519KeyPair struct {
	Rand io.Reader
}

func (x X25519KeyPair) Generate(context.Context) (KeyPair, error) {
	r := x.Rand
	if r == nil {
		r = rand.Reader
	}
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(r, priv); err != nil {
		return KeyPair{}, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		PrivateKey: base64.RawURLEncoding.EncodeToString(priv),
		PublicKey:  base64.RawURLEncoding.EncodeToString(pub),
	}, nil
}

// PublicKeyFor derives the public key belonging to an encoded private key.
func PublicKeyFor(privateKey string) (string, error) {
	priv, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(privateKey, "="))
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	if len(priv) != curve25519.ScalarSize {
		return "", fmt.Errorf("decode private key: got %d bytes, want %d", len(priv), curve25519.ScalarSize)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(pub), nil
}

// AutoKeyPair prefers the sing-box binary and generates natively when it is
// not installed. A sing-box that is present but fails is still an error.
type AutoKeyPair struct {
	SingBox SingBoxKeyPair
	Native  X25519KeyPair
}

func (a AutoKeyPair) Generate(ctx context.Context) (KeyPair, error) {
	path := a.SingBox.Path
	if path == "" {
		path = "sing-box"
	}
	if _, err := execx.LookPath(path); err != nil {
		return a.Native.Generate(ctx)
	}
	return a.SingBox.Generate(ctx)
}

// NewKeyPairSource maps a keygen mode (auto, singbox, native) to a source.
func NewKeyPairSource(mode, singBoxPath string, runner execx.Runner) (KeyPairSource, error) {
	sb := SingBoxKeyPair{Path: singBoxPath, Runner: runner}
	switch strings.ToLower(mode) {
	case "", "auto":
		return AutoKeyPair{SingBox: sb}, nil
	case "singbox", "sing-box":
		return sb, nil
	case "native", "x25519":
		return X25519KeyPair{}, nil
	default:
		return nil, fmt.Errorf("unknown keygen mode %q", mode)
	}
}
