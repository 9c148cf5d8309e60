// Package certs issues the self-signed certificate the Hysteria2 listener
// serves. Clients connect with insecure=1, so no trust chain is involved.
package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"github.com/creamcroissant/sbnode/internal/fsutil"
)

const validity = 3650 * 24 * time.Hour

// Issuer produces a certificate/key pair for a domain.
type Issuer interface {
	Generate(ctx context.Context, domain string) (certPath, keyPath string, err error)
}

// SelfSigned writes cert.pem and key.pem into Dir. Existing files are reused.
type SelfSigned struct {
	Dir string
	Now func() time.Time
}

func (s SelfSigned) Generate(_ context.Context, domain string) (string, string, error) {
	certPath := filepath.Join(s.Dir, "cert.pem")
	keyPath := filepath.Join(s.Dir, "key.pem")

	certOK, err := fsutil.Exists(certPath)
	if err != nil {
		return "", "", err
	}
	keyOK, err := fsutil.Exists(keyPath)
	if err != nil {
		return "", "", err
	}
	if certOK && keyOK {
		return certPath, keyPath, nil
	}

	certPEM, keyPEM, err := s.issue(domain)
	if err != nil {
		return "", "", err
	}
	if err := fsutil.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return "", "", err
	}
	if err := fsutil.WriteFile(certPath, certPEM, 0o644); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}

func (s SelfSigned) issue(domain string) (certPEM, keyPEM []byte, err error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("serial number: %w", err)
	}
	notBefore := now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: domain},
		DNSNames:              []string{domain},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	b, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal key: %w", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return certPEM, keyPEM, nil
}
