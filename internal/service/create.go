package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/creamcroissant/sbnode/internal/credential"
	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/repository"
	"github.com/creamcroissant/sbnode/internal/sidestate"
)

// CreateRequest describes a fresh node configuration. Zero ports and an
// empty server name take the configured defaults.
type CreateRequest struct {
	Username      string
	Label         string
	VLESSPort     int
	Hysteria2Port int
	ServerName    string
}

// CreateConfig generates keys, certificate and the first user, writes
// config.json and keys.json together, then opens ports and restarts the
// service. Anything failing before the write leaves the disk untouched;
// anything failing after it is returned as a warning.
func (m *Manager) CreateConfig(ctx context.Context, req CreateRequest) (_ *Result, err error) {
	defer m.observe("create_config", &err)

	username, err := normalizeName("username", req.Username)
	if err != nil {
		return nil, err
	}
	label, err := normalizeLabel(req.Label)
	if err != nil {
		return nil, err
	}
	vport := firstNonZero(req.VLESSPort, m.settings.VLESSPort)
	hport := firstNonZero(req.Hysteria2Port, m.settings.Hysteria2Port)
	if err := checkPorts(vport, hport); err != nil {
		return nil, err
	}
	sni := req.ServerName
	if sni == "" {
		sni = m.settings.ServerName
	}
	if sni == "" {
		return nil, fmt.Errorf("%w: server name is required", ErrInvalidInput)
	}
	if m.certs == nil {
		return nil, errors.New("service: no certificate issuer configured")
	}

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	exists, err := m.store.Exists()
	if err != nil {
		return nil, err
	}
	_, keysExist, keysErr := m.store.LoadKeys()
	keysCorrupt := errors.Is(keysErr, sidestate.ErrCorrupt)
	if keysErr != nil && !keysCorrupt {
		return nil, keysErr
	}
	if exists || keysExist {
		prompt := "Overwrite the existing configuration and Reality keys"
		if keysCorrupt {
			prompt = "Overwrite the existing configuration and the unreadable keys.json"
		}
		if err := m.confirm(prompt); err != nil {
			return nil, err
		}
	}

	changes := repository.Changes{}
	if label != "" {
		names, err := m.loadNodeNames()
		if err != nil {
			return nil, err
		}
		changes.NodeNames = names.Clone()
		changes.NodeNames[username] = label
	}

	identifier, err := m.gen.NewUserIdentifier()
	if err != nil {
		return nil, err
	}
	var pair credential.KeyPair
	if err := m.call(ctx, "keygen", "generate reality keypair", func(ctx context.Context) error {
		var err error
		pair, err = m.gen.NewKeyPair(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	shortID, err := m.gen.NewCorrelationTag()
	if err != nil {
		return nil, err
	}
	secret, err := m.gen.NewSharedSecret(m.settings.SecretLength)
	if err != nil {
		return nil, err
	}
	obfs := m.settings.ObfsPassword
	if obfs == "" {
		if obfs, err = m.gen.NewSharedSecret(m.settings.SecretLength); err != nil {
			return nil, err
		}
	}
	var certPath, keyPath string
	if err := m.call(ctx, "certs", "generate "+sni, func(ctx context.Context) error {
		var err error
		certPath, keyPath, err = m.certs.Generate(ctx, sni)
		return err
	}); err != nil {
		return nil, err
	}

	doc, err := document.New(document.Params{
		VLESSPort:       vport,
		Hysteria2Port:   hport,
		ServerName:      sni,
		PrivateKey:      pair.PrivateKey,
		ShortID:         shortID,
		ObfsPassword:    obfs,
		CertificatePath: certPath,
		KeyPath:         keyPath,
		UpMbps:          m.settings.UpMbps,
		DownMbps:        m.settings.DownMbps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := doc.AddUser(document.ProtocolVLESS, document.UserCredential{Username: username, Identifier: identifier, Flow: m.settings.Flow}); err != nil {
		return nil, err
	}
	if err := doc.AddUser(document.ProtocolHysteria2, document.UserCredential{Username: username, Secret: secret}); err != nil {
		return nil, err
	}
	keys := sidestate.Keys{PrivateKey: pair.PrivateKey, PublicKey: pair.PublicKey, ShortID: shortID}
	changes.Document = doc
	changes.Keys = &keys

	written, err := m.commit(changes)
	if err != nil {
		return nil, err
	}
	m.logger.Info("config created", "op", "create_config", "user", username, "vless_port", vport, "hysteria2_port", hport)
	res := &Result{Written: written.Written}

	m.allowPort(ctx, vport, res)
	m.allowPort(ctx, hport, res)
	m.restart(ctx, res)
	m.publish(ctx, doc, username, res)
	m.syncUserGauge(doc)
	return res, nil
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func checkPorts(vless, hy2 int) error {
	for _, p := range []int{vless, hy2} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidInput, p)
		}
	}
	if vless == hy2 {
		return fmt.Errorf("%w: vless and hysteria2 cannot share port %d", ErrInvalidInput, vless)
	}
	return nil
}
