package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/creamcroissant/sbnode/internal/credential"
	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/linkgen"
	"github.com/creamcroissant/sbnode/internal/sidestate"
)

// linkInputs is the side state a link needs beyond the document.
type linkInputs struct {
	host     string
	keys     sidestate.Keys
	haveKeys bool
}

func (m *Manager) resolveHost(ctx context.Context) (string, error) {
	var host string
	err := m.call(ctx, "host", "resolve server address", func(ctx context.Context) error {
		var err error
		host, err = m.host.Resolve(ctx)
		return err
	})
	return host, err
}

// deriveLinks builds every link username has. Links that cannot be derived
// are reported, never emitted half-filled.
func (m *Manager) deriveLinks(doc *document.Document, username, label string, in linkInputs) ([]Link, []Warning) {
	var (
		links []Link
		warns []Warning
	)
	if v := doc.VLESS(); v != nil {
		for _, u := range v.Users {
			if u.Name != username {
				continue
			}
			uri, err := m.vlessURI(v, u, label, in)
			if err != nil {
				warns = append(warns, Warning{Step: "derive vless link for " + username, Err: err})
				break
			}
			links = append(links, Link{Protocol: document.ProtocolVLESS, URI: uri})
			break
		}
	}
	if h := doc.Hysteria2(); h != nil {
		for _, u := range h.Users {
			if u.Name != username {
				continue
			}
			links = append(links, Link{Protocol: document.ProtocolHysteria2, URI: m.hysteria2URI(h, u, label, in.host)})
			break
		}
	}
	return links, warns
}

func (m *Manager) vlessURI(l *document.VLESSListener, u document.VLESSUser, label string, in linkInputs) (string, error) {
	if l.TLS == nil || l.TLS.Reality == nil {
		return "", fmt.Errorf("%w: vless listener has no reality block", ErrIncomplete)
	}
	if !in.haveKeys || in.keys.PublicKey == "" {
		return "", ErrKeysMissing
	}
	shortID := l.TLS.Reality.ShortID
	if shortID == "" {
		shortID = in.keys.ShortID
	}
	flow := u.Flow
	if flow == "" {
		flow = m.settings.Flow
	}
	return linkgen.DeriveVLESSURI(linkgen.VLESSParams{
		Identifier:  u.UUID,
		Host:        in.host,
		Port:        l.Port,
		Flow:        flow,
		SNI:         l.SNI(),
		Fingerprint: m.settings.Fingerprint,
		PublicKey:   in.keys.PublicKey,
		ShortID:     shortID,
		Label:       label,
	}), nil
}

func (m *Manager) hysteria2URI(l *document.Hysteria2Listener, u document.Hysteria2User, label, host string) string {
	return linkgen.DeriveHysteria2URI(linkgen.Hysteria2Params{
		Secret:       u.Password,
		Host:         host,
		Port:         l.Port,
		SNI:          l.SNI(),
		ObfsPassword: l.ObfsPassword(),
		Insecure:     m.settings.Insecure,
		Label:        label,
	})
}

// checkKeys flags a keys.json whose public key does not belong to the
// private key in the config.
func checkKeys(doc *document.Document, keys sidestate.Keys) error {
	v := doc.VLESS()
	if v == nil || v.TLS == nil || v.TLS.Reality == nil || v.TLS.Reality.PrivateKey == "" || keys.PublicKey == "" {
		return nil
	}
	pub, err := credential.PublicKeyFor(v.TLS.Reality.PrivateKey)
	if err != nil {
		return nil
	}
	if pub != keys.PublicKey {
		return errors.New("keys.json public_key does not match the reality private_key in the config; clients will fail the handshake")
	}
	return nil
}

// publish derives and renders the links of one user after a change. Every
// failure here is a warning: the change is already on disk.
func (m *Manager) publish(ctx context.Context, doc *document.Document, username string, res *Result) {
	names, err := m.store.LoadNodeNames()
	if err != nil {
		res.warn("load display labels", sideStateErr(err))
		names = sidestate.NodeNames{}
	}
	label := names.Label(username)
	res.Username = username
	res.Label = label

	keys, haveKeys, err := m.store.LoadKeys()
	if err != nil {
		res.warn("load reality keys", sideStateErr(err))
		haveKeys = false
	}
	host, err := m.resolveHost(ctx)
	if err != nil {
		res.warn("resolve server address", err)
		return
	}

	links, warns := m.deriveLinks(doc, username, label, linkInputs{host: host, keys: keys, haveKeys: haveKeys})
	res.Warnings = append(res.Warnings, warns...)
	m.render(links, username, label, res)
	res.Links = links
}

// render shows each link as a terminal QR code and saves a PNG copy.
func (m *Manager) render(links []Link, username, label string, res *Result) {
	if m.renderer == nil || !m.settings.RenderQR {
		return
	}
	for i := range links {
		if err := m.renderer.RenderTerminal(links[i].URI); err != nil {
			m.metrics.CollaboratorFailed("render")
			res.warn("render qr", &CollaboratorError{Collaborator: "render", Op: "terminal", Err: err})
		}
		path, err := m.renderer.RenderImage(links[i].URI, username, label+"_"+imageSuffix(links[i].Protocol))
		if err != nil {
			m.metrics.CollaboratorFailed("render")
			res.warn("save qr image", &CollaboratorError{Collaborator: "render", Op: "image", Err: err})
			continue
		}
		links[i].Image = path
	}
}

func imageSuffix(p document.Protocol) string {
	switch p {
	case document.ProtocolVLESS:
		return "VLESS"
	case document.ProtocolHysteria2:
		return "Hysteria2"
	}
	return string(p)
}
