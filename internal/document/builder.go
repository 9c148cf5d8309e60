package document

import (
	"encoding/json"
	"fmt"
)

// Params describes a freshly generated two-listener configuration.
type Params struct {
	Listen          string
	VLESSPort       int
	Hysteria2Port   int
	ServerName      string
	HandshakePort   int
	PrivateKey      string
	ShortID         string
	ObfsPassword    string
	CertificatePath string
	KeyPath         string
	UpMbps          int
	DownMbps        int
}

const (
	vlessTag          = "vless-in"
	hysteria2Tag      = "hy2-in"
	maxTimeDifference = "12h"
)

var defaultOutbounds = json.RawMessage(`[{"type":"direct"},{"type":"block","tag":"block"}]`)

// New builds a complete document with empty user lists.
func New(p Params) (*Document, error) {
	if p.Listen == "" {
		p.Listen = "::"
	}
	if p.HandshakePort == 0 {
		p.HandshakePort = 443
	}
	for name, port := range map[string]int{"vless port": p.VLESSPort, "hysteria2 port": p.Hysteria2Port} {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: %s %d out of range", ErrInvalidField, name, port)
		}
	}
	if p.VLESSPort == p.Hysteria2Port {
		return nil, fmt.Errorf("%w: vless and hysteria2 cannot share port %d", ErrInvalidField, p.VLESSPort)
	}
	sid, err := validShortID(p.ShortID)
	if err != nil {
		return nil, fmt.Errorf("%w: short id: %v", ErrInvalidField, err)
	}

	vless := &VLESSListener{
		Tag:    vlessTag,
		Listen: p.Listen,
		Port:   p.VLESSPort,
		Users:  []VLESSUser{},
		TLS: &VLESSTLS{
			Enabled:    true,
			ServerName: p.ServerName,
			Reality: &Reality{
				Enabled:           true,
				Handshake:         &Handshake{Server: p.ServerName, ServerPort: p.HandshakePort},
				PrivateKey:        p.PrivateKey,
				ShortID:           sid,
				MaxTimeDifference: maxTimeDifference,
			},
		},
	}

	hy2Extra := object{
		"ignore_client_bandwidth": json.RawMessage(`false`),
		"brutal_debug":            json.RawMessage(`false`),
	}
	masquerade, err := marshal("https://" + p.ServerName)
	if err != nil {
		return nil, err
	}
	hy2Extra["masquerade"] = masquerade

	hy2 := &Hysteria2Listener{
		Tag:      hysteria2Tag,
		Listen:   p.Listen,
		Port:     p.Hysteria2Port,
		UpMbps:   p.UpMbps,
		DownMbps: p.DownMbps,
		Users:    []Hysteria2User{},
		TLS: &Hysteria2TLS{
			Enabled:         true,
			ServerName:      p.ServerName,
			CertificatePath: p.CertificatePath,
			KeyPath:         p.KeyPath,
			ALPN:            []string{"h3", "http/1.1"},
		},
		Extra: hy2Extra,
	}
	if p.ObfsPassword != "" {
		hy2.Obfs = &Obfs{Type: "salamander", Password: p.ObfsPassword}
	}

	return &Document{
		inbounds:  []inbound{{vless: vless}, {hy2: hy2}},
		vless:     vless,
		hy2:       hy2,
		outbounds: defaultOutbounds,
		extra:     object{},
	}, nil
}
