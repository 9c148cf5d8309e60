package linkgen

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var ErrUnsupportedScheme = errors.New("linkgen: unsupported link scheme")

// Link is a parsed share link.
type Link struct {
	Protocol string `json:"protocol" yaml:"protocol"`
	Label    string `json:"label" yaml:"label"`
	Server   string `json:"server" yaml:"server"`
	Port     int    `json:"port" yaml:"port"`

	UUID     string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	Security    string `json:"security,omitempty" yaml:"security,omitempty"`
	Flow        string `json:"flow,omitempty" yaml:"flow,omitempty"`
	Network     string `json:"network,omitempty" yaml:"network,omitempty"`
	SNI         string `json:"sni,omitempty" yaml:"sni,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	PublicKey   string `json:"public_key,omitempty" yaml:"public_key,omitempty"`
	ShortID     string `json:"short_id,omitempty" yaml:"short_id,omitempty"`

	ALPN         string `json:"alpn,omitempty" yaml:"alpn,omitempty"`
	Obfs         string `json:"obfs,omitempty" yaml:"obfs,omitempty"`
	ObfsPassword string `json:"obfs_password,omitempty" yaml:"obfs_password,omitempty"`
	Insecure     bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
}

// Parse reads a vless:// or hysteria2:// (hy2://) link.
func Parse(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "hy2://") {
		raw = "hysteria2://" + strings.TrimPrefix(raw, "hy2://")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("parse link: %w", err)
	}
	if u.User == nil || u.Host == "" {
		return Link{}, fmt.Errorf("parse link: missing credential or host")
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return Link{}, fmt.Errorf("parse link: invalid port %q", u.Port())
	}

	// url.Parse has already decoded userinfo and fragment.
	link := Link{
		Protocol: u.Scheme,
		Label:    u.Fragment,
		Server:   u.Hostname(),
		Port:     port,
	}
	params := u.Query()

	switch u.Scheme {
	case "vless":
		link.UUID = u.User.Username()
		link.Security = params.Get("security")
		link.Flow = params.Get("flow")
		link.Network = params.Get("type")
		if link.Network == "" {
			link.Network = "tcp"
		}
		link.SNI = params.Get("sni")
		link.Fingerprint = params.Get("fp")
		link.ALPN = params.Get("alpn")
		if link.Security == "reality" {
			link.PublicKey = params.Get("pbk")
			link.ShortID = params.Get("sid")
		}
	case "hysteria2":
		link.Password = u.User.Username()
		link.Security = "tls"
		link.SNI = params.Get("sni")
		link.ALPN = params.Get("alpn")
		link.Obfs = params.Get("obfs")
		link.ObfsPassword = params.Get("obfs-password")
		link.Insecure = params.Get("insecure") == "1" || params.Get("allowInsecure") == "1"
	default:
		return Link{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return link, nil
}
