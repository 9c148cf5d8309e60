// Package linkgen turns credentials and listener parameters into client
// share links. Derivation is pure; links are never stored.
package linkgen

import (
	"net"
	"strconv"
	"strings"
)

// Defaults applied by callers that have no explicit value.
const (
	DefaultFingerprint = "chrome"
	DefaultFlow        = "xtls-rprx-vision"
	hysteria2ALPN      = "h3,h2,http/1.1"
	obfsSalamander     = "salamander"
)

// VLESSParams is everything a Reality VLESS link carries.
type VLESSParams struct {
	Identifier  string
	Host        string
	Port        int
	Flow        string
	SNI         string
	Fingerprint string
	PublicKey   string
	ShortID     string
	Label       string
}

// Hysteria2Params is everything a Hysteria2 link carries.
type Hysteria2Params struct {
	Secret       string
	Host         string
	Port         int
	SNI          string
	ObfsPassword string
	Insecure     bool
	Label        string
}

// DeriveVLESSURI renders
//
//	vless://<id>@<host>:<port>?encryption=none&flow=..&security=reality&sni=..&fp=..&pbk=..&sid=..&type=tcp&headerType=none&host=<sni>#<label>
func DeriveVLESSURI(p VLESSParams) string {
	var b strings.Builder
	b.WriteString("vless://")
	b.WriteString(Escape(p.Identifier))
	b.WriteByte('@')
	b.WriteString(hostPort(p.Host, p.Port))
	writeQuery(&b, [][2]string{
		{"encryption", "none"},
		{"flow", p.Flow},
		{"security", "reality"},
		{"sni", p.SNI},
		{"fp", p.Fingerprint},
		{"pbk", p.PublicKey},
		{"sid", p.ShortID},
		{"type", "tcp"},
		{"headerType", "none"},
		{"host", p.SNI},
	})
	b.WriteByte('#')
	b.WriteString(Escape(p.Label))
	return b.String()
}

// DeriveHysteria2URI renders
//
//	hysteria2://<secret>@<host>:<port>?sni=..&alpn=h3,h2,http/1.1&obfs=salamander&obfs-password=..&insecure=0|1#<label>
func DeriveHysteria2URI(p Hysteria2Params) string {
	insecure := "0"
	if p.Insecure {
		insecure = "1"
	}
	var b strings.Builder
	b.WriteString("hysteria2://")
	b.WriteString(Escape(p.Secret))
	b.WriteByte('@')
	b.WriteString(hostPort(p.Host, p.Port))
	params := [][2]string{
		{"sni", p.SNI},
		{"alpn", hysteria2ALPN},
		{"obfs", obfsSalamander},
		{"obfs-password", p.ObfsPassword},
		{"insecure", insecure},
	}
	writeQuery(&b, params)
	b.WriteByte('#')
	b.WriteString(Escape(p.Label))
	return b.String()
}

// writeQuery keeps parameter order fixed; url.Values would sort it.
// The alpn list keeps its literal commas and slash.
func writeQuery(b *strings.Builder, params [][2]string) {
	for i, kv := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		if kv[0] == "alpn" {
			b.WriteString(kv[1])
			continue
		}
		b.WriteString(Escape(kv[1]))
	}
}

func hostPort(host string, port int) string {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port))
}

const upperhex = "0123456789ABCDEF"

// Escape percent-encodes everything except RFC 3986 unreserved characters,
// so '@', '#', '&', '/', '+' and space can never break a link apart.
func Escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
	}
	return string(buf)
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
