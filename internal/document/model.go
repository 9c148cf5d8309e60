package document

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Protocol is the sing-box inbound type of a managed listener.
type Protocol string

const (
	ProtocolVLESS     Protocol = "vless"
	ProtocolHysteria2 Protocol = "hysteria2"
)

// Protocols lists the managed listeners in document order.
var Protocols = []Protocol{ProtocolVLESS, ProtocolHysteria2}

// Listener is the read view shared by both managed listeners.
type Listener interface {
	Protocol() Protocol
	BindPort() int
	SNI() string
	Usernames() []string
}

// VLESSUser is one entry of the VLESS users list.
type VLESSUser struct {
	Name  string
	UUID  string
	Flow  string
	Extra object
}

// Hysteria2User is one entry of the Hysteria2 users list.
type Hysteria2User struct {
	Name     string
	Password string
	Extra    object
}

// Handshake is the Reality handshake target.
type Handshake struct {
	Server     string
	ServerPort int
	Extra      object
}

// Reality holds the server side Reality parameters. ShortID is always a
// single lowercase hex string no matter how the file spelled it.
type Reality struct {
	Enabled           bool
	Handshake         *Handshake
	PrivateKey        string
	ShortID           string
	MaxTimeDifference string
	Extra             object

	// hasShortID records a short_id key in the source file, even an empty one.
	hasShortID bool
}

// VLESSTLS is the tls block of the VLESS listener.
type VLESSTLS struct {
	Enabled    bool
	ServerName string
	Reality    *Reality
	Extra      object
}

// VLESSListener is the Reality protected VLESS inbound.
type VLESSListener struct {
	Tag    string
	Listen string
	Port   int
	Users  []VLESSUser
	TLS    *VLESSTLS
	Extra  object
}

func (l *VLESSListener) Protocol() Protocol { return ProtocolVLESS }
func (l *VLESSListener) BindPort() int      { return l.Port }

func (l *VLESSListener) SNI() string {
	if l.TLS == nil {
		return ""
	}
	return l.TLS.ServerName
}

func (l *VLESSListener) Usernames() []string {
	out := make([]string, 0, len(l.Users))
	for _, u := range l.Users {
		out = append(out, u.Name)
	}
	return out
}

func (l *VLESSListener) indexOf(name string) int {
	for i, u := range l.Users {
		if u.Name == name {
			return i
		}
	}
	return -1
}

// Obfs is the Hysteria2 obfuscation block.
type Obfs struct {
	Type     string
	Password string
	Extra    object
}

// Hysteria2TLS is the tls block of the Hysteria2 listener.
type Hysteria2TLS struct {
	Enabled         bool
	ServerName      string
	CertificatePath string
	KeyPath         string
	ALPN            []string
	Extra           object
}

// Hysteria2Listener is the obfuscated Hysteria2 inbound.
type Hysteria2Listener struct {
	Tag      string
	Listen   string
	Port     int
	UpMbps   int
	DownMbps int
	Obfs     *Obfs
	Users    []Hysteria2User
	TLS      *Hysteria2TLS
	Extra    object
}

func (l *Hysteria2Listener) Protocol() Protocol { return ProtocolHysteria2 }
func (l *Hysteria2Listener) BindPort() int      { return l.Port }

func (l *Hysteria2Listener) SNI() string {
	if l.TLS == nil {
		return ""
	}
	return l.TLS.ServerName
}

func (l *Hysteria2Listener) Usernames() []string {
	out := make([]string, 0, len(l.Users))
	for _, u := range l.Users {
		out = append(out, u.Name)
	}
	return out
}

// ObfsPassword returns the salamander password, empty when obfuscation is off.
func (l *Hysteria2Listener) ObfsPassword() string {
	if l.Obfs == nil {
		return ""
	}
	return l.Obfs.Password
}

func (l *Hysteria2Listener) indexOf(name string) int {
	for i, u := range l.Users {
		if u.Name == name {
			return i
		}
	}
	return -1
}

// ---- decoding ----

func decodeVLESS(obj object, field string) (*VLESSListener, error) {
	l := &VLESSListener{}
	if err := decodeListenerHead(obj, field, &l.Tag, &l.Listen, &l.Port); err != nil {
		return nil, err
	}

	var users []json.RawMessage
	if _, err := obj.take("users", &users, field); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(users))
	for i, raw := range users {
		uf := fmt.Sprintf("%s.users[%d]", field, i)
		u, err := decodeVLESSUser(raw, uf)
		if err != nil {
			return nil, err
		}
		if seen[u.Name] {
			return nil, malformed(uf+".name", "duplicate user %q", u.Name)
		}
		seen[u.Name] = true
		l.Users = append(l.Users, u)
	}

	var tlsRaw json.RawMessage
	if ok, err := obj.take("tls", &tlsRaw, field); err != nil {
		return nil, err
	} else if ok {
		tls, err := decodeVLESSTLS(tlsRaw, field+".tls")
		if err != nil {
			return nil, err
		}
		l.TLS = tls
	}

	l.Extra = obj
	return l, nil
}

func decodeListenerHead(obj object, field string, tag, listen *string, port *int) error {
	delete(obj, "type")
	if _, err := obj.take("tag", tag, field); err != nil {
		return err
	}
	if _, err := obj.take("listen", listen, field); err != nil {
		return err
	}
	ok, err := obj.take("listen_port", port, field)
	if err != nil {
		return err
	}
	if !ok {
		return malformed(field+".listen_port", "missing")
	}
	if *port < 1 || *port > 65535 {
		return malformed(field+".listen_port", "port %d out of range", *port)
	}
	return nil
}

func decodeVLESSUser(raw json.RawMessage, field string) (VLESSUser, error) {
	obj, err := decodeObject(raw, field)
	if err != nil {
		return VLESSUser{}, err
	}
	var u VLESSUser
	if _, err := obj.take("name", &u.Name, field); err != nil {
		return u, err
	}
	if u.Name == "" {
		return u, malformed(field+".name", "empty username")
	}
	if _, err := obj.take("uuid", &u.UUID, field); err != nil {
		return u, err
	}
	if _, err := uuid.Parse(u.UUID); err != nil {
		return u, malformed(field+".uuid", "%q is not a UUID", u.UUID)
	}
	if _, err := obj.take("flow", &u.Flow, field); err != nil {
		return u, err
	}
	u.Extra = obj
	return u, nil
}

func decodeVLESSTLS(raw json.RawMessage, field string) (*VLESSTLS, error) {
	obj, err := decodeObject(raw, field)
	if err != nil {
		return nil, err
	}
	tls := &VLESSTLS{}
	if _, err := obj.take("enabled", &tls.Enabled, field); err != nil {
		return nil, err
	}
	if _, err := obj.take("server_name", &tls.ServerName, field); err != nil {
		return nil, err
	}
	var realityRaw json.RawMessage
	if ok, err := obj.take("reality", &realityRaw, field); err != nil {
		return nil, err
	} else if ok {
		r, err := decodeReality(realityRaw, field+".reality")
		if err != nil {
			return nil, err
		}
		tls.Reality = r
	}
	tls.Extra = obj
	return tls, nil
}

func decodeReality(raw json.RawMessage, field string) (*Reality, error) {
	obj, err := decodeObject(raw, field)
	if err != nil {
		return nil, err
	}
	r := &Reality{}
	if _, err := obj.take("enabled", &r.Enabled, field); err != nil {
		return nil, err
	}
	var hsRaw json.RawMessage
	if ok, err := obj.take("handshake", &hsRaw, field); err != nil {
		return nil, err
	} else if ok {
		hsObj, err := decodeObject(hsRaw, field+".handshake")
		if err != nil {
			return nil, err
		}
		hs := &Handshake{}
		if _, err := hsObj.take("server", &hs.Server, field+".handshake"); err != nil {
			return nil, err
		}
		if _, err := hsObj.take("server_port", &hs.ServerPort, field+".handshake"); err != nil {
			return nil, err
		}
		hs.Extra = hsObj
		r.Handshake = hs
	}
	if _, err := obj.take("private_key", &r.PrivateKey, field); err != nil {
		return nil, err
	}
	if sidRaw, ok := obj["short_id"]; ok {
		delete(obj, "short_id")
		sid, err := normalizeShortID(sidRaw)
		if err != nil {
			return nil, malformed(field+".short_id", "%v", err)
		}
		r.ShortID = sid
		r.hasShortID = true
	}
	if _, err := obj.take("max_time_difference", &r.MaxTimeDifference, field); err != nil {
		return nil, err
	}
	r.Extra = obj
	return r, nil
}

// normalizeShortID accepts "ab12" or ["ab12"] and returns "ab12".
func normalizeShortID(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return validShortID(single)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) != 1 {
			return "", fmt.Errorf("expected exactly one short id, got %d", len(list))
		}
		return validShortID(list[0])
	}
	return "", fmt.Errorf("expected a hex string or a list of one, got %s", truncate(raw))
}

func validShortID(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > 16 || len(s)%2 != 0 {
		return "", fmt.Errorf("%q must be an even number of hex digits, at most 16", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%q is not hex", s)
	}
	return s, nil
}

func decodeHysteria2(obj object, field string) (*Hysteria2Listener, error) {
	l := &Hysteria2Listener{}
	if err := decodeListenerHead(obj, field, &l.Tag, &l.Listen, &l.Port); err != nil {
		return nil, err
	}
	if _, err := obj.take("up_mbps", &l.UpMbps, field); err != nil {
		return nil, err
	}
	if _, err := obj.take("down_mbps", &l.DownMbps, field); err != nil {
		return nil, err
	}

	var obfsRaw json.RawMessage
	if ok, err := obj.take("obfs", &obfsRaw, field); err != nil {
		return nil, err
	} else if ok {
		of := field + ".obfs"
		oObj, err := decodeObject(obfsRaw, of)
		if err != nil {
			return nil, err
		}
		o := &Obfs{}
		if _, err := oObj.take("type", &o.Type, of); err != nil {
			return nil, err
		}
		if _, err := oObj.take("password", &o.Password, of); err != nil {
			return nil, err
		}
		o.Extra = oObj
		l.Obfs = o
	}

	var users []json.RawMessage
	if _, err := obj.take("users", &users, field); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(users))
	for i, raw := range users {
		uf := fmt.Sprintf("%s.users[%d]", field, i)
		uObj, err := decodeObject(raw, uf)
		if err != nil {
			return nil, err
		}
		var u Hysteria2User
		if _, err := uObj.take("name", &u.Name, uf); err != nil {
			return nil, err
		}
		if u.Name == "" {
			return nil, malformed(uf+".name", "empty username")
		}
		if seen[u.Name] {
			return nil, malformed(uf+".name", "duplicate user %q", u.Name)
		}
		seen[u.Name] = true
		if _, err := uObj.take("password", &u.Password, uf); err != nil {
			return nil, err
		}
		u.Extra = uObj
		l.Users = append(l.Users, u)
	}

	var tlsRaw json.RawMessage
	if ok, err := obj.take("tls", &tlsRaw, field); err != nil {
		return nil, err
	} else if ok {
		tf := field + ".tls"
		tObj, err := decodeObject(tlsRaw, tf)
		if err != nil {
			return nil, err
		}
		tls := &Hysteria2TLS{}
		if _, err := tObj.take("enabled", &tls.Enabled, tf); err != nil {
			return nil, err
		}
		if _, err := tObj.take("server_name", &tls.ServerName, tf); err != nil {
			return nil, err
		}
		if _, err := tObj.take("certificate_path", &tls.CertificatePath, tf); err != nil {
			return nil, err
		}
		if _, err := tObj.take("key_path", &tls.KeyPath, tf); err != nil {
			return nil, err
		}
		if _, err := tObj.take("alpn", &tls.ALPN, tf); err != nil {
			return nil, err
		}
		tls.Extra = tObj
		l.TLS = tls
	}

	l.Extra = obj
	return l, nil
}

// ---- encoding ----

func (l *VLESSListener) encode() (json.RawMessage, error) {
	e := newEncoder(l.Extra)
	e.set("type", string(ProtocolVLESS))
	e.setString("tag", l.Tag)
	e.setString("listen", l.Listen)
	e.set("listen_port", l.Port)

	users := make([]json.RawMessage, 0, len(l.Users))
	for _, u := range l.Users {
		ue := newEncoder(u.Extra)
		ue.set("name", u.Name)
		ue.set("uuid", u.UUID)
		ue.setString("flow", u.Flow)
		raw, err := ue.done()
		if err != nil {
			return nil, err
		}
		users = append(users, raw)
	}
	e.set("users", users)

	if l.TLS != nil {
		e.setObject("tls", l.TLS.encoder())
	}
	return e.done()
}

func (t *VLESSTLS) encoder() *encoder {
	e := newEncoder(t.Extra)
	e.set("enabled", t.Enabled)
	e.setString("server_name", t.ServerName)
	if r := t.Reality; r != nil {
		re := newEncoder(r.Extra)
		re.set("enabled", r.Enabled)
		if hs := r.Handshake; hs != nil {
			he := newEncoder(hs.Extra)
			he.setString("server", hs.Server)
			if hs.ServerPort != 0 {
				he.set("server_port", hs.ServerPort)
			}
			re.setObject("handshake", he)
		}
		re.set("private_key", r.PrivateKey)
		if r.ShortID != "" || r.hasShortID {
			re.set("short_id", []string{r.ShortID})
		}
		re.setString("max_time_difference", r.MaxTimeDifference)
		e.setObject("reality", re)
	}
	return e
}

func (l *Hysteria2Listener) encode() (json.RawMessage, error) {
	e := newEncoder(l.Extra)
	e.set("type", string(ProtocolHysteria2))
	e.setString("tag", l.Tag)
	e.setString("listen", l.Listen)
	e.set("listen_port", l.Port)
	if l.UpMbps != 0 {
		e.set("up_mbps", l.UpMbps)
	}
	if l.DownMbps != 0 {
		e.set("down_mbps", l.DownMbps)
	}
	if o := l.Obfs; o != nil {
		oe := newEncoder(o.Extra)
		oe.setString("type", o.Type)
		oe.set("password", o.Password)
		e.setObject("obfs", oe)
	}

	users := make([]json.RawMessage, 0, len(l.Users))
	for _, u := range l.Users {
		ue := newEncoder(u.Extra)
		ue.set("name", u.Name)
		ue.set("password", u.Password)
		raw, err := ue.done()
		if err != nil {
			return nil, err
		}
		users = append(users, raw)
	}
	e.set("users", users)

	if t := l.TLS; t != nil {
		te := newEncoder(t.Extra)
		te.set("enabled", t.Enabled)
		te.setString("server_name", t.ServerName)
		te.setString("certificate_path", t.CertificatePath)
		te.setString("key_path", t.KeyPath)
		if len(t.ALPN) > 0 {
			te.set("alpn", t.ALPN)
		}
		e.setObject("tls", te)
	}
	return e.done()
}
