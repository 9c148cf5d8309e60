// Package document models the sing-box configuration managed by sbnode: one
// Reality VLESS inbound, one Hysteria2 inbound and whatever else the operator
// keeps in the file, which is carried through untouched.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// UserCredential is one account as seen by both listeners.
type UserCredential struct {
	Username   string
	Identifier string // VLESS uuid
	Flow       string
	Secret     string // Hysteria2 password
}

// Field names a per-user value that can be rewritten in place.
type Field string

const (
	FieldIdentifier Field = "uuid"
	FieldFlow       Field = "flow"
	FieldSecret     Field = "password"
)

// inbound keeps the position of every inbound so unmanaged ones stay where they were.
type inbound struct {
	vless *VLESSListener
	hy2   *Hysteria2Listener
	raw   json.RawMessage
}

// Document is a parsed, shape-checked configuration.
type Document struct {
	inbounds  []inbound
	vless     *VLESSListener
	hy2       *Hysteria2Listener
	outbounds json.RawMessage
	extra     object
}

// Load parses a configuration. Comments and trailing commas are tolerated.
// Exactly one VLESS and one Hysteria2 inbound must be present.
func Load(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformed("", "empty document")
	}
	var top object
	if err := json.Unmarshal(jsonc.ToJSON(data), &top); err != nil {
		return nil, malformed("", "invalid JSON: %v", err)
	}
	if top == nil {
		return nil, malformed("", "document must be an object")
	}

	var rawInbounds []json.RawMessage
	ok, err := top.take("inbounds", &rawInbounds, "")
	if err != nil {
		return nil, malformed("inbounds", "must be an array")
	}
	if !ok {
		return nil, malformed("inbounds", "missing")
	}

	d := &Document{}
	for i, raw := range rawInbounds {
		field := fmt.Sprintf("inbounds[%d]", i)
		obj, err := decodeObject(raw, field)
		if err != nil {
			return nil, err
		}
		var typ string
		if _, err := obj.take("type", &typ, field); err != nil {
			return nil, err
		}
		switch Protocol(typ) {
		case ProtocolVLESS:
			if d.vless != nil {
				return nil, malformed(field, "second vless inbound")
			}
			l, err := decodeVLESS(obj, field)
			if err != nil {
				return nil, err
			}
			d.vless = l
			d.inbounds = append(d.inbounds, inbound{vless: l})
		case ProtocolHysteria2:
			if d.hy2 != nil {
				return nil, malformed(field, "second hysteria2 inbound")
			}
			l, err := decodeHysteria2(obj, field)
			if err != nil {
				return nil, err
			}
			d.hy2 = l
			d.inbounds = append(d.inbounds, inbound{hy2: l})
		default:
			d.inbounds = append(d.inbounds, inbound{raw: raw})
		}
	}
	if d.vless == nil {
		return nil, malformed("inbounds", "no vless inbound")
	}
	if d.hy2 == nil {
		return nil, malformed("inbounds", "no hysteria2 inbound")
	}
	if d.vless.Port == d.hy2.Port {
		return nil, malformed("inbounds", "vless and hysteria2 share port %d", d.vless.Port)
	}

	if raw, ok := top["outbounds"]; ok {
		d.outbounds = raw
		delete(top, "outbounds")
	}
	d.extra = top
	return d, nil
}

// VLESS returns the VLESS listener.
func (d *Document) VLESS() *VLESSListener { return d.vless }

// Hysteria2 returns the Hysteria2 listener.
func (d *Document) Hysteria2() *Hysteria2Listener { return d.hy2 }

// FindListener returns the listener serving protocol.
func (d *Document) FindListener(p Protocol) (Listener, error) {
	switch p {
	case ProtocolVLESS:
		if d.vless != nil {
			return d.vless, nil
		}
	case ProtocolHysteria2:
		if d.hy2 != nil {
			return d.hy2, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrListenerNotFound, p)
}

// ListUsernames returns usernames in file order.
func (d *Document) ListUsernames(p Protocol) ([]string, error) {
	l, err := d.FindListener(p)
	if err != nil {
		return nil, err
	}
	return l.Usernames(), nil
}

// HasUser reports whether username is in protocol's user list.
func (d *Document) HasUser(p Protocol, username string) bool {
	switch p {
	case ProtocolVLESS:
		return d.vless != nil && d.vless.indexOf(username) >= 0
	case ProtocolHysteria2:
		return d.hy2 != nil && d.hy2.indexOf(username) >= 0
	}
	return false
}

// AddUser appends a user to protocol's list. VLESS needs Identifier,
// Hysteria2 needs Secret.
func (d *Document) AddUser(p Protocol, u UserCredential) error {
	if u.Username == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidUser)
	}
	if _, err := d.FindListener(p); err != nil {
		return err
	}
	if d.HasUser(p, u.Username) {
		return fmt.Errorf("%w: %s in %s", ErrUserExists, u.Username, p)
	}
	switch p {
	case ProtocolVLESS:
		if u.Identifier == "" {
			return fmt.Errorf("%w: missing identifier", ErrInvalidUser)
		}
		d.vless.Users = append(d.vless.Users, VLESSUser{Name: u.Username, UUID: u.Identifier, Flow: u.Flow})
	case ProtocolHysteria2:
		if u.Secret == "" {
			return fmt.Errorf("%w: missing secret", ErrInvalidUser)
		}
		d.hy2.Users = append(d.hy2.Users, Hysteria2User{Name: u.Username, Password: u.Secret})
	}
	return nil
}

// RemoveUser deletes username from protocol's list and reports whether it was there.
func (d *Document) RemoveUser(p Protocol, username string) (bool, error) {
	if _, err := d.FindListener(p); err != nil {
		return false, err
	}
	switch p {
	case ProtocolVLESS:
		if i := d.vless.indexOf(username); i >= 0 {
			d.vless.Users = append(d.vless.Users[:i], d.vless.Users[i+1:]...)
			return true, nil
		}
	case ProtocolHysteria2:
		if i := d.hy2.indexOf(username); i >= 0 {
			d.hy2.Users = append(d.hy2.Users[:i], d.hy2.Users[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// UpdateUserField rewrites one value of one user, leaving everything else as is.
func (d *Document) UpdateUserField(p Protocol, username string, field Field, value string) error {
	if _, err := d.FindListener(p); err != nil {
		return err
	}
	switch p {
	case ProtocolVLESS:
		i := d.vless.indexOf(username)
		if i < 0 {
			return fmt.Errorf("%w: %s in %s", ErrUserNotFound, username, p)
		}
		switch field {
		case FieldIdentifier:
			if value == "" {
				return fmt.Errorf("%w: empty identifier", ErrInvalidUser)
			}
			d.vless.Users[i].UUID = value
		case FieldFlow:
			d.vless.Users[i].Flow = value
		default:
			return fmt.Errorf("%w: %s has no %q", ErrInvalidField, p, field)
		}
	case ProtocolHysteria2:
		i := d.hy2.indexOf(username)
		if i < 0 {
			return fmt.Errorf("%w: %s in %s", ErrUserNotFound, username, p)
		}
		if field != FieldSecret {
			return fmt.Errorf("%w: %s has no %q", ErrInvalidField, p, field)
		}
		if value == "" {
			return fmt.Errorf("%w: empty secret", ErrInvalidUser)
		}
		d.hy2.Users[i].Password = value
	}
	return nil
}

// Complete reports why the document cannot be served, or nil. Incomplete
// documents are fine to list from.
func (d *Document) Complete() error {
	switch {
	case d.vless == nil || d.hy2 == nil:
		return &IncompleteError{Reason: "both listeners are required"}
	case d.vless.TLS == nil || d.vless.TLS.Reality == nil:
		return &IncompleteError{Reason: "vless listener has no tls.reality block"}
	case d.vless.TLS.Reality.PrivateKey == "":
		return &IncompleteError{Reason: "vless reality private_key is empty"}
	case d.hy2.TLS == nil || d.hy2.TLS.CertificatePath == "" || d.hy2.TLS.KeyPath == "":
		return &IncompleteError{Reason: "hysteria2 tls certificate_path/key_path not set"}
	}
	return nil
}

// Serialize renders the canonical form: keys sorted, four space indent, no
// HTML escaping. Serialize(Load(Serialize(d))) == Serialize(d).
func (d *Document) Serialize() ([]byte, error) {
	e := newEncoder(d.extra)
	inbounds := make([]json.RawMessage, 0, len(d.inbounds))
	for _, in := range d.inbounds {
		var (
			raw json.RawMessage
			err error
		)
		switch {
		case in.vless != nil:
			raw, err = in.vless.encode()
		case in.hy2 != nil:
			raw, err = in.hy2.encode()
		default:
			raw = in.raw
		}
		if err != nil {
			return nil, err
		}
		inbounds = append(inbounds, raw)
	}
	e.set("inbounds", inbounds)
	if d.outbounds != nil {
		e.obj["outbounds"] = d.outbounds
	}
	compact, err := e.done()
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "    "); err != nil {
		return nil, fmt.Errorf("indent config: %w", err)
	}
	return out.Bytes(), nil
}
