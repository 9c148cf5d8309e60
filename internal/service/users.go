// 文件路径: internal/service/users.go
// 模块说明: 用户的增删改查；主配置与附属文件总是在同一次提交里写入。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/repository"
	"github.com/creamcroissant/sbnode/internal/sidestate"
)

// UserView is one username joined across both listeners.
type UserView struct {
	Username    string
	Label       string
	Identifier  string
	Flow        string
	Secret      string
	InVLESS     bool
	InHysteria2 bool
	Links       []Link
}

// Partial reports a user present in only one listener.
func (u UserView) Partial() bool { return !(u.InVLESS && u.InHysteria2) }

// Listing is the result of ListUsers.
type Listing struct {
	Host     string
	Users    []UserView
	Warnings []Warning
}

// ListUsers joins both user lists by username (VLESS order first, then
// Hysteria2-only users) and derives their links. It never writes.
func (m *Manager) ListUsers(ctx context.Context) (_ *Listing, err error) {
	defer m.observe("list_users", &err)

	doc, err := m.loadDocument()
	if err != nil {
		return nil, err
	}
	keys, haveKeys, err := m.store.LoadKeys()
	if err != nil {
		return nil, sideStateErr(err)
	}

	out := &Listing{}
	if !haveKeys {
		out.Warnings = append(out.Warnings, Warning{Step: "load reality keys", Err: ErrKeysMissing})
	}
	if err := checkKeys(doc, keys); err != nil {
		out.Warnings = append(out.Warnings, Warning{Step: "check reality keys", Err: err})
	}
	names, err := m.store.LoadNodeNames()
	if err != nil {
		out.Warnings = append(out.Warnings, Warning{Step: "load display labels", Err: sideStateErr(err)})
		names = sidestate.NodeNames{}
	}

	views := joinUsers(doc)
	if len(views) > 0 {
		host, err := m.resolveHost(ctx)
		if err != nil {
			return nil, err
		}
		out.Host = host
	}
	in := linkInputs{host: out.Host, keys: keys, haveKeys: haveKeys}
	for i := range views {
		views[i].Label = names.Label(views[i].Username)
		links, warns := m.deriveLinks(doc, views[i].Username, views[i].Label, in)
		views[i].Links = links
		if haveKeys {
			out.Warnings = append(out.Warnings, warns...)
		}
	}
	out.Users = views
	m.syncUserGauge(doc)
	return out, nil
}

// Usernames lists the configured users with their display labels and no
// links. It reads only the main config and node_names.json, so it works
// offline and with a damaged keys.json. It never writes.
func (m *Manager) Usernames(ctx context.Context) (_ []UserView, err error) {
	defer m.observe("list_usernames", &err)

	doc, err := m.loadDocument()
	if err != nil {
		return nil, err
	}
	names, err := m.store.LoadNodeNames()
	if err != nil {
		m.logger.Warn("display labels unreadable, showing usernames", "op", "list_usernames", "error", err)
		names = sidestate.NodeNames{}
	}
	views := joinUsers(doc)
	for i := range views {
		views[i].Label = names.Label(views[i].Username)
	}
	return views, nil
}

func joinUsers(doc *document.Document) []UserView {
	var views []UserView
	index := map[string]int{}
	if v := doc.VLESS(); v != nil {
		for _, u := range v.Users {
			index[u.Name] = len(views)
			views = append(views, UserView{Username: u.Name, Identifier: u.UUID, Flow: u.Flow, InVLESS: true})
		}
	}
	if h := doc.Hysteria2(); h != nil {
		for _, u := range h.Users {
			if i, ok := index[u.Name]; ok {
				views[i].Secret = u.Password
				views[i].InHysteria2 = true
				continue
			}
			index[u.Name] = len(views)
			views = append(views, UserView{Username: u.Name, Secret: u.Password, InHysteria2: true})
		}
	}
	return views
}

// AddUserRequest describes a new account. Label is optional.
type AddUserRequest struct {
	Username string
	Label    string
}

// AddUser appends the user to both listeners in one commit, restarts the
// service and returns the new links.
func (m *Manager) AddUser(ctx context.Context, req AddUserRequest) (_ *Result, err error) {
	defer m.observe("add_user", &err)

	username, err := normalizeName("username", req.Username)
	if err != nil {
		return nil, err
	}
	label, err := normalizeLabel(req.Label)
	if err != nil {
		return nil, err
	}

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := m.loadWritable()
	if err != nil {
		return nil, err
	}
	for _, p := range document.Protocols {
		if doc.HasUser(p, username) {
			return nil, fmt.Errorf("%w: %q (%s)", ErrConflict, username, p)
		}
	}
	if _, _, err := m.store.LoadKeys(); err != nil {
		return nil, sideStateErr(err)
	}
	changes := repository.Changes{Document: doc}
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
	secret, err := m.gen.NewSharedSecret(m.settings.SecretLength)
	if err != nil {
		return nil, err
	}

	reopenVLESS := len(doc.VLESS().Users) == 0
	reopenHy2 := len(doc.Hysteria2().Users) == 0
	if err := doc.AddUser(document.ProtocolVLESS, document.UserCredential{Username: username, Identifier: identifier, Flow: m.settings.Flow}); err != nil {
		return nil, fmt.Errorf("add %q: %w", username, err)
	}
	if err := doc.AddUser(document.ProtocolHysteria2, document.UserCredential{Username: username, Secret: secret}); err != nil {
		return nil, fmt.Errorf("add %q: %w", username, err)
	}

	written, err := m.commit(changes)
	if err != nil {
		return nil, err
	}
	m.logger.Info("user added", "op", "add_user", "user", username)
	res := &Result{Written: written.Written}

	// A listener emptied by an earlier delete may have had its port closed.
	if m.settings.CloseEmptyListeners {
		if reopenVLESS {
			m.allowPort(ctx, doc.VLESS().Port, res)
		}
		if reopenHy2 {
			m.allowPort(ctx, doc.Hysteria2().Port, res)
		}
	}
	m.restart(ctx, res)
	m.publish(ctx, doc, username, res)
	m.syncUserGauge(doc)
	return res, nil
}

// DeleteUser removes the user from both listeners and drops their label.
func (m *Manager) DeleteUser(ctx context.Context, username string) (_ *Result, err error) {
	defer m.observe("delete_user", &err)

	username, err = normalizeName("username", username)
	if err != nil {
		return nil, err
	}
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := m.loadWritable()
	if err != nil {
		return nil, err
	}
	if !doc.HasUser(document.ProtocolVLESS, username) && !doc.HasUser(document.ProtocolHysteria2, username) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, username)
	}
	if err := m.confirm(fmt.Sprintf("Delete user %q from both listeners", username)); err != nil {
		return nil, err
	}

	res := &Result{Username: username}
	for _, p := range document.Protocols {
		if _, err := doc.RemoveUser(p, username); err != nil {
			return nil, fmt.Errorf("remove %q: %w", username, err)
		}
	}
	changes := repository.Changes{Document: doc}
	names, err := m.store.LoadNodeNames()
	switch {
	case err != nil:
		res.warn("remove display label", sideStateErr(err))
	case names[username] != "":
		changes.NodeNames = names.Clone()
		delete(changes.NodeNames, username)
	}

	written, err := m.commit(changes)
	if err != nil {
		return nil, err
	}
	res.Written = written.Written
	m.logger.Info("user deleted", "op", "delete_user", "user", username)

	if m.settings.CloseEmptyListeners {
		if len(doc.VLESS().Users) == 0 {
			m.denyPort(ctx, doc.VLESS().Port, res)
		}
		if len(doc.Hysteria2().Users) == 0 {
			m.denyPort(ctx, doc.Hysteria2().Port, res)
		}
	}
	m.restart(ctx, res)
	m.syncUserGauge(doc)
	return res, nil
}

// RegenerateIdentifier gives the user a new VLESS uuid; flow and every other
// field stay as they are.
func (m *Manager) RegenerateIdentifier(ctx context.Context, username string) (_ *Result, err error) {
	defer m.observe("regenerate_identifier", &err)

	return m.rewriteField(ctx, username, document.ProtocolVLESS, document.FieldIdentifier, func() (string, error) {
		return m.gen.NewUserIdentifier()
	})
}

// RegenerateSecret replaces the user's Hysteria2 password. An empty secret
// means generate one.
func (m *Manager) RegenerateSecret(ctx context.Context, username, secret string) (_ *Result, err error) {
	defer m.observe("regenerate_secret", &err)

	if secret != "" {
		if strings.TrimSpace(secret) != secret || strings.IndexFunc(secret, unicode.IsControl) >= 0 {
			return nil, fmt.Errorf("%w: secret must not have surrounding spaces or control characters", ErrInvalidInput)
		}
	}
	return m.rewriteField(ctx, username, document.ProtocolHysteria2, document.FieldSecret, func() (string, error) {
		if secret != "" {
			return secret, nil
		}
		return m.gen.NewSharedSecret(m.settings.SecretLength)
	})
}

func (m *Manager) rewriteField(ctx context.Context, username string, p document.Protocol, field document.Field, next func() (string, error)) (*Result, error) {
	username, err := normalizeName("username", username)
	if err != nil {
		return nil, err
	}
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := m.loadWritable()
	if err != nil {
		return nil, err
	}
	if !doc.HasUser(p, username) {
		return nil, fmt.Errorf("%w: %q has no %s account", ErrNotFound, username, p)
	}
	if err := m.confirm(fmt.Sprintf("Replace the %s %s of %q", p, field, username)); err != nil {
		return nil, err
	}
	value, err := next()
	if err != nil {
		return nil, err
	}
	if err := doc.UpdateUserField(p, username, field, value); err != nil {
		return nil, fmt.Errorf("update %q: %w", username, err)
	}

	written, err := m.commit(repository.Changes{Document: doc})
	if err != nil {
		return nil, err
	}
	m.logger.Info("user credential replaced", "op", "modify_user", "user", username, "protocol", p, "field", field)
	res := &Result{Written: written.Written}
	m.restart(ctx, res)
	m.publish(ctx, doc, username, res)
	return res, nil
}

// SetDisplayLabel changes only node_names.json; the proxy is not restarted.
// An empty label resets it to the username.
func (m *Manager) SetDisplayLabel(ctx context.Context, username, label string) (_ *Result, err error) {
	defer m.observe("set_label", &err)

	username, err = normalizeName("username", username)
	if err != nil {
		return nil, err
	}
	label, err = normalizeLabel(label)
	if err != nil {
		return nil, err
	}
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := m.loadDocument()
	if err != nil {
		return nil, err
	}
	if !doc.HasUser(document.ProtocolVLESS, username) && !doc.HasUser(document.ProtocolHysteria2, username) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, username)
	}
	names, err := m.loadNodeNames()
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("Set the display label of %q to %q", username, label)
	if label == "" {
		prompt = fmt.Sprintf("Reset the display label of %q", username)
	}
	if err := m.confirm(prompt); err != nil {
		return nil, err
	}

	next := names.Clone()
	if label == "" || label == username {
		delete(next, username)
	} else {
		next[username] = label
	}
	written, err := m.commit(repository.Changes{NodeNames: next})
	if err != nil {
		return nil, err
	}
	m.logger.Info("display label changed", "op", "set_label", "user", username, "label", label)
	res := &Result{Written: written.Written}
	m.publish(ctx, doc, username, res)
	return res, nil
}

// IsRecoverable reports errors that should be shown to the operator rather
// than treated as a crash.
func IsRecoverable(err error) bool {
	for _, target := range []error{
		ErrConfigMissing, ErrConfigMalformed, ErrIncomplete, ErrConflict, ErrNotFound,
		ErrCorruptSideState, ErrAborted, ErrInvalidInput, ErrCollaborator,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
