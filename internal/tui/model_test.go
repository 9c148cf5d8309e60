package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/service"
)

type fakeLister struct {
	listing *service.Listing
	err     error
	calls   int
}

func (f *fakeLister) ListUsers(context.Context) (*service.Listing, error) {
	f.calls++
	return f.listing, f.err
}

func sampleListing() *service.Listing {
	return &service.Listing{
		Host: "203.0.113.7",
		Users: []service.UserView{
			{
				Username: "alice", Label: "Home", Identifier: "id-a", Flow: "xtls-rprx-vision", Secret: "pw-a",
				InVLESS: true, InHysteria2: true,
				Links: []service.Link{
					{Protocol: document.ProtocolVLESS, URI: "vless://id-a@203.0.113.7:443#Home"},
					{Protocol: document.ProtocolHysteria2, URI: "hysteria2://pw-a@203.0.113.7:8443#Home"},
				},
			},
			{
				Username: "bob", Secret: "pw-b", InHysteria2: true,
				Links: []service.Link{
					{Protocol: document.ProtocolHysteria2, URI: "hysteria2://pw-b@203.0.113.7:8443#bob"},
				},
			},
		},
		Warnings: []service.Warning{{Step: "load node names", Err: errors.New("corrupt")}},
	}
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func loaded(t *testing.T, lister *fakeLister, qr QRFunc) Model {
	t.Helper()
	m := NewModel(lister, qr)
	msg := m.Init()()
	return send(t, m, tea.WindowSizeMsg{Width: 120, Height: 60}, msg)
}

func TestListView(t *testing.T) {
	m := loaded(t, &fakeLister{listing: sampleListing()}, nil)

	out := m.View()
	assert.Contains(t, out, "203.0.113.7")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "Home")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "load node names: corrupt")
	assert.Contains(t, out, "Total: 2 users")
}

func TestLoadError(t *testing.T) {
	m := loaded(t, &fakeLister{err: service.ErrConfigMissing}, nil)
	assert.Contains(t, m.View(), "Error:")
	assert.False(t, m.loading)
}

func TestNavigationWraps(t *testing.T) {
	m := loaded(t, &fakeLister{listing: sampleListing()}, nil)

	m = send(t, m, keyPress("up"))
	assert.Equal(t, 1, m.selected)
	m = send(t, m, keyPress("down"))
	assert.Equal(t, 0, m.selected)
}

func TestDetailCyclesLinks(t *testing.T) {
	var rendered []string
	qr := func(uri string) (string, error) {
		rendered = append(rendered, uri)
		return "QRCODE", nil
	}
	m := loaded(t, &fakeLister{listing: sampleListing()}, qr)

	m = send(t, m, keyPress("enter"))
	require.Equal(t, ViewUserDetail, m.view)
	out := m.View()
	assert.Contains(t, out, "User: alice")
	assert.Contains(t, out, "id-a")
	assert.Contains(t, out, "QRCODE")
	assert.Contains(t, out, "QR for VLESS")

	m = send(t, m, keyPress("tab"))
	assert.Contains(t, m.View(), "QR for Hysteria2")
	assert.Equal(t, []string{
		"vless://id-a@203.0.113.7:443#Home",
		"hysteria2://pw-a@203.0.113.7:8443#Home",
	}, rendered)

	m = send(t, m, keyPress("v"))
	assert.NotContains(t, m.View(), "QRCODE")

	m = send(t, m, keyPress("esc"))
	assert.Equal(t, ViewUserList, m.view)
	assert.Nil(t, m.detail)
}

func TestQRErrorShown(t *testing.T) {
	qr := func(string) (string, error) { return "", errors.New("too long") }
	m := loaded(t, &fakeLister{listing: sampleListing()}, qr)

	m = send(t, m, keyPress("enter"))
	assert.Contains(t, m.View(), "QR: too long")
}

func TestRefreshLeavesDetailOfDeletedUser(t *testing.T) {
	lister := &fakeLister{listing: sampleListing()}
	m := loaded(t, lister, nil)
	m = send(t, m, keyPress("down"), keyPress("enter"))
	require.Equal(t, "bob", m.detail.Username)

	next, cmd := m.Update(keyPress("r"))
	m = next.(Model)
	assert.True(t, m.loading)
	require.NotNil(t, cmd)

	// bob has been deleted meanwhile
	lister.listing = &service.Listing{Users: sampleListing().Users[:1]}
	m = send(t, m, cmd())
	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, ViewUserList, m.view)
	assert.Equal(t, 0, m.selected)
}

func TestQuit(t *testing.T) {
	m := loaded(t, &fakeLister{listing: sampleListing()}, nil)
	_, cmd := m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
