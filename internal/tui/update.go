package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case usersLoadedMsg:
		m.loading = false
		m.err = nil
		m.host = msg.listing.Host
		m.users = msg.listing.Users
		m.warnings = msg.listing.Warnings
		if m.selected >= len(m.users) {
			m.selected = max(len(m.users)-1, 0)
		}

		// Keep the detail view pointed at the same user after a reload
		if m.view == ViewUserDetail && m.detail != nil {
			name := m.detail.Username
			m.detail = nil
			for i := range m.users {
				if m.users[i].Username == name {
					m.detail = &m.users[i]
					m.selected = i
					break
				}
			}
			if m.detail == nil {
				m.view = ViewUserList
			}
			m.refreshQR()
		}
		return m, nil

	case errorMsg:
		m.loading = false
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		return m.handleUp()

	case key.Matches(msg, m.keys.Down):
		return m.handleDown()

	case key.Matches(msg, m.keys.Enter):
		return m.handleEnter()

	case key.Matches(msg, m.keys.Tab):
		return m.handleTab()

	case key.Matches(msg, m.keys.QR):
		if m.render != nil {
			m.showQR = !m.showQR
			m.refreshQR()
		}
		return m, nil

	case key.Matches(msg, m.keys.Back):
		return m.handleBack()

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, m.loadUsers()
	}

	return m, nil
}

func (m Model) handleUp() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewUserList:
		if len(m.users) > 0 {
			m.selected--
			if m.selected < 0 {
				m.selected = len(m.users) - 1
			}
		}
	case ViewUserDetail:
		if m.scroll > 0 {
			m.scroll--
		}
	}
	return m, nil
}

func (m Model) handleDown() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewUserList:
		if len(m.users) > 0 {
			m.selected++
			if m.selected >= len(m.users) {
				m.selected = 0
			}
		}
	case ViewUserDetail:
		// clamped again when rendering
		if m.scroll < m.maxScroll() {
			m.scroll++
		}
	}
	return m, nil
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	if m.view == ViewUserList && len(m.users) > 0 {
		m.detail = &m.users[m.selected]
		m.view = ViewUserDetail
		m.linkIndex = 0
		m.scroll = 0
		m.refreshQR()
	}
	return m, nil
}

func (m Model) handleTab() (tea.Model, tea.Cmd) {
	if m.view == ViewUserDetail && m.detail != nil && len(m.detail.Links) > 1 {
		m.linkIndex = (m.linkIndex + 1) % len(m.detail.Links)
		m.scroll = 0
		m.refreshQR()
	}
	return m, nil
}

func (m Model) handleBack() (tea.Model, tea.Cmd) {
	if m.view == ViewUserDetail {
		m.view = ViewUserList
		m.detail = nil
		m.qr, m.qrErr = "", nil
	}
	return m, nil
}
