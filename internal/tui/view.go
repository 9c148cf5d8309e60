package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/creamcroissant/sbnode/internal/document"
	"github.com/creamcroissant/sbnode/internal/service"
)

// View 实现 tea.Model
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.view {
	case ViewUserDetail:
		return m.renderUserDetailView()
	default:
		return m.renderUserListView()
	}
}

func (m Model) renderUserListView() string {
	var b strings.Builder

	// 头部
	title := "  sbnode users"
	if m.host != "" {
		title += " @ " + m.host
	}
	b.WriteString(styleHeader.Width(m.width).Render(title))
	b.WriteString("\n\n")

	m.writeStatus(&b)

	// 表头
	tableHeader := fmt.Sprintf("  %-20s │ %-24s │ %s", "Username", "Label", "Protocols")
	b.WriteString(styleTableHeader.Width(m.width).Render(tableHeader))
	b.WriteString("\n")
	b.WriteString(styleMuted().Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	if len(m.users) == 0 {
		if !m.loading && m.err == nil {
			b.WriteString(styleMuted().Render("  No users yet. Run `sbnode user add` first."))
			b.WriteString("\n")
		}
	} else {
		visibleRows := max(m.height-12, 5)

		startIdx := 0
		if m.selected >= visibleRows {
			startIdx = m.selected - visibleRows + 1
		}
		endIdx := min(startIdx+visibleRows, len(m.users))

		for i := startIdx; i < endIdx; i++ {
			b.WriteString(m.renderUserRow(m.users[i], i == m.selected))
			b.WriteString("\n")
		}

		// 滚动提示
		if len(m.users) > visibleRows {
			scrollInfo := fmt.Sprintf("  Showing %d-%d of %d users", startIdx+1, endIdx, len(m.users))
			b.WriteString(styleMuted().Render(scrollInfo))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderSummary())
	b.WriteString("\n\n")
	b.WriteString(styleHelp.Render("  [↑/↓] Navigate  [Enter] Details  [r] Refresh  [q] Quit"))

	return b.String()
}

func (m Model) renderUserRow(u service.UserView, selected bool) string {
	label := u.Label
	if label == "" {
		label = styleMuted().Render("-")
	}
	row := fmt.Sprintf("  %-20s │ %-24s │ %s",
		truncate(u.Username, 20),
		truncate(label, 24),
		ProtocolMarks(u.InVLESS, u.InHysteria2),
	)
	if u.Partial() {
		row += "  " + styleWarning.Render("partial")
	}

	if selected {
		return styleTableRowSelected.Width(m.width).Render("▶" + row[1:])
	}
	return styleTableRow.Render(row)
}

func (m Model) renderSummary() string {
	partial := 0
	for _, u := range m.users {
		if u.Partial() {
			partial++
		}
	}
	s := fmt.Sprintf("  Total: %d users", len(m.users))
	if partial > 0 {
		s += "  " + styleWarning.Render(fmt.Sprintf("%d partial", partial))
	}
	return s
}

// writeStatus 输出错误、加载与警告提示
func (m Model) writeStatus(b *strings.Builder) {
	if m.err != nil {
		b.WriteString(styleError.Render(fmt.Sprintf("  Error: %v", m.err)))
		b.WriteString("\n\n")
	}
	if m.loading {
		b.WriteString(styleMuted().Render("  Loading..."))
		b.WriteString("\n\n")
	}
	for _, w := range m.warnings {
		b.WriteString(styleWarning.Render("  ! " + w.String()))
		b.WriteString("\n")
	}
	if len(m.warnings) > 0 {
		b.WriteString("\n")
	}
}

func (m Model) renderUserDetailView() string {
	if m.detail == nil {
		return m.renderUserListView()
	}
	u := m.detail

	header := styleHeader.Width(m.width).Render("  User: " + u.Username)
	help := styleHelp.Render("  [↑/↓] Scroll  [Tab] Next link  [v] QR  [Esc] Back  [q] Quit")

	lines := m.detailLines()
	viewport := m.viewportHeight()
	scroll := min(m.scroll, max(len(lines)-viewport, 0))
	end := min(scroll+viewport, len(lines))

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(lines[scroll:end], "\n"))
	b.WriteString("\n\n")
	b.WriteString(help)
	return b.String()
}

// detailLines 生成详情视图的全部行，供渲染与滚动计算共用
func (m Model) detailLines() []string {
	u := m.detail
	if u == nil {
		return nil
	}
	var b strings.Builder
	field := func(name, value string) {
		if value == "" {
			value = styleMuted().Render("-")
		}
		b.WriteString("  " + styleLabel.Render(name) + styleValue.Render(value) + "\n")
	}

	field("Label", u.Label)
	field("Protocols", ProtocolMarks(u.InVLESS, u.InHysteria2))
	if u.InVLESS {
		field("UUID", u.Identifier)
		field("Flow", u.Flow)
	}
	if u.InHysteria2 {
		field("Password", u.Secret)
	}
	if u.Partial() {
		b.WriteString("  " + styleWarning.Render("User is present in only one listener.") + "\n")
	}
	b.WriteString("\n")

	if len(u.Links) == 0 {
		b.WriteString(styleMuted().Render("  No links available, see warnings on the list view."))
		b.WriteString("\n")
		return strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	}

	for i, l := range u.Links {
		marker := "  "
		if i == m.linkIndex%len(u.Links) {
			marker = styleOK.Render("▶ ")
		}
		b.WriteString(marker + styleLabel.Render(protocolName(l.Protocol)) + wrap(l.URI, m.width-16, 14) + "\n")
	}

	switch {
	case m.qrErr != nil:
		b.WriteString("\n" + styleError.Render(fmt.Sprintf("  QR: %v", m.qrErr)) + "\n")
	case m.qr != "":
		link, _ := m.currentLink()
		b.WriteString("\n" + styleMuted().Render("  QR for "+protocolName(link.Protocol)) + "\n")
		b.WriteString(lipgloss.NewStyle().MarginLeft(2).Render(strings.TrimRight(m.qr, "\n")))
		b.WriteString("\n")
	}
	return strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
}

func (m Model) viewportHeight() int {
	return max(m.height-5, 5)
}

func (m Model) maxScroll() int {
	return max(len(m.detailLines())-m.viewportHeight(), 0)
}

func protocolName(p document.Protocol) string {
	switch p {
	case document.ProtocolVLESS:
		return "VLESS"
	case document.ProtocolHysteria2:
		return "Hysteria2"
	}
	return string(p)
}

// truncate 按字符截断，超出部分以 ... 结尾
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// wrap 把长链接折行，续行缩进 indent 个空格
func wrap(s string, width, indent int) string {
	if width < 20 || len(s) <= width {
		return s
	}
	var parts []string
	for len(s) > width {
		parts = append(parts, s[:width])
		s = s[width:]
	}
	parts = append(parts, s)
	return strings.Join(parts, "\n"+strings.Repeat(" ", indent))
}
