package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/creamcroissant/sbnode/internal/service"
)

// ViewType 表示当前视图
type ViewType int

const (
	ViewUserList   ViewType = iota // 用户列表
	ViewUserDetail                 // 用户详情与二维码
)

// Lister 提供用户列表，*service.Manager 满足该接口
type Lister interface {
	ListUsers(ctx context.Context) (*service.Listing, error)
}

// QRFunc 把链接渲染为终端文本
type QRFunc func(uri string) (string, error)

// Model 是主 TUI 模型
type Model struct {
	// 数据
	host     string
	users    []service.UserView
	warnings []service.Warning
	selected int

	// 视图状态
	view        ViewType
	detail      *service.UserView
	linkIndex   int
	qr          string
	qrErr       error
	showQR      bool
	scroll      int
	loadTimeout time.Duration

	lister Lister
	render QRFunc

	// 终端尺寸
	width  int
	height int

	// 状态
	loading bool
	err     error

	// 按键绑定
	keys keyMap
}

// keyMap 定义全部按键绑定
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Enter   key.Binding
	Tab     key.Binding
	QR      key.Binding
	Back    key.Binding
	Quit    key.Binding
	Refresh key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next link"),
		),
		QR: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "toggle qr"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "backspace"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// NewModel 创建新的 TUI 模型；render 为 nil 时不显示二维码
func NewModel(lister Lister, render QRFunc) Model {
	return Model{
		lister:      lister,
		render:      render,
		view:        ViewUserList,
		showQR:      render != nil,
		loadTimeout: 30 * time.Second,
		keys:        defaultKeyMap(),
		loading:     true,
	}
}

// Init 实现 tea.Model
func (m Model) Init() tea.Cmd {
	return m.loadUsers()
}

// 消息类型

type usersLoadedMsg struct {
	listing *service.Listing
}

type errorMsg struct {
	err error
}

// 命令

func (m Model) loadUsers() tea.Cmd {
	lister, timeout := m.lister, m.loadTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		listing, err := lister.ListUsers(ctx)
		if err != nil {
			return errorMsg{err: err}
		}
		return usersLoadedMsg{listing: listing}
	}
}

// 辅助函数

// currentLink 返回详情视图中选中的链接
func (m Model) currentLink() (service.Link, bool) {
	if m.detail == nil || len(m.detail.Links) == 0 {
		return service.Link{}, false
	}
	return m.detail.Links[m.linkIndex%len(m.detail.Links)], true
}

// refreshQR 重新渲染当前链接的二维码
func (m *Model) refreshQR() {
	m.qr, m.qrErr = "", nil
	if m.render == nil || !m.showQR {
		return
	}
	link, ok := m.currentLink()
	if !ok {
		return
	}
	m.qr, m.qrErr = m.render(link.URI)
}
