// 文件路径: internal/render/qr.go
// 模块说明: 把分享链接渲染成二维码，终端里用半块字符显示，同时可保存 PNG 图片。
package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdp/qrterminal"
	"rsc.io/qr"

	"github.com/creamcroissant/sbnode/internal/fsutil"
)

// Renderer shows links to the operator.
type Renderer interface {
	RenderTerminal(uri string) error
	RenderImage(uri, username, label string) (string, error)
}

// QR renders QR codes to a terminal writer and to PNG files under Dir.
type QR struct {
	Out   io.Writer
	Dir   string
	Scale int
	Now   func() time.Time
}

// NewQR returns a renderer writing to stdout and saving images in dir.
func NewQR(dir string) *QR {
	return &QR{Out: os.Stdout, Dir: dir, Scale: 8, Now: time.Now}
}

func (q *QR) RenderTerminal(uri string) error {
	if uri == "" {
		return fmt.Errorf("render: empty link")
	}
	out := q.Out
	if out == nil {
		out = os.Stdout
	}
	qrterminal.GenerateWithConfig(uri, terminalConfig(out))
	return nil
}

// TerminalString returns the half-block QR code for uri as text, for callers
// that lay it out themselves.
func TerminalString(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("render: empty link")
	}
	var b strings.Builder
	qrterminal.GenerateWithConfig(uri, terminalConfig(&b))
	return b.String(), nil
}

func terminalConfig(w io.Writer) qrterminal.Config {
	return qrterminal.Config{
		HalfBlocks:     true,
		Level:          qrterminal.L,
		Writer:         w,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
	}
}

// RenderImage writes <Dir>/<username>_<label>_<YYYYmmdd_HHMMSS>.png and
// returns its path.
func (q *QR) RenderImage(uri, username, label string) (string, error) {
	code, err := qr.Encode(uri, qr.L)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	if q.Scale > 0 {
		code.Scale = q.Scale
	}
	now := time.Now
	if q.Now != nil {
		now = q.Now
	}
	path := filepath.Join(q.Dir, ImageName(username, label, now()))
	if err := fsutil.WriteFile(path, code.PNG(), 0o644); err != nil {
		return "", fmt.Errorf("save qr image: %w", err)
	}
	return path, nil
}

// ImageName builds the PNG file name. Spaces and path separators become '_';
// an empty label falls back to the username.
func ImageName(username, label string, at time.Time) string {
	if label == "" {
		label = username
	}
	clean := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return fmt.Sprintf("%s_%s_%s.png", clean.Replace(username), clean.Replace(label), at.Format("20060102_150405"))
}
