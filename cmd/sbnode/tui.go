package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/creamcroissant/sbnode/internal/render"
	"github.com/creamcroissant/sbnode/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive user browser",
	Long:  "Launch an interactive terminal UI to browse users, their share links and QR codes.",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		var qr tui.QRFunc
		if !noQR {
			qr = render.TerminalString
		}
		model := tui.NewModel(a.manager, qr)

		p := tea.NewProgram(
			model,
			tea.WithAltScreen(),
			tea.WithContext(ctx),
		)

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	})
}
