package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/creamcroissant/sbnode/internal/filelock"
	"github.com/creamcroissant/sbnode/internal/service"
)

// Build info - injected via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	configFile string
	assumeYes  bool
	noQR       bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sbnode",
	Short: "sing-box VLESS-Reality + Hysteria2 node manager",
	Long: `sbnode manages a sing-box server configuration with one VLESS-Reality and one
Hysteria2 listener: users, share links, the service and the firewall.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to sbnode.yaml (default ./sbnode.yaml or /etc/sbnode/sbnode.yaml)")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")
	flags.BoolVar(&noQR, "no-qr", false, "Do not render QR codes")
	flags.StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCode(err))
}

// exitCode 把错误分类映射为退出码：1 为可恢复的操作错误，2 为取消，3 为锁冲突，其余为 4
func exitCode(err error) int {
	switch {
	case errors.Is(err, service.ErrAborted):
		return 2
	case errors.Is(err, filelock.ErrLocked):
		return 3
	case service.IsRecoverable(err):
		return 1
	default:
		return 4
	}
}
