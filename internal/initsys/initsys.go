// Package initsys controls the sing-box service through whatever init system
// the host runs (systemd, OpenRC, runit or operator supplied commands).
package initsys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/creamcroissant/sbnode/internal/support/execx"
)

// defaultTimeout bounds a single command when the caller set no deadline.
const defaultTimeout = 30 * time.Second

var (
	ErrNoInitSystem = errors.New("initsys: no supported init system found")
	ErrUnsupported  = errors.New("initsys: operation not supported")
)

// InitSystem defines service management across init systems.
type InitSystem interface {
	// Type returns the init system identifier
	Type() string

	Start(ctx context.Context, service string) error
	Stop(ctx context.Context, service string) error
	Restart(ctx context.Context, service string) error

	// Status reports whether the service is running. A stopped service is
	// (false, nil); an error means the init system could not be asked.
	Status(ctx context.Context, service string) (running bool, err error)

	Enable(ctx context.Context, service string) error
	Disable(ctx context.Context, service string) error

	// Logs writes the last lines of the service log to w, then keeps
	// streaming when follow is set until ctx is done.
	Logs(ctx context.Context, service string, lines int, follow bool, w io.Writer) error
}

// Config holds the configuration for init system detection and custom commands.
type Config struct {
	// Type specifies the init system type: auto, systemd, openrc, runit, custom
	Type string `yaml:"type" mapstructure:"type"`

	// ServiceName is the name of the service to manage
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`

	// Custom commands for when Type is "custom"
	Custom CustomCommands `yaml:"custom" mapstructure:"custom"`
}

// CustomCommands defines custom shell commands for service control.
// {{service}} is replaced by the service name.
type CustomCommands struct {
	Start   string `yaml:"start" mapstructure:"start"`
	Stop    string `yaml:"stop" mapstructure:"stop"`
	Restart string `yaml:"restart" mapstructure:"restart"`
	Status  string `yaml:"status" mapstructure:"status"`
	Enable  string `yaml:"enable" mapstructure:"enable"`
	Disable string `yaml:"disable" mapstructure:"disable"`
	Logs    string `yaml:"logs" mapstructure:"logs"`
}

// New creates an InitSystem based on the provided configuration.
// If cfg.Type is "auto", the init system is detected.
func New(cfg Config, runner execx.Runner, logger *slog.Logger) (InitSystem, error) {
	if runner == nil {
		runner = execx.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := base{runner: runner, logger: logger}

	typ := strings.ToLower(cfg.Type)
	if typ == "auto" || typ == "" {
		typ = Detect()
		if typ == "" {
			return nil, ErrNoInitSystem
		}
	}
	switch typ {
	case "systemd":
		return &Systemd{base: b}, nil
	case "openrc":
		return &OpenRC{base: b}, nil
	case "runit":
		return &Runit{base: b}, nil
	case "custom":
		if cfg.Custom.Start == "" || cfg.Custom.Stop == "" {
			return nil, fmt.Errorf("custom init system requires at least start and stop commands")
		}
		return &Custom{base: b, commands: cfg.Custom}, nil
	default:
		return nil, fmt.Errorf("unknown init system type: %s", cfg.Type)
	}
}

// detectPaths maps marker paths to init system types, checked in order.
var detectPaths = []struct{ path, typ string }{
	{"/run/systemd/system", "systemd"},
	{"/sbin/rc-service", "openrc"},
	{"/sbin/openrc", "openrc"},
	{"/run/runit", "runit"},
}

// Detect returns the host's init system type, or "" when none is recognised.
func Detect() string {
	for _, m := range detectPaths {
		if _, err := os.Stat(m.path); err == nil {
			return m.typ
		}
	}
	return ""
}

// Service binds an InitSystem to one service name.
type Service struct {
	Sys  InitSystem
	Name string
}

func (s Service) Start(ctx context.Context) error   { return s.Sys.Start(ctx, s.Name) }
func (s Service) Stop(ctx context.Context) error    { return s.Sys.Stop(ctx, s.Name) }
func (s Service) Restart(ctx context.Context) error { return s.Sys.Restart(ctx, s.Name) }

func (s Service) Status(ctx context.Context) (bool, error) { return s.Sys.Status(ctx, s.Name) }

func (s Service) Logs(ctx context.Context, lines int, follow bool, w io.Writer) error {
	return s.Sys.Logs(ctx, s.Name, lines, follow, w)
}

// Type reports the underlying init system.
func (s Service) Type() string { return s.Sys.Type() }

type base struct {
	runner execx.Runner
	logger *slog.Logger
}

// run executes a command line with a default timeout.
func (b base) run(ctx context.Context, command string) error {
	_, err := b.output(ctx, command)
	return err
}

func (b base) output(ctx context.Context, command string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	name, args, err := splitCommand(command)
	if err != nil {
		return "", err
	}
	b.logger.Debug("initsys exec", "command", command)
	out, err := b.runner.Run(ctx, name, args...)
	if err != nil {
		b.logger.Debug("initsys exec failed", "command", command, "error", err)
		return string(out), err
	}
	return string(out), nil
}

func (b base) stream(ctx context.Context, command string, w io.Writer) error {
	name, args, err := splitCommand(command)
	if err != nil {
		return err
	}
	b.logger.Debug("initsys stream", "command", command)
	return b.runner.Stream(ctx, w, name, args...)
}

// probeStatus runs a status command. A command that ran and exited non-zero
// means "not running"; anything else (missing binary, timeout) is an error.
func (b base) probeStatus(ctx context.Context, command string) (string, bool, error) {
	out, err := b.output(ctx, command)
	if err == nil {
		return out, true, nil
	}
	var exitErr *execx.ExitError
	if errors.As(err, &exitErr) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) && !execx.IsNotFound(err) {
		return out, false, nil
	}
	return out, false, err
}

func tailCommand(path string, lines int, follow bool) string {
	if lines <= 0 {
		lines = 50
	}
	cmd := fmt.Sprintf("tail -n %d", lines)
	if follow {
		cmd += " -f"
	}
	return cmd + " " + path
}

func splitCommand(command string) (string, []string, error) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return "", nil, fmt.Errorf("command is required")
	}

	parts := make([]string, 0, 4)
	var buf strings.Builder
	inSingle := false
	inDouble := false
	escaped := false

	for _, r := range trimmed {
		switch {
		case escaped:
			buf.WriteRune(r)
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case !inSingle && !inDouble && (r == ' ' || r == '\t' || r == '\n'):
			if buf.Len() > 0 {
				parts = append(parts, buf.String())
				buf.Reset()
			}
		default:
			buf.WriteRune(r)
		}
	}

	if escaped || inSingle || inDouble {
		return "", nil, fmt.Errorf("invalid command: unclosed quote or escape")
	}
	if buf.Len() > 0 {
		parts = append(parts, buf.String())
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("command is required")
	}
	return parts[0], parts[1:], nil
}
