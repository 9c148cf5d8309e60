package initsys

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Systemd implements InitSystem for systemd-based systems.
type Systemd struct {
	base
}

func (s *Systemd) Type() string {
	return "systemd"
}

func (s *Systemd) Start(ctx context.Context, service string) error {
	return s.run(ctx, fmt.Sprintf("systemctl start %s", service))
}

func (s *Systemd) Stop(ctx context.Context, service string) error {
	return s.run(ctx, fmt.Sprintf("systemctl stop %s", service))
}

func (s *Systemd) Restart(ctx context.Context, service string) error {
	return s.run(ctx, fmt.Sprintf("systemctl restart %s", service))
}

func (s *Systemd) Status(ctx context.Context, service string) (bool, error) {
	output, ok, err := s.probeStatus(ctx, fmt.Sprintf("systemctl is-active %s", service))
	if err != nil || !ok {
		// is-active exits non-zero when the unit is not active
		return false, err
	}
	return strings.TrimSpace(output) == "active", nil
}

func (s *Systemd) Enable(ctx context.Context, service string) error {
	return s.run(ctx, fmt.Sprintf("systemctl enable %s", service))
}

func (s *Systemd) Disable(ctx context.Context, service string) error {
	return s.run(ctx, fmt.Sprintf("systemctl disable %s", service))
}

func (s *Systemd) Logs(ctx context.Context, service string, lines int, follow bool, w io.Writer) error {
	if lines <= 0 {
		lines = 50
	}
	cmd := fmt.Sprintf("journalctl -u %s -n %d --no-pager", service, lines)
	if follow {
		cmd += " -f"
	}
	return s.stream(ctx, cmd, w)
}
