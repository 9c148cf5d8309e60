package initsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Runit implements InitSystem for runit-based systems (Void Linux, some containers).
type Runit struct {
	base
	// ServiceDir is the directory containing service links (default: /var/service)
	ServiceDir string
}

func (r *Runit) serviceDir() string {
	if r.ServiceDir != "" {
		return r.ServiceDir
	}
	return "/var/service"
}

func (r *Runit) Type() string {
	return "runit"
}

func (r *Runit) Start(ctx context.Context, service string) error {
	return r.run(ctx, fmt.Sprintf("sv start %s", service))
}

func (r *Runit) Stop(ctx context.Context, service string) error {
	return r.run(ctx, fmt.Sprintf("sv stop %s", service))
}

func (r *Runit) Restart(ctx context.Context, service string) error {
	return r.run(ctx, fmt.Sprintf("sv restart %s", service))
}

func (r *Runit) Status(ctx context.Context, service string) (bool, error) {
	output, ok, err := r.probeStatus(ctx, fmt.Sprintf("sv status %s", service))
	if err != nil || !ok {
		return false, err
	}
	// runit status starts with "run:" when running
	return strings.HasPrefix(output, "run:"), nil
}

func (r *Runit) Enable(ctx context.Context, service string) error {
	// runit enables services by linking them into the service dir
	source := filepath.Join("/etc/sv", service)
	target := filepath.Join(r.serviceDir(), service)
	if _, err := os.Lstat(target); err == nil {
		return nil
	}
	if err := os.Symlink(source, target); err != nil {
		return fmt.Errorf("enable %s: %w", service, err)
	}
	return nil
}

func (r *Runit) Disable(ctx context.Context, service string) error {
	target := filepath.Join(r.serviceDir(), service)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("disable %s: %w", service, err)
	}
	return nil
}

func (r *Runit) Logs(ctx context.Context, service string, lines int, follow bool, w io.Writer) error {
	return r.stream(ctx, tailCommand(filepath.Join("/var/log", service, "current"), lines, follow), w)
}
