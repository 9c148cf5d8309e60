package initsys

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// OpenRC implements InitSystem for OpenRC-based systems (Alpine, Gentoo).
type OpenRC struct {
	base
	// LogDir holds <service>.log files (default: /var/log)
	LogDir string
}

func (o *OpenRC) Type() string {
	return "openrc"
}

func (o *OpenRC) Start(ctx context.Context, service string) error {
	return o.run(ctx, fmt.Sprintf("rc-service %s start", service))
}

func (o *OpenRC) Stop(ctx context.Context, service string) error {
	return o.run(ctx, fmt.Sprintf("rc-service %s stop", service))
}

func (o *OpenRC) Restart(ctx context.Context, service string) error {
	return o.run(ctx, fmt.Sprintf("rc-service %s restart", service))
}

func (o *OpenRC) Status(ctx context.Context, service string) (bool, error) {
	output, ok, err := o.probeStatus(ctx, fmt.Sprintf("rc-service %s status", service))
	if err != nil || !ok {
		return false, err
	}
	// OpenRC status output contains "started" when running
	return strings.Contains(strings.ToLower(output), "started"), nil
}

func (o *OpenRC) Enable(ctx context.Context, service string) error {
	return o.run(ctx, fmt.Sprintf("rc-update add %s default", service))
}

func (o *OpenRC) Disable(ctx context.Context, service string) error {
	return o.run(ctx, fmt.Sprintf("rc-update del %s default", service))
}

func (o *OpenRC) Logs(ctx context.Context, service string, lines int, follow bool, w io.Writer) error {
	dir := o.LogDir
	if dir == "" {
		dir = "/var/log"
	}
	return o.stream(ctx, tailCommand(dir+"/"+service+".log", lines, follow), w)
}
