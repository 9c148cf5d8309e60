package initsys

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Custom implements InitSystem using operator-defined commands.
type Custom struct {
	base
	commands CustomCommands
}

func (c *Custom) Type() string {
	return "custom"
}

func expand(command, service string) string {
	command = strings.ReplaceAll(command, "{{service}}", service)
	return strings.ReplaceAll(command, "{service}", service)
}

func (c *Custom) Start(ctx context.Context, service string) error {
	return c.run(ctx, expand(c.commands.Start, service))
}

func (c *Custom) Stop(ctx context.Context, service string) error {
	return c.run(ctx, expand(c.commands.Stop, service))
}

func (c *Custom) Restart(ctx context.Context, service string) error {
	if c.commands.Restart != "" {
		return c.run(ctx, expand(c.commands.Restart, service))
	}
	// stop then start; a stop failure usually means it was not running
	if err := c.Stop(ctx, service); err != nil {
		c.logger.Debug("custom stop before start failed", "service", service, "error", err)
	}
	return c.Start(ctx, service)
}

func (c *Custom) Status(ctx context.Context, service string) (bool, error) {
	if c.commands.Status == "" {
		return false, fmt.Errorf("%w: status", ErrUnsupported)
	}
	// exit status 0 means running
	_, ok, err := c.probeStatus(ctx, expand(c.commands.Status, service))
	return ok, err
}

func (c *Custom) Enable(ctx context.Context, service string) error {
	if c.commands.Enable == "" {
		return nil
	}
	return c.run(ctx, expand(c.commands.Enable, service))
}

func (c *Custom) Disable(ctx context.Context, service string) error {
	if c.commands.Disable == "" {
		return nil
	}
	return c.run(ctx, expand(c.commands.Disable, service))
}

func (c *Custom) Logs(ctx context.Context, service string, lines int, follow bool, w io.Writer) error {
	if c.commands.Logs == "" {
		return fmt.Errorf("%w: logs", ErrUnsupported)
	}
	cmd := expand(c.commands.Logs, service)
	cmd = strings.ReplaceAll(cmd, "{{lines}}", fmt.Sprint(lines))
	return c.stream(ctx, cmd, w)
}
