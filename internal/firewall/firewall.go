// Package firewall opens and closes listener ports through ufw, a dedicated
// nftables table, or not at all.
package firewall

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/creamcroissant/sbnode/internal/support/execx"
)

// PortController opens and closes single ports.
type PortController interface {
	Allow(ctx context.Context, port int) error
	Deny(ctx context.Context, port int) error
}

// Firewall is a PortController that can also be switched on and off.
type Firewall interface {
	PortController
	Name() string
	Status(ctx context.Context) (Status, error)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Status is a point-in-time view of the firewall.
type Status struct {
	Backend      string
	Active       bool
	AllowedPorts []int
	Raw          string
}

// Options configures New.
type Options struct {
	Backend  string // ufw, nftables, none
	NFTTable string
	SSHPort  int
	Runner   execx.Runner
	Logger   *slog.Logger
}

// New returns the firewall for the configured backend.
func New(opts Options) (Firewall, error) {
	if opts.Runner == nil {
		opts.Runner = execx.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "ufw":
		return &UFW{runner: opts.Runner, logger: opts.Logger}, nil
	case "nftables", "nft":
		return NewNFTables(opts.NFTTable, opts.SSHPort, opts.Runner), nil
	case "none", "noop", "off":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown firewall backend: %s", opts.Backend)
	}
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	return nil
}

// Noop accepts every request and changes nothing.
type Noop struct{}

func (Noop) Name() string { return "none" }

func (Noop) Allow(context.Context, int) error { return nil }

func (Noop) Deny(context.Context, int) error { return nil }

func (Noop) Enable(context.Context) error { return nil }

func (Noop) Disable(context.Context) error { return nil }

func (Noop) Status(context.Context) (Status, error) {
	return Status{Backend: "none"}, nil
}
