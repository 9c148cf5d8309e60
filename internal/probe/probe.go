// Package probe reports what is installed on the host right now. Every call
// re-queries the system; nothing is remembered between calls.
package probe

import (
	"context"
	"regexp"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/creamcroissant/sbnode/internal/support/execx"
)

// InstalledState is a point-in-time snapshot of the proxy installation.
type InstalledState struct {
	Installed       bool      `json:"installed" yaml:"installed"`
	BinaryPath      string    `json:"binary_path,omitempty" yaml:"binary_path,omitempty"`
	Version         string    `json:"version,omitempty" yaml:"version,omitempty"`
	ServiceActive   bool      `json:"service_active" yaml:"service_active"`
	InitSystem      string    `json:"init_system,omitempty" yaml:"init_system,omitempty"`
	Platform        string    `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformVersion string    `json:"platform_version,omitempty" yaml:"platform_version,omitempty"`
	KernelVersion   string    `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	QueriedAt       time.Time `json:"queried_at" yaml:"queried_at"`
}

// StatusChecker reports whether the managed service is running.
type StatusChecker interface {
	Status(ctx context.Context) (bool, error)
}

// Prober gathers InstalledState.
type Prober struct {
	binary  string
	runner  execx.Runner
	status  StatusChecker
	initSys string

	lookPath func(string) (string, error)
	hostInfo func(ctx context.Context) (*host.InfoStat, error)
	now      func() time.Time
}

// New creates a prober for the given sing-box binary. status may be nil when
// no init system is available.
func New(binary string, runner execx.Runner, status StatusChecker, initSystem string) *Prober {
	if binary == "" {
		binary = "sing-box"
	}
	if runner == nil {
		runner = execx.Default
	}
	return &Prober{
		binary:   binary,
		runner:   runner,
		status:   status,
		initSys:  initSystem,
		lookPath: execx.LookPath,
		hostInfo: host.InfoWithContext,
		now:      time.Now,
	}
}

var versionRegex = regexp.MustCompile(`(?:sing-box\s+)?version[:\s]+v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.]+)?)`)

// ParseVersion extracts the version from `sing-box version` output.
func ParseVersion(output string) string {
	if m := versionRegex.FindStringSubmatch(output); len(m) > 1 {
		return m[1]
	}
	return ""
}

// QueryInstalledState probes the host. Individual probe failures degrade the
// snapshot rather than failing the call; only ctx cancellation is returned.
func (p *Prober) QueryInstalledState(ctx context.Context) (InstalledState, error) {
	st := InstalledState{InitSystem: p.initSys, QueriedAt: p.now()}

	if path, err := p.lookPath(p.binary); err == nil {
		st.Installed = true
		st.BinaryPath = path
		if out, err := p.runner.Run(ctx, path, "version"); err == nil {
			st.Version = ParseVersion(string(out))
		}
	}

	if p.status != nil {
		if active, err := p.status.Status(ctx); err == nil {
			st.ServiceActive = active
		}
	}

	if info, err := p.hostInfo(ctx); err == nil && info != nil {
		st.Platform = info.Platform
		st.PlatformVersion = info.PlatformVersion
		st.KernelVersion = info.KernelVersion
	}

	if err := ctx.Err(); err != nil {
		return InstalledState{}, err
	}
	return st, nil
}
