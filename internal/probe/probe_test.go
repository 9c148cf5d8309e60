package probe

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creamcroissant/sbnode/internal/support/execx/execxtest"
)

type fakeStatus struct {
	active bool
	err    error
	calls  int
}

func (f *fakeStatus) Status(context.Context) (bool, error) {
	f.calls++
	return f.active, f.err
}

func newTestProber(runner *execxtest.Runner, status StatusChecker, found bool) *Prober {
	p := New("sing-box", runner, status, "systemd")
	p.lookPath = func(name string) (string, error) {
		if !found {
			return "", exec.ErrNotFound
		}
		return "/usr/local/bin/" + name, nil
	}
	p.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{Platform: "debian", PlatformVersion: "12.5", KernelVersion: "6.1.0"}, nil
	}
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestParseVersion(t *testing.T) {
	cases := map[string]string{
		"sing-box version 1.10.1\n\nEnvironment: go1.22.5 linux/amd64": "1.10.1",
		"sing-box version 1.11.0-beta.3":                                "1.11.0-beta.3",
		"version: 1.8.14":                                               "1.8.14",
		"garbage":                                                       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseVersion(in), in)
	}
}

func TestQueryInstalledState(t *testing.T) {
	runner := execxtest.New().On("/usr/local/bin/sing-box version", "sing-box version 1.10.1\n", nil)
	status := &fakeStatus{active: true}

	st, err := newTestProber(runner, status, true).QueryInstalledState(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Installed)
	assert.Equal(t, "1.10.1", st.Version)
	assert.True(t, st.ServiceActive)
	assert.Equal(t, "systemd", st.InitSystem)
	assert.Equal(t, "debian", st.Platform)
	assert.Equal(t, "12.5", st.PlatformVersion)
	assert.Equal(t, 2024, st.QueriedAt.Year())
}

func TestQueryInstalledStateNotInstalled(t *testing.T) {
	runner := execxtest.New()
	status := &fakeStatus{err: errors.New("no unit")}

	st, err := newTestProber(runner, status, false).QueryInstalledState(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Installed)
	assert.Empty(t, st.Version)
	assert.False(t, st.ServiceActive)
	assert.Empty(t, runner.Calls)
}

func TestQueryInstalledStateRequeries(t *testing.T) {
	runner := execxtest.New().On("/usr/local/bin/sing-box version", "sing-box version 1.10.1", nil)
	status := &fakeStatus{active: false}
	p := newTestProber(runner, status, true)

	first, err := p.QueryInstalledState(context.Background())
	require.NoError(t, err)
	assert.False(t, first.ServiceActive)

	status.active = true
	second, err := p.QueryInstalledState(context.Background())
	require.NoError(t, err)
	assert.True(t, second.ServiceActive)
	assert.Equal(t, 2, status.calls)
}

func TestQueryInstalledStateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestProber(execxtest.New(), nil, false).QueryInstalledState(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
