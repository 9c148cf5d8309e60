package initsys

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creamcroissant/sbnode/internal/support/execx"
	"github.com/creamcroissant/sbnode/internal/support/execx/execxtest"
)

func exitErr(cmd string) error {
	return &execx.ExitError{Command: cmd, Err: errors.New("exit status 3")}
}

func TestNewSelectsBackend(t *testing.T) {
	runner := execxtest.New()
	for typ, want := range map[string]string{"systemd": "systemd", "OpenRC": "openrc", "runit": "runit"} {
		sys, err := New(Config{Type: typ}, runner, nil)
		require.NoError(t, err)
		assert.Equal(t, want, sys.Type())
	}

	_, err := New(Config{Type: "custom"}, runner, nil)
	assert.Error(t, err)
	_, err = New(Config{Type: "upstart"}, runner, nil)
	assert.Error(t, err)
}

func TestDetectFallsThrough(t *testing.T) {
	orig := detectPaths
	t.Cleanup(func() { detectPaths = orig })

	detectPaths = []struct{ path, typ string }{{t.TempDir(), "openrc"}}
	assert.Equal(t, "openrc", Detect())

	detectPaths = nil
	assert.Equal(t, "", Detect())
	_, err := New(Config{Type: "auto"}, execxtest.New(), nil)
	assert.ErrorIs(t, err, ErrNoInitSystem)
}

func TestSystemdService(t *testing.T) {
	runner := execxtest.New().On("systemctl is-active sing-box", "active\n", nil)
	sys, err := New(Config{Type: "systemd"}, runner, nil)
	require.NoError(t, err)
	svc := Service{Sys: sys, Name: "sing-box"}
	ctx := context.Background()

	require.NoError(t, svc.Restart(ctx))
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Stop(ctx))
	assert.Equal(t, []string{"systemctl restart sing-box", "systemctl start sing-box", "systemctl stop sing-box"}, runner.Calls)

	running, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	runner.On("systemctl is-active sing-box", "inactive\n", exitErr("systemctl is-active sing-box"))
	running, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	runner.On("systemctl is-active sing-box", "", &execx.ExitError{Command: "systemctl", Err: exec.ErrNotFound})
	_, err = svc.Status(ctx)
	assert.Error(t, err)
}

func TestSystemdLogs(t *testing.T) {
	runner := execxtest.New().On("journalctl -u sing-box -n 20 --no-pager -f", "line one\nline two\n", nil)
	sys, err := New(Config{Type: "systemd"}, runner, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Service{Sys: sys, Name: "sing-box"}.Logs(context.Background(), 20, true, &buf))
	assert.Equal(t, "line one\nline two\n", buf.String())

	buf.Reset()
	require.NoError(t, sys.Logs(context.Background(), "sing-box", 0, false, &buf))
	assert.True(t, runner.Called("journalctl -u sing-box -n 50 --no-pager"))
}

func TestCommandsGetDefaultDeadline(t *testing.T) {
	var deadline time.Time
	runner := &deadlineRunner{Runner: execxtest.New(), seen: &deadline}
	sys, err := New(Config{Type: "openrc"}, runner, nil)
	require.NoError(t, err)
	require.NoError(t, sys.Restart(context.Background(), "sing-box"))
	assert.WithinDuration(t, time.Now().Add(defaultTimeout), deadline, 5*time.Second)
}

type deadlineRunner struct {
	*execxtest.Runner
	seen *time.Time
}

func (d *deadlineRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	*d.seen, _ = ctx.Deadline()
	return d.Runner.Run(ctx, name, args...)
}

func TestCustomCommands(t *testing.T) {
	runner := execxtest.New().On("pgrep -f sing-box", "", exitErr("pgrep"))
	sys, err := New(Config{Type: "custom", Custom: CustomCommands{
		Start:  "/usr/local/bin/sb-ctl start '{{service}}'",
		Stop:   "/usr/local/bin/sb-ctl stop {service}",
		Status: "pgrep -f {{service}}",
		Logs:   "tail -n {{lines}} /var/log/{{service}}.log",
	}}, runner, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, sys.Restart(ctx, "sing-box"))
	assert.Equal(t, []string{
		"/usr/local/bin/sb-ctl stop sing-box",
		"/usr/local/bin/sb-ctl start sing-box",
	}, runner.Calls)

	running, err := sys.Status(ctx, "sing-box")
	require.NoError(t, err)
	assert.False(t, running)

	var buf bytes.Buffer
	require.NoError(t, sys.Logs(ctx, "sing-box", 10, false, &buf))
	assert.True(t, runner.Called("tail -n 10 /var/log/sing-box.log"))

	noLogs, err := New(Config{Type: "custom", Custom: CustomCommands{Start: "a", Stop: "b"}}, runner, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, noLogs.Logs(ctx, "sing-box", 10, false, &buf), ErrUnsupported)
	_, err = noLogs.Status(ctx, "sing-box")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSplitCommand(t *testing.T) {
	name, args, err := splitCommand(`sh -c "echo 'hi there'" x\ y`)
	require.NoError(t, err)
	assert.Equal(t, "sh", name)
	assert.Equal(t, []string{"-c", "echo 'hi there'", "x y"}, args)

	_, _, err = splitCommand(`echo "open`)
	assert.Error(t, err)
	_, _, err = splitCommand("   ")
	assert.Error(t, err)
}
