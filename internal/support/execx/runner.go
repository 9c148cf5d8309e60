// 文件路径: internal/support/execx/runner.go
// 模块说明: 外部命令执行的统一入口，sing-box / systemctl / ufw / nft 都经由 Runner 调用，便于测试替换。
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes external programs.
type Runner interface {
	// Run executes name with args and returns its stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunInput is Run with stdin attached.
	RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
	// Stream copies stdout and stderr to w until the process exits or ctx ends.
	Stream(ctx context.Context, w io.Writer, name string, args ...string) error
}

// ExitError reports a command that ran but failed.
type ExitError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// OSRunner runs commands with os/exec.
type OSRunner struct{}

// Default is the shared OS runner.
var Default Runner = OSRunner{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return OSRunner{}.RunInput(ctx, nil, name, args...)
}

func (OSRunner) RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), wrap(ctx, name, args, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

func (OSRunner) Stream(ctx context.Context, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Run(); err != nil {
		return wrap(ctx, name, args, "", err)
	}
	return nil
}

func wrap(ctx context.Context, name string, args []string, stderr string, err error) error {
	command := strings.TrimSpace(name + " " + strings.Join(args, " "))
	// A killed process hides the deadline; surface it so callers can tell timeouts apart.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &ExitError{Command: command, Err: ctxErr}
	}
	return &ExitError{Command: command, Stderr: strings.TrimSpace(stderr), Err: err}
}

// IsNotFound reports whether err means the executable could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// LookPath is exec.LookPath, swappable in tests.
var LookPath = exec.LookPath
