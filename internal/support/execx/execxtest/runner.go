// Package execxtest provides a scripted execx.Runner for tests.
package execxtest

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Response is the scripted result of one command line.
type Response struct {
	Output string
	Err    error
}

// Runner records every invocation and answers from Responses, keyed by the
// full command line ("ufw allow 443"). Unknown commands succeed with no output.
type Runner struct {
	mu        sync.Mutex
	Responses map[string]Response
	Calls     []string
	Inputs    map[string]string
}

// New returns an empty scripted runner.
func New() *Runner {
	return &Runner{Responses: map[string]Response{}, Inputs: map[string]string{}}
}

// On scripts the response for a command line.
func (r *Runner) On(commandLine string, output string, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Responses[commandLine] = Response{Output: output, Err: err}
	return r
}

func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.RunInput(ctx, nil, name, args...)
}

func (r *Runner) RunInput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	var input string
	if stdin != nil {
		data, _ := io.ReadAll(stdin)
		input = string(data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, line)
	if stdin != nil {
		r.Inputs[line] += input
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := r.Responses[line]
	return []byte(resp.Output), resp.Err
}

func (r *Runner) Stream(ctx context.Context, w io.Writer, name string, args ...string) error {
	out, err := r.Run(ctx, name, args...)
	if len(out) > 0 {
		_, _ = w.Write(out)
	}
	return err
}

// Called reports whether the command line was invoked.
func (r *Runner) Called(commandLine string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.Calls {
		if c == commandLine {
			return true
		}
	}
	return false
}
