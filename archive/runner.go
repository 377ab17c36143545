package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Command describes one external tool invocation. Env entries are appended
// to the inherited environment.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
}

// Runner executes external commands. The exec-backed implementation is the
// production one; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecError reports a command that could not be started or exited non-zero.
type ExecError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s %s exited with %d: %s",
			e.Name, strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("%s %s failed: %v", e.Name, strings.Join(e.Args, " "), e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ExecRunner runs commands through os/exec.
type ExecRunner struct {
	log *zap.SugaredLogger
}

// NewExecRunner creates a runner. A nil logger disables logging.
func NewExecRunner(log *zap.SugaredLogger) *ExecRunner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ExecRunner{log: log}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	r.log.Debugw("running command", "name", cmd.Name, "args", cmd.Args, "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	c.Stdout = cmd.Stdout
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stderr bytes.Buffer
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExecError{
				Name:     cmd.Name,
				Args:     cmd.Args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
				Err:      err,
			}
		}
		return &ExecError{Name: cmd.Name, Args: cmd.Args, Err: err}
	}
	return nil
}
