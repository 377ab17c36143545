// Package archive wraps the external archiving tools (tar, unzip, zipmerge)
// behind a capability the rest of the engine delegates to. It never touches
// archive bytes itself beyond reading them back for verification; creation,
// extraction and concatenation are always subprocess work.
package archive

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// OpError reports a failed archive operation, naming the operation and the
// archive it was working on.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s of %s failed: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Tool bundles the archive operations around a Runner.
type Tool struct {
	runner Runner
	log    *zap.SugaredLogger
}

// NewTool creates a Tool. A nil runner gets the exec-backed default, a nil
// logger disables logging.
func NewTool(runner Runner, log *zap.SugaredLogger) *Tool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if runner == nil {
		runner = NewExecRunner(log)
	}
	return &Tool{runner: runner, log: log}
}

// UnpackTar extracts a tar archive (any compression tar autodetects) into
// dir. Filters are passed through to tar as exclude directives verbatim.
func (t *Tool) UnpackTar(ctx context.Context, archive, dir string, filters []string) error {
	args := []string{"--no-same-owner", "-C", dir, "-a", "-xf", archive}
	for _, f := range filters {
		args = append(args, "--exclude="+f)
	}
	if err := t.runner.Run(ctx, Command{Name: "tar", Args: args}); err != nil {
		return &OpError{Op: "unpack", Path: archive, Err: err}
	}
	return nil
}

// UnpackZip extracts a zip archive into dir.
func (t *Tool) UnpackZip(ctx context.Context, archive, dir string) error {
	args := []string{"-q", archive, "-d", dir}
	if err := t.runner.Run(ctx, Command{Name: "unzip", Args: args}); err != nil {
		return &OpError{Op: "unpack", Path: archive, Err: err}
	}
	return nil
}

// PackTar creates archive from subdir inside dir. A non-empty transform is
// handed to tar as a path-rewrite rule; filters become exclude directives.
func (t *Tool) PackTar(ctx context.Context, archive, dir, subdir string, filters []string, transform string) error {
	args := []string{"-C", dir, "-a", "-cf", archive}
	if transform != "" {
		args = append(args, "--transform="+transform)
	}
	for _, f := range filters {
		args = append(args, "--exclude="+f)
	}
	args = append(args, subdir)
	if err := t.runner.Run(ctx, Command{Name: "tar", Args: args}); err != nil {
		return &OpError{Op: "pack", Path: archive, Err: err}
	}
	return nil
}

// CatenateTar splices sub onto the end of main without corrupting the
// end-of-archive trailer. Both must be uncompressed tar.
func (t *Tool) CatenateTar(ctx context.Context, main, sub string) error {
	args := []string{"-A", "-f", main, sub}
	if err := t.runner.Run(ctx, Command{Name: "tar", Args: args}); err != nil {
		return &OpError{Op: "catenate", Path: main, Err: err}
	}
	return nil
}

// CatenateZip merges sub into main.
func (t *Tool) CatenateZip(ctx context.Context, main, sub string) error {
	args := []string{main, sub}
	if err := t.runner.Run(ctx, Command{Name: "zipmerge", Args: args}); err != nil {
		return &OpError{Op: "catenate", Path: main, Err: err}
	}
	return nil
}
