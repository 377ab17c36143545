package gitrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pkgforge/srcimport/archive"
	"github.com/pkgforge/srcimport/format"
)

// TreeArchiveOptions describes one tree-archiving run.
type TreeArchiveOptions struct {
	// Treeish is the tree reference of the root repository to archive.
	Treeish string
	// Output is the final archive path.
	Output string
	// TempBase is where the scratch directory is created.
	TempBase string
	// Prefix is the path prefix inside the archive, without trailing slash.
	Prefix string
	// CompressionName selects the external compressor; empty means none.
	CompressionName string
	// CompressionLevel is passed as -<level>; negative means tool default.
	CompressionLevel int
	// CompressionArgs are extra compressor flags.
	CompressionArgs []string
	// Format is the container format, defaulting to tar.
	Format string
}

// TreeArchiver builds archives from a version-controlled tree. The
// submodule-aware path exists because git archive terminates every stream
// with an end-of-archive trailer, so per-tree archives must be spliced at
// the uncompressed level and compressed once afterwards.
type TreeArchiver struct {
	tool   *archive.Tool
	runner archive.Runner
	log    *zap.SugaredLogger
}

// NewTreeArchiver creates a TreeArchiver. A nil runner gets the exec-backed
// default, a nil logger disables logging.
func NewTreeArchiver(runner archive.Runner, log *zap.SugaredLogger) *TreeArchiver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if runner == nil {
		runner = archive.NewExecRunner(log)
	}
	return &TreeArchiver{
		tool:   archive.NewTool(runner, log),
		runner: runner,
		log:    log,
	}
}

// ArchiveWithSubmodules archives the tree at opts.Treeish together with the
// trees of all submodules recorded in it. Each tree is archived
// uncompressed into a scratch directory, spliced onto the root archive, and
// the merged result is compressed (or moved) to opts.Output. The scratch
// directory is removed on every exit path.
func (a *TreeArchiver) ArchiveWithSubmodules(ctx context.Context, repo TreeRepository, opts TreeArchiveOptions) error {
	containerFormat := opts.Format
	if containerFormat == "" {
		containerFormat = "tar"
	}

	scratch := filepath.Join(opts.TempBase, "git-archive-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	mainArchive := filepath.Join(scratch, "main."+containerFormat)
	subArchive := filepath.Join(scratch, "submodule."+containerFormat)

	if err := repo.Archive(ctx, ArchiveOptions{
		Format:  containerFormat,
		Prefix:  opts.Prefix + "/",
		Output:  mainArchive,
		Treeish: opts.Treeish,
	}); err != nil {
		return err
	}

	subs, err := repo.Submodules(ctx, opts.Treeish)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		subPath := strings.TrimPrefix(sub.Path, "./")
		subRepo, err := repo.At(sub.Path)
		if err != nil {
			return err
		}

		a.log.Debugw("processing submodule", "path", sub.Path, "commit", shortCommit(sub.Commit))
		if err := subRepo.Archive(ctx, ArchiveOptions{
			Format:  containerFormat,
			Prefix:  opts.Prefix + "/" + subPath + "/",
			Output:  subArchive,
			Treeish: sub.Commit,
		}); err != nil {
			return err
		}

		switch containerFormat {
		case "zip":
			err = a.tool.CatenateZip(ctx, mainArchive, subArchive)
		default:
			err = a.tool.CatenateTar(ctx, mainArchive, subArchive)
		}
		if err != nil {
			return err
		}
	}

	if opts.CompressionName != "" {
		return a.compress(ctx, mainArchive, opts)
	}
	return moveFile(mainArchive, opts.Output)
}

// ArchiveSingle archives a tree without submodules, feeding the compressor
// as a filter on the archive stream instead of going through a scratch
// file.
func (a *TreeArchiver) ArchiveSingle(ctx context.Context, repo TreeRepository, opts TreeArchiveOptions) error {
	containerFormat := opts.Format
	if containerFormat == "" {
		containerFormat = "tar"
	}

	var filter []string
	if opts.CompressionName != "" {
		filter = format.CompressorCommand(opts.CompressionName, opts.CompressionLevel, opts.CompressionArgs)
	}

	return repo.Archive(ctx, ArchiveOptions{
		Format:    containerFormat,
		Prefix:    opts.Prefix + "/",
		Output:    opts.Output,
		Treeish:   opts.Treeish,
		FilterCmd: filter,
	})
}

// compress runs the merged archive through the external compressor into
// opts.Output.
func (a *TreeArchiver) compress(ctx context.Context, merged string, opts TreeArchiveOptions) error {
	out, err := os.Create(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Output, err)
	}
	defer out.Close()

	argv := format.CompressorCommand(opts.CompressionName, opts.CompressionLevel, opts.CompressionArgs)
	argv = append(argv, merged)
	if err := a.runner.Run(ctx, archive.Command{Name: argv[0], Args: argv[1:], Stdout: out}); err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Output, err)
	}
	return nil
}

// moveFile renames src to dst, copying when the rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
	return os.Remove(src)
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
