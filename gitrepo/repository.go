// Package gitrepo provides the version-control capability the archive
// engine depends on: opening a local repository, resolving tree references,
// enumerating submodules, and producing `git archive` streams. Repository
// inspection goes through go-git; archive generation and index manipulation
// are delegated to the git tool through the command runner, since go-git
// implements neither.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/pkgforge/srcimport/archive"
)

// wcIndexName is the scratch index used to snapshot the working copy as a
// tree object without disturbing the real index.
const wcIndexName = "srcimport_index"

// Submodule is a gitlink entry of a committed tree.
type Submodule struct {
	Path   string
	Commit string
}

// ArchiveOptions describes one `git archive` invocation.
type ArchiveOptions struct {
	// Format is the container format, "tar" or "zip".
	Format string
	// Prefix is prepended to every path inside the archive.
	Prefix string
	// Output is the file the archive is written to.
	Output string
	// Treeish is the tree reference to archive.
	Treeish string
	// FilterCmd, when non-empty, is an argv the archive stream is piped
	// through before reaching Output.
	FilterCmd []string
}

// TreeRepository is the repository capability the tree archiver consumes.
type TreeRepository interface {
	Path() string
	Archive(ctx context.Context, opts ArchiveOptions) error
	Submodules(ctx context.Context, treeish string) ([]Submodule, error)
	At(subdir string) (TreeRepository, error)
}

// Repository is a local git repository.
type Repository struct {
	path   string
	repo   *git.Repository
	runner archive.Runner
	log    *zap.SugaredLogger
}

// Open validates that path is a git repository and wraps it. A nil runner
// gets the exec-backed default, a nil logger disables logging.
func Open(path string, runner archive.Runner, log *zap.SugaredLogger) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	repo, err := git.PlainOpen(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", abs, err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if runner == nil {
		runner = archive.NewExecRunner(log)
	}
	return &Repository{path: abs, repo: repo, runner: runner, log: log}, nil
}

// Path returns the repository root.
func (r *Repository) Path() string { return r.path }

// ResolveTree resolves a tree reference (branch, tag, commit) to a commit
// hash.
func (r *Repository) ResolveTree(treeish string) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(treeish))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", treeish, err)
	}
	return hash.String(), nil
}

// Submodules lists the gitlink entries of the tree at treeish, in tree-walk
// order, with the commit each one points at.
func (r *Repository) Submodules(_ context.Context, treeish string) ([]Submodule, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(treeish))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", treeish, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", hash, err)
	}

	var subs []Submodule
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to walk tree of %s: %w", hash, err)
		}
		if entry.Mode == filemode.Submodule {
			subs = append(subs, Submodule{Path: name, Commit: entry.Hash.String()})
		}
	}
	return subs, nil
}

// HasSubmodules reports whether the tree at treeish carries gitlink entries.
func (r *Repository) HasSubmodules(ctx context.Context, treeish string) (bool, error) {
	subs, err := r.Submodules(ctx, treeish)
	if err != nil {
		return false, err
	}
	return len(subs) > 0, nil
}

// At returns the repository rooted at a submodule checkout below this one.
func (r *Repository) At(subdir string) (TreeRepository, error) {
	return Open(filepath.Join(r.path, strings.TrimPrefix(subdir, "./")), r.runner, r.log)
}

// Archive writes the tree at opts.Treeish as an archive to opts.Output,
// optionally piping the stream through opts.FilterCmd.
func (r *Repository) Archive(ctx context.Context, opts ArchiveOptions) error {
	args := []string{"archive", "--format=" + opts.Format, "--prefix=" + opts.Prefix}

	if len(opts.FilterCmd) == 0 {
		args = append(args, "-o", opts.Output, opts.Treeish)
		if err := r.runner.Run(ctx, archive.Command{Name: "git", Args: args, Dir: r.path}); err != nil {
			return fmt.Errorf("git archive of %s failed: %w", opts.Treeish, err)
		}
		return nil
	}

	args = append(args, opts.Treeish)
	out, err := os.Create(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.Output, err)
	}
	defer out.Close()

	pr, pw := io.Pipe()
	archiveErr := make(chan error, 1)
	go func() {
		err := r.runner.Run(ctx, archive.Command{Name: "git", Args: args, Dir: r.path, Stdout: pw})
		pw.CloseWithError(err)
		archiveErr <- err
	}()

	filterErr := r.runner.Run(ctx, archive.Command{
		Name:   opts.FilterCmd[0],
		Args:   opts.FilterCmd[1:],
		Dir:    r.path,
		Stdin:  pr,
		Stdout: out,
	})
	// A filter that dies without draining its stdin would leave the archive
	// goroutine blocked on the pipe; closing the read end unblocks it.
	pr.CloseWithError(filterErr)
	if filterErr != nil {
		return fmt.Errorf("compressing archive of %s failed: %w", opts.Treeish, filterErr)
	}
	if err := <-archiveErr; err != nil {
		return fmt.Errorf("git archive of %s failed: %w", opts.Treeish, err)
	}
	return nil
}

// wcIndex returns the scratch index path.
func (r *Repository) wcIndex() string {
	return filepath.Join(r.path, ".git", wcIndexName)
}

// WriteWorkingCopyTree snapshots the working copy as a tree object using a
// scratch index and returns the tree hash. With untracked, new files are
// picked up too; force also adds ignored files.
func (r *Repository) WriteWorkingCopyTree(ctx context.Context, force, untracked bool) (string, error) {
	if err := r.cloneIndex(); err != nil {
		return "", err
	}
	defer r.DropIndex()

	env := []string{"GIT_INDEX_FILE=" + r.wcIndex()}

	addArgs := []string{"add"}
	if force {
		addArgs = append(addArgs, "-f")
	}
	if untracked {
		addArgs = append(addArgs, "-A", ".")
	} else {
		addArgs = append(addArgs, "-u", ".")
	}
	if err := r.runner.Run(ctx, archive.Command{Name: "git", Args: addArgs, Dir: r.path, Env: env}); err != nil {
		return "", fmt.Errorf("failed to stage working copy: %w", err)
	}

	var stdout bytes.Buffer
	cmd := archive.Command{Name: "git", Args: []string{"write-tree"}, Dir: r.path, Env: env, Stdout: &stdout}
	if err := r.runner.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("failed to write tree: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// cloneIndex copies the real index to the scratch index so the snapshot
// starts from the current staging state.
func (r *Repository) cloneIndex() error {
	src := filepath.Join(r.path, ".git", "index")
	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	if err := os.WriteFile(r.wcIndex(), data, 0o644); err != nil {
		return fmt.Errorf("failed to clone index: %w", err)
	}
	return nil
}

// DropIndex removes the scratch index so no stale state leaks into the next
// invocation.
func (r *Repository) DropIndex() error {
	err := os.Remove(r.wcIndex())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to drop scratch index: %w", err)
	}
	return nil
}
