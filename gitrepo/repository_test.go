package gitrepo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/srcimport/archive"
)

// initTestRepo creates a repository with one commit and returns its path.
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README")
	require.NoError(t, err)
	_, err = wt.Commit("initial import", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test Author",
			Email: "author@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
	return dir
}

// scriptedRunner fakes command execution with per-command behavior. The
// filter pipeline runs commands from two goroutines, so recording is
// guarded.
type scriptedRunner struct {
	mu     sync.Mutex
	cmds   []archive.Command
	script func(cmd archive.Command) error
}

func (s *scriptedRunner) Run(_ context.Context, cmd archive.Command) error {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()
	if s.script != nil {
		return s.script(cmd)
	}
	return nil
}

// cmdByName returns the first recorded command with the given name.
func (s *scriptedRunner) cmdByName(name string) (archive.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cmd := range s.cmds {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return archive.Command{}, false
}

func TestOpen(t *testing.T) {
	dir := initTestRepo(t)

	repo, err := Open(dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, repo.Path())

	_, err = Open(t.TempDir(), nil, nil)
	assert.Error(t, err, "a plain directory is not a repository")
}

func TestResolveTree(t *testing.T) {
	repo, err := Open(initTestRepo(t), nil, nil)
	require.NoError(t, err)

	hash, err := repo.ResolveTree("HEAD")
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	_, err = repo.ResolveTree("no-such-ref")
	assert.Error(t, err)
}

func TestSubmodulesEmpty(t *testing.T) {
	repo, err := Open(initTestRepo(t), nil, nil)
	require.NoError(t, err)

	subs, err := repo.Submodules(context.Background(), "HEAD")
	require.NoError(t, err)
	assert.Empty(t, subs)

	has, err := repo.HasSubmodules(context.Background(), "HEAD")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestArchivePlain(t *testing.T) {
	runner := &scriptedRunner{}
	repo, err := Open(initTestRepo(t), runner, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.tar")
	err = repo.Archive(context.Background(), ArchiveOptions{
		Format:  "tar",
		Prefix:  "pkg-1.0/",
		Output:  out,
		Treeish: "HEAD",
	})
	require.NoError(t, err)

	require.Len(t, runner.cmds, 1)
	cmd := runner.cmds[0]
	assert.Equal(t, "git", cmd.Name)
	assert.Equal(t, []string{"archive", "--format=tar", "--prefix=pkg-1.0/", "-o", out, "HEAD"}, cmd.Args)
	assert.Equal(t, repo.Path(), cmd.Dir)
}

func TestArchiveWithFilterPipesStream(t *testing.T) {
	runner := &scriptedRunner{script: func(cmd archive.Command) error {
		switch cmd.Name {
		case "git":
			_, err := cmd.Stdout.Write([]byte("ARCHIVE-BYTES"))
			return err
		case "gzip":
			_, err := io.Copy(cmd.Stdout, cmd.Stdin)
			return err
		}
		return nil
	}}
	repo, err := Open(initTestRepo(t), runner, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.tar.gz")
	err = repo.Archive(context.Background(), ArchiveOptions{
		Format:    "tar",
		Prefix:    "pkg-1.0/",
		Output:    out,
		Treeish:   "HEAD",
		FilterCmd: []string{"gzip", "--stdout", "-9"},
	})
	require.NoError(t, err)

	require.Len(t, runner.cmds, 2)
	gitCmd, ok := runner.cmdByName("git")
	require.True(t, ok)
	assert.Equal(t, []string{"archive", "--format=tar", "--prefix=pkg-1.0/", "HEAD"}, gitCmd.Args)
	gzipCmd, ok := runner.cmdByName("gzip")
	require.True(t, ok)
	assert.Equal(t, []string{"--stdout", "-9"}, gzipCmd.Args)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ARCHIVE-BYTES", string(content))
}

func TestArchiveFilterFailureSurfaces(t *testing.T) {
	execErr := &archive.ExecError{Name: "gzip", ExitCode: 1, Stderr: "disk full"}
	runner := &scriptedRunner{script: func(cmd archive.Command) error {
		if cmd.Name == "gzip" {
			return execErr
		}
		return nil
	}}
	repo, err := Open(initTestRepo(t), runner, nil)
	require.NoError(t, err)

	err = repo.Archive(context.Background(), ArchiveOptions{
		Format:    "tar",
		Prefix:    "p/",
		Output:    filepath.Join(t.TempDir(), "out.tar.gz"),
		Treeish:   "HEAD",
		FilterCmd: []string{"gzip", "--stdout"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, execErr)
}

func TestArchiveFilterFailureMidStream(t *testing.T) {
	// The filter dies without reading its stdin while git is still
	// streaming; Archive must fail instead of hanging on the pipe.
	execErr := &archive.ExecError{Name: "gzip", ExitCode: 3, Stderr: "no space"}
	runner := &scriptedRunner{script: func(cmd archive.Command) error {
		switch cmd.Name {
		case "git":
			_, err := cmd.Stdout.Write([]byte("ARCHIVE-BYTES"))
			return err
		case "gzip":
			return execErr
		}
		return nil
	}}
	repo, err := Open(initTestRepo(t), runner, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.tar.gz")
	done := make(chan error, 1)
	go func() {
		done <- repo.Archive(context.Background(), ArchiveOptions{
			Format:    "tar",
			Prefix:    "p/",
			Output:    out,
			Treeish:   "HEAD",
			FilterCmd: []string{"gzip", "--stdout"},
		})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, execErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Archive did not return after the filter failed")
	}
}

func TestWriteWorkingCopyTree(t *testing.T) {
	runner := &scriptedRunner{script: func(cmd archive.Command) error {
		if len(cmd.Args) > 0 && cmd.Args[0] == "write-tree" {
			_, err := cmd.Stdout.Write([]byte("0123456789abcdef0123456789abcdef01234567\n"))
			return err
		}
		return nil
	}}
	repo, err := Open(initTestRepo(t), runner, nil)
	require.NoError(t, err)

	tree, err := repo.WriteWorkingCopyTree(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", tree)

	require.Len(t, runner.cmds, 2)
	assert.Equal(t, []string{"add", "-f", "-A", "."}, runner.cmds[0].Args)
	assert.Equal(t, []string{"write-tree"}, runner.cmds[1].Args)
	for _, cmd := range runner.cmds {
		require.Len(t, cmd.Env, 1)
		assert.True(t, strings.HasPrefix(cmd.Env[0], "GIT_INDEX_FILE="))
	}

	// The scratch index must not survive the call.
	_, statErr := os.Stat(filepath.Join(repo.Path(), ".git", wcIndexName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteWorkingCopyTreeTrackedOnly(t *testing.T) {
	runner := &scriptedRunner{script: func(cmd archive.Command) error {
		if len(cmd.Args) > 0 && cmd.Args[0] == "write-tree" {
			_, err := cmd.Stdout.Write([]byte("deadbeef\n"))
			return err
		}
		return nil
	}}
	repo, err := Open(initTestRepo(t), runner, nil)
	require.NoError(t, err)

	_, err = repo.WriteWorkingCopyTree(context.Background(), false, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "-u", "."}, runner.cmds[0].Args)
}
