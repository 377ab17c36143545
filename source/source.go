// Package source models an upstream source unit: a path that is either an
// unpacked directory or a packed archive. A unit classifies itself once at
// construction and exposes unpack and re-pack operations that delegate the
// actual byte shuffling to the external archiver capability.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pkgforge/srcimport/archive"
	"github.com/pkgforge/srcimport/format"
	"github.com/pkgforge/srcimport/policy"
)

var (
	// ErrIsDirectory is returned when unpacking a unit that already is an
	// unpacked directory.
	ErrIsDirectory = errors.New("cannot unpack a directory")
	// ErrNotUnpacked is returned when packing a unit that has no unpacked
	// source tree.
	ErrNotUnpacked = errors.New("need an unpacked source tree to pack")
)

// Archiver is the slice of the external archive capability a source unit
// needs. *archive.Tool implements it.
type Archiver interface {
	UnpackTar(ctx context.Context, archive, dir string, filters []string) error
	UnpackZip(ctx context.Context, archive, dir string) error
	PackTar(ctx context.Context, archive, dir, subdir string, filters []string, transform string) error
}

// Options configures construction of a Source. All fields are optional.
type Options struct {
	// Unpacked is the path of an already-unpacked tree belonging to this
	// archive, when known.
	Unpacked string
	// Policy decides orig-archive validity. Defaults to the Debian policy.
	Policy *policy.Policy
	// Archiver performs the unpack/pack subprocess work. Defaults to the
	// exec-backed tool.
	Archiver Archiver
	// Log receives debug output. Defaults to a nop logger.
	Log *zap.SugaredLogger
}

// Source is an upstream source unit. The directory check and filename
// classification happen once at construction and are never refreshed; a path
// that changes kind afterwards is not noticed (known staleness window).
type Source struct {
	path     string
	unpacked string

	base        string
	archiveFmt  string
	compression string

	isDir   bool
	orig    bool
	tarball bool

	pol      *policy.Policy
	archiver Archiver
	log      *zap.SugaredLogger
}

// New constructs a source unit from a path. It never fails: an unrecognized
// filename simply classifies as neither container nor compression.
func New(path string, opts *Options) *Source {
	if opts == nil {
		opts = &Options{}
	}
	s := &Source{
		path:     strings.TrimRight(path, "/"),
		unpacked: opts.Unpacked,
		pol:      opts.Policy,
		archiver: opts.Archiver,
		log:      opts.Log,
	}
	if s.pol == nil {
		s.pol = policy.Debian()
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.archiver == nil {
		s.archiver = archive.NewTool(nil, s.log)
	}

	s.base, s.archiveFmt, s.compression = format.Parse(filepath.Base(s.path))

	if info, err := os.Stat(s.path); err == nil && info.IsDir() {
		s.isDir = true
		s.unpacked = s.path
		// A directory has neither container format nor compression, no
		// matter what its name parses to.
		s.archiveFmt = ""
		s.compression = ""
	}

	if !s.isDir {
		s.tarball = s.archiveFmt == "tar"
		s.orig = s.pol.ValidOrigArchive(filepath.Base(s.path))
	}
	return s
}

// Path returns the unit's path with any trailing slash stripped.
func (s *Source) Path() string { return s.path }

// Base returns the logical base name from classification.
func (s *Source) Base() string { return s.base }

// ArchiveFormat returns the container format, or "" for none.
func (s *Source) ArchiveFormat() string { return s.archiveFmt }

// Compression returns the compression method, or "" for none.
func (s *Source) Compression() string { return s.compression }

// IsDir reports whether the unit was a directory at construction time.
func (s *Source) IsDir() bool { return s.isDir }

// IsTarball reports whether the unit is a tar-family archive.
func (s *Source) IsTarball() bool { return s.tarball }

// IsOrig reports whether the unit is suitable as a pristine upstream
// archive under the unit's policy. The filename need not be correctly named
// for this to hold.
func (s *Source) IsOrig() bool { return s.orig }

// Unpacked returns the path of the unpacked source tree, or "" when the
// unit has not been unpacked.
func (s *Source) Unpacked() string { return s.unpacked }

// Unpack extracts a packed unit into dir and records the true top level of
// the extracted tree. Filters are passed through to the tar tool verbatim.
// Partial output on failure is the caller's to clean up.
func (s *Source) Unpack(ctx context.Context, dir string, filters []string) error {
	if s.isDir {
		return fmt.Errorf("%w: %s", ErrIsDirectory, s.path)
	}

	s.log.Debugw("unpacking source", "archive", s.path, "dir", dir)

	switch filepath.Ext(s.path) {
	case ".zip", ".xpi":
		if err := s.archiver.UnpackZip(ctx, s.path, dir); err != nil {
			return fmt.Errorf("unpacking of %s failed: %w", s.path, err)
		}
	default:
		if err := s.archiver.UnpackTar(ctx, s.path, dir, filters); err != nil {
			return fmt.Errorf("unpacking of %s failed: %w", s.path, err)
		}
	}

	top, err := unpackedTopLevel(dir)
	if err != nil {
		return err
	}
	s.unpacked = top
	return nil
}

// unpackedTopLevel decides the real top of an extraction target: the single
// directory entry when the archive carried a common prefix, the target
// itself otherwise.
func unpackedTopLevel(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return filepath.Join(dir, "."), nil
}

// Pack recreates an archive from the unit's unpacked tree and returns a
// brand-new unit for it, classified from scratch. A nil newPrefix keeps the
// tree's own top-level name; otherwise the prefix is cleaned of leading and
// trailing '/' and '.' characters, an empty result flattening the archive.
func (s *Source) Pack(ctx context.Context, newArchive string, filters []string, newPrefix *string) (*Source, error) {
	if s.unpacked == "" {
		return nil, ErrNotUnpacked
	}

	unpacked := strings.TrimRight(s.unpacked, "/")
	runDir := filepath.Dir(unpacked)
	packThis := filepath.Base(unpacked)

	transform := ""
	if newPrefix != nil {
		prefix := strings.Trim(*newPrefix, "/.")
		if prefix != "" {
			transform = fmt.Sprintf("s!%s!%s!", packThis, prefix)
		} else {
			transform = fmt.Sprintf("s!%s!%s!", packThis, ".")
		}
	}

	s.log.Debugw("packing source", "tree", unpacked, "archive", newArchive, "transform", transform)

	if err := s.archiver.PackTar(ctx, newArchive, runDir, packThis, filters, transform); err != nil {
		return nil, fmt.Errorf("packing of %s failed: %w", newArchive, err)
	}

	return New(newArchive, &Options{
		Policy:   s.pol,
		Archiver: s.archiver,
		Log:      s.log,
	}), nil
}
