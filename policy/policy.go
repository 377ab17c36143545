// Package policy implements the ecosystem-specific naming rules for source
// packages: what counts as a valid package name, a valid upstream version,
// and a valid pristine upstream archive.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkgforge/srcimport/format"
)

// Policy validates names and versions against one packaging ecosystem's
// conventions. Both patterns are required at construction; a variant without
// them is a wiring mistake, not a runtime condition.
type Policy struct {
	name            string
	packageName     *regexp.Regexp
	upstreamVersion *regexp.Regexp
}

// New builds a policy from compiled patterns.
func New(name string, packageName, upstreamVersion *regexp.Regexp) (*Policy, error) {
	if packageName == nil {
		return nil, fmt.Errorf("policy %s: package name pattern is required", name)
	}
	if upstreamVersion == nil {
		return nil, fmt.Errorf("policy %s: upstream version pattern is required", name)
	}
	return &Policy{
		name:            name,
		packageName:     packageName,
		upstreamVersion: upstreamVersion,
	}, nil
}

var (
	debianPackageName     = regexp.MustCompile(`^[a-z0-9][a-z0-9.+-]+$`)
	debianUpstreamVersion = regexp.MustCompile(`^[0-9][a-zA-Z0-9.~:+-]*$`)

	rpmPackageName     = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)
	rpmUpstreamVersion = regexp.MustCompile(`^[0-9][a-zA-Z0-9.~^_+]*$`)
)

// Debian returns the Debian packaging policy.
func Debian() *Policy {
	p, _ := New("debian", debianPackageName, debianUpstreamVersion)
	return p
}

// RPM returns the RPM packaging policy.
func RPM() *Policy {
	p, _ := New("rpm", rpmPackageName, rpmUpstreamVersion)
	return p
}

// Name returns the ecosystem name.
func (p *Policy) Name() string { return p.name }

// ValidPackageName reports whether name matches the ecosystem's package
// naming rules.
func (p *Policy) ValidPackageName(name string) bool {
	return p.packageName.MatchString(name)
}

// ValidUpstreamVersion reports whether version matches the ecosystem's
// upstream version rules.
func (p *Policy) ValidUpstreamVersion(version string) bool {
	return p.upstreamVersion.MatchString(version)
}

// ValidOrigArchive reports whether filename has the shape of a pristine
// upstream archive: a compressed tar. Naming validity is not consulted.
func (p *Policy) ValidOrigArchive(filename string) bool {
	_, archiveFmt, compression := format.Parse(filename)
	return archiveFmt == "tar" && compression != ""
}

// HasOrig reports whether the orig archive exists in dir.
func HasOrig(filename, dir string) bool {
	_, err := os.Stat(filepath.Join(dir, filename))
	return err == nil
}

// SymlinkOrig links the orig archive from origDir into outputDir. It returns
// true when the link was created or both directories resolve to the same
// place, false when the source is missing or linking fails. Filesystem
// errors are never surfaced.
func SymlinkOrig(filename, origDir, outputDir string, force bool) bool {
	origAbs, err := filepath.Abs(origDir)
	if err != nil {
		return false
	}
	outputAbs, err := filepath.Abs(outputDir)
	if err != nil {
		return false
	}
	if origAbs == outputAbs {
		return true
	}

	src := filepath.Join(origAbs, filename)
	dst := filepath.Join(outputAbs, filename)
	if _, err := os.Lstat(src); err != nil {
		return false
	}
	if _, err := os.Lstat(dst); err == nil && force {
		if err := os.Remove(dst); err != nil {
			return false
		}
	}
	if err := os.Symlink(src, dst); err != nil {
		return false
	}
	return true
}
