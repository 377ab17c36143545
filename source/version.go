package source

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkgforge/srcimport/format"
)

// VersionGuess is a package name and upstream version inferred from a
// filename.
type VersionGuess struct {
	Package string
	Version string
}

// versionChars are the characters legal in upstream version numbers. They
// must survive guessing untouched.
const versionChars = `[a-zA-Z\d.~:+-]`

// GuessVersion infers the package name and upstream version from the unit's
// filename. An optional extra pattern is tried before the built-in naming
// conventions; it must define capture groups named "package" and "version".
// Returns nil when no convention matches.
//
// Built-in conventions, in order:
//
//	package_<version>.orig.tar.<ext>  (pristine upstream tarball)
//	package-<version>.tar.<ext>       (plain upstream tarball or directory)
func (s *Source) GuessVersion(extraPattern string) (*VersionGuess, error) {
	var suffix string
	if !s.isDir {
		suffix = fmt.Sprintf(`\.tar\.(%s)`, strings.Join(format.KnownCompressions(), "|"))
	}

	patterns := []string{
		fmt.Sprintf(`^(?P<package>[a-z\d.+-]+)_(?P<version>%s+)\.orig%s`, versionChars, suffix),
		fmt.Sprintf(`^(?P<package>[a-zA-Z\d.+-]+)-(?P<version>[0-9]%s*)%s`, versionChars, suffix),
	}
	if extraPattern != "" {
		patterns = append([]string{extraPattern}, patterns...)
	}

	name := filepath.Base(s.path)
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid version pattern %q: %w", pattern, err)
		}
		pkgIdx := re.SubexpIndex("package")
		verIdx := re.SubexpIndex("version")
		if pkgIdx < 0 || verIdx < 0 {
			return nil, fmt.Errorf("version pattern %q needs 'package' and 'version' groups", pattern)
		}

		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		return &VersionGuess{Package: m[pkgIdx], Version: m[verIdx]}, nil
	}
	return nil, nil
}
