// Package format holds the static tables describing the archive container
// formats and compression methods the engine understands, and the filename
// classifier built on top of them.
package format

import (
	"strconv"
	"strings"
)

// Compression describes one supported compression method: the external tool
// name, extra flags the tool needs for reproducible output, and the canonical
// file extension.
type Compression struct {
	Name      string
	ExtraArgs []string
	Extension string
}

// compressions is the single registry of supported methods. Order matters:
// it fixes the extension listing, and Parse resolves extensions against it.
// Extensions are unique across entries.
var compressions = []Compression{
	{Name: "gzip", ExtraArgs: []string{"-n"}, Extension: "gz"},
	{Name: "bzip2", ExtraArgs: []string{}, Extension: "bz2"},
	{Name: "lzma", ExtraArgs: []string{}, Extension: "lzma"},
	{Name: "xz", ExtraArgs: []string{}, Extension: "xz"},
}

var compressionsByName = make(map[string]Compression, len(compressions))

func init() {
	for _, c := range compressions {
		compressionsByName[c.Name] = c
	}
}

// compressionAliases maps frequently used names to the canonical ones.
var compressionAliases = map[string]string{
	"bz2": "bzip2",
	"gz":  "gzip",
}

// archiveFormats lists the supported container formats.
var archiveFormats = []string{"tar", "zip"}

// combinedExtensions maps single suffixes that imply both a container format
// and a compression method.
var combinedExtensions = map[string]struct {
	Format      string
	Compression string
}{
	"tgz":  {"tar", "gzip"},
	"tbz2": {"tar", "bzip2"},
	"tlz":  {"tar", "lzma"},
	"txz":  {"tar", "xz"},
}

// NormalizeCompression resolves a compression alias to its canonical name.
// Unknown names are returned unchanged.
func NormalizeCompression(name string) string {
	if canonical, ok := compressionAliases[name]; ok {
		return canonical
	}
	return name
}

// IsKnownCompression reports whether name (or an alias of it) is a
// registered compression method.
func IsKnownCompression(name string) bool {
	_, ok := compressionsByName[NormalizeCompression(name)]
	return ok
}

// CompressionByName looks up a registered compression method, resolving
// aliases first.
func CompressionByName(name string) (Compression, bool) {
	c, ok := compressionsByName[NormalizeCompression(name)]
	return c, ok
}

// IsArchiveFormat reports whether name is a supported container format.
func IsArchiveFormat(name string) bool {
	for _, f := range archiveFormats {
		if f == name {
			return true
		}
	}
	return false
}

// KnownCompressions returns the file extensions of all registered
// compression methods, in registry order.
func KnownCompressions() []string {
	exts := make([]string, 0, len(compressions))
	for _, c := range compressions {
		exts = append(exts, c.Extension)
	}
	return exts
}

// Parse splits a filename into its logical base name, container format and
// compression method. It never fails: a name whose trailing extension chain
// does not fully resolve against the tables comes back unchanged with both
// format and compression empty.
//
//	Parse("abc.tar.gz")   -> ("abc", "tar", "gzip")
//	Parse("abc.def.tbz2") -> ("abc.def", "tar", "bzip2")
//	Parse("abc.zip")      -> ("abc", "zip", "")
//	Parse("abc.lzma")     -> ("abc", "", "lzma")
//	Parse("abc.tar.foo")  -> ("abc.tar.foo", "", "")
//	Parse("abc")          -> ("abc", "", "")
func Parse(filename string) (base, archiveFmt, compression string) {
	base = filename

	split := strings.Split(filename, ".")
	if len(split) < 2 {
		return base, "", ""
	}

	last := split[len(split)-1]
	if combined, ok := combinedExtensions[last]; ok {
		base = strings.Join(split[:len(split)-1], ".")
		return base, combined.Format, combined.Compression
	}
	if IsArchiveFormat(last) {
		base = strings.Join(split[:len(split)-1], ".")
		return base, last, ""
	}
	for _, c := range compressions {
		if c.Extension != last {
			continue
		}
		base = strings.Join(split[:len(split)-1], ".")
		compression = c.Name
		if len(split) > 2 && IsArchiveFormat(split[len(split)-2]) {
			base = strings.Join(split[:len(split)-2], ".")
			archiveFmt = split[len(split)-2]
		}
		return base, archiveFmt, compression
	}

	return base, "", ""
}

// CompressorCommand builds the argv prefix to invoke an external compressor
// as a stream filter: `<tool> --stdout -<level> <extra flags>`. A negative
// level means the tool's default level.
func CompressorCommand(name string, level int, extraArgs []string) []string {
	argv := []string{name, "--stdout"}
	if level >= 0 {
		argv = append(argv, "-"+strconv.Itoa(level))
	}
	argv = append(argv, extraArgs...)
	return argv
}
