package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
)

// TarEntries reads a tar archive, transparently unwrapping gzip, and returns
// the contents of its regular files keyed by path. Directories are recorded
// with a nil value. This is a verification helper; extraction for real use
// goes through the external tools.
func TarEntries(path string) (map[string][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	entries := make(map[string][]byte)
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			entries[hdr.Name] = nil
		case tar.TypeReg:
			content, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read file %s: %w", hdr.Name, err)
			}
			entries[hdr.Name] = content
		}
	}
	return entries, nil
}

// TarPaths returns the sorted entry paths of a tar archive.
func TarPaths(path string) ([]string, error) {
	entries, err := TarEntries(path)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
