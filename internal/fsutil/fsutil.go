// Package fsutil provides file system utility functions on top of afero.
package fsutil

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// Glob returns the paths in fsys matching pattern, sorted lexically.
func Glob(fsys afero.Fs, pattern string) ([]string, error) {
	matches, err := afero.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// CopyFile copies src to dst, creating dst's parent directories. An existing
// dst is truncated.
func CopyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", src, err)
	}
	defer in.Close()

	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", dst, err)
	}

	out, err := fsys.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy '%s' to '%s': %w", src, dst, err)
	}
	return out.Close()
}

// TrimNiftiExt removes up to two trailing extensions from a file name, so
// both "x.nii.gz" and "x.nii" become "x".
func TrimNiftiExt(name string) string {
	for range 2 {
		name = trimExt(name)
	}
	return name
}

// trimExt drops the last extension. A name whose only dot is the leading
// one, such as ".gz", has no extension.
func trimExt(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || len(ext) == len(name) {
		return name
	}
	return name[:len(name)-len(ext)]
}
