// Package pathfs is the C1 path/fs service: directory walks with a
// prune callback, traversal-safe path joins, and the handful of
// read/write/copy/remove primitives every other component builds on.
package pathfs

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipasign/ipasign/internal/ipasignerr"
)

// BundleSuffixes are the directory suffixes that make a directory a signable bundle.
var BundleSuffixes = []string{".app", ".appex", ".framework", ".xctest"}

// RootSuffixes are the suffixes that identify a root bundle (as opposed to a
// nested framework or extension).
var RootSuffixes = []string{".app", ".appex"}

// HasAnySuffix reports whether name ends in any of suffixes.
func HasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// IsBundleDir reports whether name looks like a signable bundle directory.
func IsBundleDir(name string) bool { return HasAnySuffix(name, BundleSuffixes) }

// IsRootBundleDir reports whether name looks like a root bundle directory.
func IsRootBundleDir(name string) bool { return HasAnySuffix(name, RootSuffixes) }

// WalkFunc is invoked for every entry found during Walk. If it returns
// skipDir=true for a directory, Walk does not recurse into it.
type WalkFunc func(path string, isDir bool) (skipDir bool, err error)

// Walk performs a depth-first descent of root, invoking fn for every entry
// (directories and files alike) other than root itself. It carries no
// recursion hidden inside fn's own call stack — the traversal stack lives
// entirely in this function.
func Walk(root string, fn WalkFunc) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ipasignerr.New("pathfs.Walk", ipasignerr.KindIOFailure, root, err)
	}
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		isDir := entry.IsDir()
		skip, err := fn(path, isDir)
		if err != nil {
			return err
		}
		if isDir && !skip {
			if err := Walk(path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// SecureJoin joins root with the slash-separated relative path rel,
// rejecting any element that would let the result escape root: "..",
// empty-after-clean results outside root, and embedded NUL bytes. Every
// caller that turns a manifest-derived or archive-derived relative path
// into a filesystem path must go through this, not filepath.Join directly.
func SecureJoin(root, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", ipasignerr.New("pathfs.SecureJoin", ipasignerr.KindIOFailure, rel, errNullByte)
	}
	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, filepath.FromSlash(rel))
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", ipasignerr.New("pathfs.SecureJoin", ipasignerr.KindIOFailure, rel, errEscapesRoot)
	}
	return joined, nil
}

var (
	errNullByte    = joinErr("path contains a NUL byte")
	errEscapesRoot = joinErr("path escapes root directory")
)

type joinErr string

func (e joinErr) Error() string { return string(e) }

// FileExists reports whether path exists and is a regular file (or symlink to one).
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return ipasignerr.New("pathfs.EnsureDir", ipasignerr.KindIOFailure, path, err)
	}
	return nil
}

// RemoveIfExists removes path if present; absence is not an error.
func RemoveIfExists(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return ipasignerr.New("pathfs.RemoveIfExists", ipasignerr.KindIOFailure, path, err)
	}
	return nil
}

// CopyFile copies src to dst, preserving dst's directory creation, and the
// source file's mode bits.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ipasignerr.New("pathfs.CopyFile", ipasignerr.KindIOFailure, src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return ipasignerr.New("pathfs.CopyFile", ipasignerr.KindIOFailure, src, err)
	}
	if err := EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return ipasignerr.New("pathfs.CopyFile", ipasignerr.KindIOFailure, dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return ipasignerr.New("pathfs.CopyFile", ipasignerr.KindIOFailure, dst, err)
	}
	return nil
}

// SafeWriteFile writes data to path atomically: it writes to a sibling
// temp file and renames over the destination, so a crash mid-write never
// leaves a truncated CodeResources or Info.plist behind.
func SafeWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ipasign-tmp-*")
	if err != nil {
		return ipasignerr.New("pathfs.SafeWriteFile", ipasignerr.KindIOFailure, path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ipasignerr.New("pathfs.SafeWriteFile", ipasignerr.KindIOFailure, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ipasignerr.New("pathfs.SafeWriteFile", ipasignerr.KindIOFailure, path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return ipasignerr.New("pathfs.SafeWriteFile", ipasignerr.KindIOFailure, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ipasignerr.New("pathfs.SafeWriteFile", ipasignerr.KindIOFailure, path, err)
	}
	return nil
}

// ReadFile reads the full content of path, wrapping any error.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ipasignerr.New("pathfs.ReadFile", ipasignerr.KindIOFailure, path, err)
	}
	return data, nil
}
