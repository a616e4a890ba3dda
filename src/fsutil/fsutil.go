// Package fsutil holds the filesystem helpers shared by source staging and
// deployment: tree copies that honor cancellation, in-place merges, and
// path identity checks.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Default permission modes.
const (
	DirMode  os.FileMode = 0o755
	FileMode os.FileMode = 0o644
)

// Option adjusts how a tree is copied.
type Option func(*copyOptions)

type copyOptions struct {
	skip map[string]bool
}

// SkipNames leaves out files and directories with these base names at any
// depth below the copied root.
func SkipNames(names ...string) Option {
	return func(o *copyOptions) {
		if o.skip == nil {
			o.skip = make(map[string]bool, len(names))
		}
		for _, n := range names {
			o.skip[n] = true
		}
	}
}

func applyOptions(opts []Option) copyOptions {
	var o copyOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Exists reports whether p exists.
func Exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// IsDir reports whether p is an existing directory.
func IsDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// NonEmptyDir reports whether p is a directory with at least one entry.
func NonEmptyDir(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	return err == nil && len(names) > 0
}

// SamePath reports whether a and b resolve to the same location. Paths that
// do not exist yet are compared after cleaning.
func SamePath(a, b string) bool {
	return resolve(a) == resolve(b)
}

func resolve(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = filepath.Clean(p)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

// Copy copies src (file or directory) to dst. A directory is copied
// recursively and dst must not exist yet; a file replaces dst.
func Copy(ctx context.Context, src, dst string, opts ...Option) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyTree(ctx, src, dst, applyOptions(opts))
	}
	return CopyFile(src, dst, info.Mode().Perm())
}

// Merge copies the entries of directory src into directory dst, creating
// dst when needed and overwriting files that already exist there.
func Merge(ctx context.Context, src, dst string, opts ...Option) error {
	return merge(ctx, src, dst, applyOptions(opts))
}

func merge(ctx context.Context, src, dst string, o copyOptions) error {
	if err := os.MkdirAll(dst, DirMode); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.skip[e.Name()] {
			continue
		}
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := merge(ctx, from, to, o); err != nil {
				return err
			}
			continue
		}
		if err := copyEntry(from, to, e); err != nil {
			return err
		}
	}
	return nil
}

// CopyFile copies a regular file, replacing dst through a temp file in the
// same directory.
func CopyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), DirMode); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if mode == 0 {
		mode = FileMode
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReplaceDir copies directory src to a temporary sibling of dst and swaps it
// into place, so dst is never observed half-written.
func ReplaceDir(ctx context.Context, src, dst string, opts ...Option) error {
	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, DirMode); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	staged := filepath.Join(tmp, "content")
	if err := copyTree(ctx, src, staged, applyOptions(opts)); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(staged, dst); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	return os.RemoveAll(tmp)
}

// RemoveIfExists deletes p recursively. A missing path is not an error.
func RemoveIfExists(p string) error {
	if _, err := os.Lstat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(p)
}

func copyTree(ctx context.Context, src, dst string, o copyOptions) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != src && o.skip[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyEntry(path, target, d)
	})
}

// copyEntry copies one non-directory entry, recreating symlinks as links.
func copyEntry(src, dst string, d fs.DirEntry) error {
	if d.Type()&fs.ModeSymlink != 0 {
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := RemoveIfExists(dst); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), DirMode); err != nil {
			return err
		}
		return os.Symlink(link, dst)
	}
	if !d.Type().IsRegular() {
		// Sockets, devices and pipes are not deployable content.
		return nil
	}
	info, err := d.Info()
	if err != nil {
		return err
	}
	return CopyFile(src, dst, info.Mode().Perm())
}
