package artifact

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/fsutil"
)

// shouldUnpack reports whether the located path is an archive to extract.
// A world delivered as a single file is always an archive.
func (l *Locator) shouldUnpack(c component.Component, path string) bool {
	if !c.Artifact.Unzip && c.Kind != component.World {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// UnpackDir is where c's archive is extracted.
func (l *Locator) UnpackDir(c component.Component) string {
	return filepath.Join(l.UnpackRoot, strings.ReplaceAll(string(c.ID()), ":", "-"))
}

func (l *Locator) unpack(ctx context.Context, c component.Component, archive string) (string, error) {
	if l.UnpackRoot == "" {
		return "", fmt.Errorf("unpacking %s: no unpack directory configured", archive)
	}
	dest := l.UnpackDir(c)
	if err := os.MkdirAll(filepath.Dir(dest), fsutil.DirMode); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	if err := Extract(ctx, archive, tmp); err != nil {
		return "", fmt.Errorf("unpacking %s: %w", archive, err)
	}
	if err := fsutil.ReplaceDir(ctx, tmp, dest); err != nil {
		return "", err
	}
	l.logger().Debug("artifact unpacked", "component", c.Label(), "archive", archive, "dest", dest)
	return dest, nil
}

// Extract writes every entry of the archive at src under dest. Entries that
// would land outside dest are rejected.
func Extract(ctx context.Context, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(src), f)
	if err != nil {
		return fmt.Errorf("identifying archive: %w", err)
	}
	ex, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("%s is not an extractable archive", filepath.Base(src))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	return ex.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := entryPath(root, info.NameInArchive)
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			return os.MkdirAll(target, fsutil.DirMode)
		case info.Mode()&fs.ModeSymlink != 0:
			// Symlinks could point anywhere on the host.
			return nil
		case !info.Mode().IsRegular():
			return nil
		}
		return writeEntry(info, target)
	})
}

func entryPath(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(name, "/")))
	target := filepath.Join(root, clean)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return target, nil
}

func writeEntry(info archives.FileInfo, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), fsutil.DirMode); err != nil {
		return err
	}
	in, err := info.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	perm := info.Mode().Perm() | 0o200
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
