package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/fsutil"
)

// resolveLocal stages a local directory or file.
//
// The world is not staged: its local path is used in place and the
// orchestrator merges it into the server's world folder.
func (r *Resolver) resolveLocal(ctx context.Context, c component.Component, src component.LocalSource, opts Options) (Result, error) {
	from := r.abs(src.Path)

	if c.Kind == component.World {
		if !fsutil.Exists(from) {
			return Result{}, unavailable("%s does not exist", from)
		}
		return Result{Path: from}, nil
	}

	staging := c.StagingDir(r.ProjectRoot)
	if !opts.Pull && fsutil.NonEmptyDir(staging) {
		return Result{Path: staging}, nil
	}

	if fsutil.SamePath(from, staging) {
		if fsutil.Exists(staging) {
			return Result{Path: staging}, nil
		}
		return Result{}, unavailable("%s does not exist", staging)
	}

	info, err := os.Stat(from)
	if err != nil {
		if fsutil.NonEmptyDir(staging) {
			r.logger().Warn("local source missing, keeping staged content",
				"component", c.Label(), "source", from, "staging", staging)
			return Result{Path: staging}, nil
		}
		return Result{}, unavailableErr("reading "+from, err)
	}

	if info.IsDir() {
		if err := fsutil.ReplaceDir(ctx, from, staging); err != nil {
			return Result{}, unavailableErr("copying "+from, err)
		}
		return Result{Path: staging}, nil
	}

	// A single file (a prebuilt jar, a zipped datapack) becomes the only
	// entry of the staging directory.
	if err := os.MkdirAll(filepath.Dir(staging), fsutil.DirMode); err != nil {
		return Result{}, unavailableErr("staging "+from, err)
	}
	tmp, err := os.MkdirTemp(filepath.Dir(staging), "."+c.Name+".src-*")
	if err != nil {
		return Result{}, unavailableErr("staging "+from, err)
	}
	defer os.RemoveAll(tmp)
	if err := fsutil.CopyFile(from, filepath.Join(tmp, filepath.Base(from)), info.Mode().Perm()); err != nil {
		return Result{}, unavailableErr("copying "+from, err)
	}
	if err := fsutil.ReplaceDir(ctx, tmp, staging); err != nil {
		return Result{}, unavailableErr("copying "+from, err)
	}
	return Result{Path: staging}, nil
}
