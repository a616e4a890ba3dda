package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/fsutil"
)

const (
	gitCacheDir = "git"
	remoteName  = "origin"
)

// gitDir is where a git source is checked out: the staging directory for
// regular components, and <cacheRoot>/git/world for the world.
func (r *Resolver) gitDir(c component.Component) string {
	if c.Kind == component.World {
		return filepath.Join(r.CacheRoot, gitCacheDir, cacheName(c))
	}
	return c.StagingDir(r.ProjectRoot)
}

// resolveGit maintains a checkout of src. An existing checkout is reused as
// is unless a pull is requested; a pull (or a missing checkout) contacts the
// remote, moves to the pinned commit or the tip of the tracked branch, and
// syncs submodules recursively.
func (r *Resolver) resolveGit(ctx context.Context, c component.Component, src component.GitSource, opts Options) (Result, error) {
	dir := r.gitDir(c)
	log := r.logger().With("component", c.Label(), "url", src.URL)

	repo, err := git.PlainOpen(dir)
	switch {
	case err == nil:
		if !sameRemote(repo, src.URL) {
			log.Warn("checkout tracks a different remote, recloning", "path", dir)
			if err := os.RemoveAll(dir); err != nil {
				return Result{}, unavailableErr("removing "+dir, err)
			}
			repo = nil
		}
	case fsutil.Exists(dir):
		log.Warn("staging path is not a git checkout, replacing it", "path", dir)
		if err := os.RemoveAll(dir); err != nil {
			return Result{}, unavailableErr("removing "+dir, err)
		}
	}

	if repo != nil && !opts.Pull {
		return Result{Path: dir}, nil
	}

	if repo == nil {
		if err := r.gitClone(ctx, dir, src); err != nil {
			// Never leave a half-cloned directory that a later non-pull run
			// would mistake for a usable checkout.
			os.RemoveAll(dir)
			return Result{}, unavailableErr("cloning "+src.URL, err)
		}
		log.Debug("git source cloned", "path", dir)
		return Result{Path: dir}, nil
	}

	if err := r.gitUpdate(ctx, repo, src); err != nil {
		return Result{}, unavailableErr("updating "+src.URL, err)
	}
	log.Debug("git source updated", "path", dir)
	return Result{Path: dir}, nil
}

func (r *Resolver) gitClone(ctx context.Context, dir string, src component.GitSource) error {
	if err := os.MkdirAll(filepath.Dir(dir), fsutil.DirMode); err != nil {
		return err
	}
	opts := &git.CloneOptions{
		URL:          src.URL,
		RemoteName:   remoteName,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if src.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Branch)
	}
	if src.Commit == "" {
		// A pinned commit may be anywhere in history; only tip tracking can
		// get away with a shallow clone.
		opts.Depth = 1
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if src.Commit != "" {
		if err := checkoutCommit(repo, wt, src.Commit); err != nil {
			return err
		}
	}
	return updateSubmodules(ctx, wt)
}

func (r *Resolver) gitUpdate(ctx context.Context, repo *git.Repository, src component.GitSource) error {
	branch := src.Branch
	if branch == "" {
		head, err := repo.Head()
		if err == nil && head.Name().IsBranch() {
			branch = head.Name().Short()
		}
	}

	fetch := &git.FetchOptions{
		RemoteName: remoteName,
		Force:      true,
		Tags:       git.NoTags,
	}
	if branch != "" {
		fetch.RefSpecs = []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remoteName, branch)),
		}
	}
	if src.Commit == "" {
		fetch.Depth = 1
	}
	if err := repo.FetchContext(ctx, fetch); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	if src.Commit != "" {
		if err := checkoutCommit(repo, wt, src.Commit); err != nil {
			return err
		}
		return updateSubmodules(ctx, wt)
	}

	if branch == "" {
		return fmt.Errorf("cannot determine branch to track (detached HEAD and no branch configured)")
	}
	ref, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return fmt.Errorf("resolving %s/%s: %w", remoteName, branch, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  true,
	}); err != nil {
		// The local branch may not exist yet (detached checkout, or a
		// branch switch in the config).
		if err := wt.Checkout(&git.CheckoutOptions{
			Branch: plumbing.NewBranchReferenceName(branch),
			Hash:   ref.Hash(),
			Create: true,
			Force:  true,
		}); err != nil {
			return fmt.Errorf("checkout %s: %w", branch, err)
		}
	}
	if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to %s: %w", ref.Hash(), err)
	}
	return updateSubmodules(ctx, wt)
}

// checkoutCommit detaches the worktree at commit (full or abbreviated hash).
func checkoutCommit(repo *git.Repository, wt *git.Worktree, commit string) error {
	hash, err := repo.ResolveRevision(plumbing.Revision(commit))
	if err != nil {
		return fmt.Errorf("resolving commit %s: %w", commit, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", commit, err)
	}
	return nil
}

func updateSubmodules(ctx context.Context, wt *git.Worktree) error {
	subs, err := wt.Submodules()
	if err != nil {
		return fmt.Errorf("listing submodules: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	if err := subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}); err != nil {
		return fmt.Errorf("updating submodules: %w", err)
	}
	return nil
}

func sameRemote(repo *git.Repository, url string) bool {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return false
	}
	for _, u := range remote.Config().URLs {
		if u == url {
			return true
		}
	}
	return false
}
