// Package deploy drives every selected component through
// resolve, build, locate, evict and deploy, concurrently and with failures
// isolated per component.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sofmeright/crtb/src/artifact"
	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/fsutil"
	"github.com/sofmeright/crtb/src/logging"
	"github.com/sofmeright/crtb/src/manifest"
	"github.com/sofmeright/crtb/src/source"
	"github.com/sofmeright/crtb/src/status"
)

// vcsDir is the checkout metadata folder left out of deployed content.
const vcsDir = ".git"

// DefaultResolveNotice is how long resolution runs before the status line
// says so.
const DefaultResolveNotice = 60 * time.Second

var (
	// ErrDeployFailed wraps copy and write errors while deploying.
	ErrDeployFailed = errors.New("deploy failed")
	// ErrUnsupportedKind means the server flavor cannot load the component.
	ErrUnsupportedKind = errors.New("unsupported kind")
)

// SourceResolver produces a local path with a component's raw content.
type SourceResolver interface {
	Resolve(ctx context.Context, c component.Component, opts source.Options) (source.Result, error)
}

// Builder turns resolved content into build output.
type Builder interface {
	Run(ctx context.Context, c component.Component, source string) (string, error)
}

// ArtifactLocator picks the deployable inside build output.
type ArtifactLocator interface {
	Locate(ctx context.Context, c component.Component, buildOutput string) (string, error)
}

// Options tune one batch.
type Options struct {
	// Pull forces fresh source resolution and disables the up-to-date
	// short-circuit.
	Pull bool
}

// Orchestrator deploys components into one server tree.
type Orchestrator struct {
	Flavor   string
	Layout   Layout
	Sources  SourceResolver
	Builder  Builder
	Locator  ArtifactLocator
	Manifest *manifest.Manifest
	Status   status.Reporter
	Logger   *slog.Logger

	// Jobs caps concurrently running components. Zero means no limit.
	Jobs int
	// ResolveNotice is when a slow resolution is flagged in the status.
	ResolveNotice time.Duration
	// ResolveTimeout cancels a resolution that runs longer. Zero disables it.
	ResolveTimeout time.Duration
}

// Run deploys comps concurrently and waits for all of them. It never stops
// early because one component failed; cancelling ctx stops work that has
// not finished yet.
func (o *Orchestrator) Run(ctx context.Context, comps []component.Component, opts Options) Batch {
	start := time.Now()
	batch := Batch{RunID: uuid.NewString(), Outcomes: make([]Outcome, len(comps))}
	logger := o.logger().With("run", batch.RunID)
	logger.Info("deploy batch started", "components", len(comps), "pull", opts.Pull, "flavor", o.Flavor)

	for _, c := range comps {
		o.status().Start(c.Label(), status.PhaseQueued, "")
	}

	var g errgroup.Group
	if o.Jobs > 0 {
		g.SetLimit(o.Jobs)
	}
	for i, c := range comps {
		g.Go(func() error {
			batch.Outcomes[i] = o.deployOne(ctx, logger.With("component", c.Label()), c, opts)
			return nil
		})
	}
	_ = g.Wait()

	if err := o.Manifest.SaveIfDirty(); err != nil {
		logger.Warn("saving deploy manifest", "error", err)
	}

	batch.Duration = time.Since(start)
	logger.Info("deploy batch finished",
		"succeeded", batch.Succeeded(), "cached", batch.Cached(), "failed", batch.Failed(),
		"elapsed", batch.Duration.Round(time.Millisecond))
	return batch
}

// pipeline tracks one component through its states.
type pipeline struct {
	o      *Orchestrator
	c      component.Component
	logger *slog.Logger
	start  time.Time
	phase  status.Phase
}

func (p *pipeline) enter(phase status.Phase, msg string) {
	p.phase = phase
	p.o.status().Update(p.c.Label(), phase, msg)
}

func (p *pipeline) fail(msg string, err error) Outcome {
	p.logger.Warn("component failed", "phase", string(p.phase), "reason", msg, "error", err)
	p.o.status().Fail(p.c.Label(), p.phase, msg)
	return Outcome{
		ID: p.c.ID(), Name: p.c.Label(), Kind: p.c.Kind,
		Message: msg, Phase: p.phase, Err: err,
		Duration: time.Since(p.start),
	}
}

func (p *pipeline) succeed(msg string, cached bool, paths []string) Outcome {
	p.logger.Info("component deployed", "cached", cached, "paths", paths)
	p.o.status().Succeed(p.c.Label(), msg)
	return Outcome{
		ID: p.c.ID(), Name: p.c.Label(), Kind: p.c.Kind,
		Success: true, Cached: cached, Message: msg, Phase: status.PhaseSucceeded,
		Paths: paths, Duration: time.Since(p.start),
	}
}

func (o *Orchestrator) deployOne(ctx context.Context, logger *slog.Logger, c component.Component, opts Options) Outcome {
	p := &pipeline{o: o, c: c, logger: logger, start: time.Now(), phase: status.PhaseQueued}

	if err := ctx.Err(); err != nil {
		return p.fail("cancelled", err)
	}
	if !o.Layout.Supports(c.Kind) {
		return p.fail("unsupported on "+o.Flavor,
			fmt.Errorf("%w: %s on %s", ErrUnsupportedKind, c.Kind.Plural(), o.Flavor))
	}

	p.enter(status.PhaseResolving, "")
	res, err := o.resolve(ctx, c, opts)
	if err != nil {
		return p.fail("source unavailable", err)
	}

	if res.Cached && !opts.Pull && o.upToDate(c) {
		return p.succeed("up to date", true, o.Manifest.Paths(c.ID()))
	}

	p.enter(status.PhaseBuilding, "")
	out, err := o.Builder.Run(ctx, c, res.Path)
	if err != nil {
		return p.fail("build failed", err)
	}

	p.enter(status.PhaseLocating, "")
	art, err := o.Locator.Locate(ctx, c, out)
	if err != nil {
		msg := "artifact missing"
		if errors.Is(err, artifact.ErrArtifactAmbiguous) {
			msg = "artifact ambiguous"
		}
		return p.fail(msg, err)
	}

	planned, err := o.plan(c, art)
	if err != nil {
		return p.fail("deploy failed", fmt.Errorf("%w: %w", ErrDeployFailed, err))
	}

	p.enter(status.PhaseEvicting, "")
	// Record the union before touching the disk so a crash between here and
	// the final record still leaves every path we may have written tracked.
	prev, err := o.Manifest.Update(c.ID(), func(prev []string) []string {
		return append(prev, planned...)
	})
	if err != nil {
		logger.Warn("persisting deploy manifest", "error", err)
	}
	o.evict(logger, c, prev, art)

	p.enter(status.PhaseDeploying, "")
	deployed, err := o.deploy(ctx, c, art)
	if err != nil {
		if _, merr := o.Manifest.Update(c.ID(), func([]string) []string { return planned }); merr != nil {
			logger.Warn("persisting deploy manifest", "error", merr)
		}
		return p.fail("deploy failed", fmt.Errorf("%w: %w", ErrDeployFailed, err))
	}

	if _, err := o.Manifest.Update(c.ID(), func([]string) []string { return deployed }); err != nil {
		logger.Warn("persisting deploy manifest", "error", err)
	}
	return p.succeed("deployed", false, deployed)
}

// resolve runs the source resolver under the resolve deadline and flags it
// in the status once it runs past the notice threshold.
func (o *Orchestrator) resolve(ctx context.Context, c component.Component, opts Options) (source.Result, error) {
	if o.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.ResolveTimeout)
		defer cancel()
	}
	notice := o.ResolveNotice
	if notice <= 0 {
		notice = DefaultResolveNotice
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTimer(notice)
		defer t.Stop()
		select {
		case <-t.C:
			o.status().Update(c.Label(), status.PhaseResolving, fmt.Sprintf("still resolving after %s", notice))
		case <-done:
		}
	}()
	defer wg.Wait()
	defer close(done)

	return o.Sources.Resolve(ctx, c, source.Options{Pull: opts.Pull})
}

// upToDate reports whether the manifest records paths for c and all of them
// are still on disk.
func (o *Orchestrator) upToDate(c component.Component) bool {
	paths := o.Manifest.Paths(c.ID())
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if !fsutil.Exists(p) {
			return false
		}
	}
	return true
}

// plan lists the absolute paths deploying art will create. A world owns
// the top-level entries it ships, except the datapacks folder, where it
// owns only the packs it ships.
func (o *Orchestrator) plan(c component.Component, art string) ([]string, error) {
	dest := o.Layout.Dir(c.Kind)
	if c.Kind != component.World {
		return []string{o.target(c, art, dest)}, nil
	}
	entries, err := os.ReadDir(art)
	if err != nil {
		return nil, err
	}
	datapacks := o.Layout.Dir(component.Datapack)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == vcsDir {
			continue
		}
		p := filepath.Join(dest, e.Name())
		if e.IsDir() && p == datapacks {
			packs, err := os.ReadDir(filepath.Join(art, e.Name()))
			if err != nil {
				return nil, err
			}
			for _, pack := range packs {
				if pack.Name() != vcsDir {
					out = append(out, filepath.Join(p, pack.Name()))
				}
			}
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// target is where a non-world artifact lands: a file keeps its name, a
// directory is named after the component.
func (o *Orchestrator) target(c component.Component, art, dest string) string {
	if fsutil.IsDir(art) {
		return filepath.Join(dest, c.Name)
	}
	return filepath.Join(dest, filepath.Base(art))
}

// evict removes previously deployed paths of c. Paths that hold the new
// artifact, or live inside it, are kept, as are the kind directories and
// anything holding a path another component has recorded.
func (o *Orchestrator) evict(logger *slog.Logger, c component.Component, prev []string, art string) {
	for _, p := range prev {
		if fsutil.SamePath(p, art) || within(art, p) || within(p, art) {
			continue
		}
		if o.Layout.IsKindDir(p) {
			continue
		}
		if owner, ok := o.ownedByOther(c.ID(), p); ok {
			logger.Debug("keeping path shared with another component", "path", p, "owner", string(owner))
			continue
		}
		if err := fsutil.RemoveIfExists(p); err != nil {
			logger.Warn("removing previously deployed path", "path", p, "error", err)
		}
	}
}

// ownedByOther reports the first component other than id whose recorded
// paths equal p or lie inside it.
func (o *Orchestrator) ownedByOther(id component.ID, p string) (component.ID, bool) {
	for _, other := range o.Manifest.IDs() {
		if other == id {
			continue
		}
		for _, q := range o.Manifest.Paths(other) {
			if fsutil.SamePath(p, q) || within(q, p) {
				return other, true
			}
		}
	}
	return "", false
}

// deploy copies art into place and returns the deployed paths.
func (o *Orchestrator) deploy(ctx context.Context, c component.Component, art string) ([]string, error) {
	dest := o.Layout.Dir(c.Kind)

	if c.Kind == component.World {
		paths, err := o.plan(c, art)
		if err != nil {
			return nil, err
		}
		if fsutil.SamePath(art, dest) {
			return paths, nil
		}
		if err := fsutil.Merge(ctx, art, dest, fsutil.SkipNames(vcsDir)); err != nil {
			return nil, err
		}
		return paths, nil
	}

	target := o.target(c, art, dest)
	if fsutil.SamePath(art, target) {
		return []string{target}, nil
	}
	if fsutil.IsDir(art) {
		if err := fsutil.ReplaceDir(ctx, art, target, fsutil.SkipNames(vcsDir)); err != nil {
			return nil, err
		}
	} else if err := fsutil.Copy(ctx, art, target); err != nil {
		return nil, err
	}
	return []string{target}, nil
}

func (o *Orchestrator) status() status.Reporter {
	if o.Status == nil {
		return status.Discard
	}
	return o.Status
}

func (o *Orchestrator) logger() *slog.Logger {
	return logging.OrDiscard(o.Logger)
}

// within reports whether p lies strictly inside dir.
func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
