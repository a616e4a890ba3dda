// Package source materializes a component's raw content on local disk.
//
// Local sources are copied into the component's staging directory, HTTP
// sources are downloaded into a per-component cache with conditional
// revalidation, and git sources are checked out with go-git. A routine
// (non-pull) resolution never touches the network when usable content is
// already on disk.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/fsutil"
	"github.com/sofmeright/crtb/src/logging"
)

// DefaultHTTPTimeout bounds a single download.
const DefaultHTTPTimeout = 120 * time.Second

// ErrSourceUnavailable is returned when no usable content could be
// produced for a component.
var ErrSourceUnavailable = errors.New("source unavailable")

// Options tune a single resolution.
type Options struct {
	// Pull forces the remote to be consulted even when cached or staged
	// content exists.
	Pull bool
}

// Result is a resolved source.
type Result struct {
	// Path is the directory (or single downloaded file) holding the content.
	Path string
	// Cached is true when the content came from the HTTP cache unchanged.
	Cached bool
}

// Resolver resolves component sources. The zero value is not usable; set at
// least ProjectRoot and CacheRoot.
type Resolver struct {
	ProjectRoot string
	CacheRoot   string
	HTTPClient  *http.Client
	HTTPTimeout time.Duration
	Logger      *slog.Logger
}

// Resolve guarantees a local path with c's raw content.
func (r *Resolver) Resolve(ctx context.Context, c component.Component, opts Options) (Result, error) {
	switch src := c.Source.(type) {
	case nil:
		return r.resolveUndeclared(c)
	case component.LocalSource:
		return r.resolveLocal(ctx, c, src, opts)
	case component.HTTPSource:
		return r.resolveHTTP(ctx, c, src, opts)
	case component.GitSource:
		return r.resolveGit(ctx, c, src, opts)
	default:
		panic(fmt.Sprintf("source: unhandled source type %T", src))
	}
}

// resolveUndeclared accepts whatever already sits in the staging directory.
func (r *Resolver) resolveUndeclared(c component.Component) (Result, error) {
	if c.Kind == component.World {
		return Result{}, unavailable("world has no source declared")
	}
	staging := c.StagingDir(r.ProjectRoot)
	if fsutil.NonEmptyDir(staging) {
		return Result{Path: staging}, nil
	}
	return Result{}, unavailable("no source declared and %s is empty", staging)
}

func (r *Resolver) logger() *slog.Logger {
	return logging.OrDiscard(r.Logger)
}

func (r *Resolver) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.ProjectRoot, p)
}

// cacheName is the per-component directory name inside the caches.
func cacheName(c component.Component) string {
	if c.Kind == component.World {
		return "world"
	}
	return c.Name
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, fmt.Sprintf(format, args...))
}

func unavailableErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, what, err)
}
