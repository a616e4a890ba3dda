// Package artifact narrows build output down to the one file or directory
// that gets deployed.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/logging"
)

var (
	// ErrArtifactMissing means the build output holds nothing deployable.
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrArtifactAmbiguous means candidates exist but the pattern matched
	// none of them.
	ErrArtifactAmbiguous = errors.New("artifact ambiguous")
)

// Locator finds a component's artifact. UnpackRoot is where archives are
// extracted when the artifact asks for it.
type Locator struct {
	UnpackRoot string
	Logger     *slog.Logger
}

type candidate struct {
	name    string
	modTime time.Time
}

// Locate returns the path of c's deployable inside buildOutput.
func (l *Locator) Locate(ctx context.Context, c component.Component, buildOutput string) (string, error) {
	path, err := l.find(c, buildOutput)
	if err != nil {
		return "", err
	}
	if !l.shouldUnpack(c, path) {
		return path, nil
	}
	return l.unpack(ctx, c, path)
}

func (l *Locator) find(c component.Component, buildOutput string) (string, error) {
	base := buildOutput
	if c.Artifact.Path != "" {
		base = filepath.Join(buildOutput, c.Artifact.Path)
	}

	info, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrArtifactMissing, base)
		}
		return "", fmt.Errorf("%w: %w", ErrArtifactMissing, err)
	}

	typ := c.ArtifactType()
	if !info.IsDir() || typ == component.ArtifactDir || typ == component.ArtifactRaw {
		return base, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrArtifactMissing, err)
	}

	exts := typ.Extensions()
	var candidates []candidate
	for _, e := range entries {
		if !e.Type().IsRegular() || !hasExtension(e.Name(), exts) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: e.Name(), modTime: fi.ModTime()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no %s files in %s", ErrArtifactMissing, describe(typ), base)
	}

	if re := l.pattern(c); re != nil {
		matched := candidates[:0:0]
		for _, cand := range candidates {
			if re.MatchString(cand.name) {
				matched = append(matched, cand)
			}
		}
		if len(matched) == 0 {
			return "", fmt.Errorf("%w: none of %d %s files in %s match %q",
				ErrArtifactAmbiguous, len(candidates), describe(typ), base, c.Artifact.Pattern)
		}
		candidates = matched
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.modTime.Equal(b.modTime) {
			return a.modTime.After(b.modTime)
		}
		return a.name < b.name
	})

	if len(candidates) > 1 {
		l.logger().Debug("multiple artifact candidates, picked newest",
			"component", c.Label(), "picked", candidates[0].name, "candidates", len(candidates))
	}
	return filepath.Join(base, candidates[0].name), nil
}

// pattern compiles the artifact pattern. An invalid pattern is logged and
// treated as absent.
func (l *Locator) pattern(c component.Component) *regexp.Regexp {
	if c.Artifact.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(c.Artifact.Pattern)
	if err != nil {
		l.logger().Warn("ignoring invalid artifact pattern",
			"component", c.Label(), "pattern", c.Artifact.Pattern, "error", err)
		return nil
	}
	return re
}

func (l *Locator) logger() *slog.Logger {
	return logging.OrDiscard(l.Logger)
}

func hasExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func describe(t component.ArtifactType) string {
	if exts := t.Extensions(); len(exts) > 0 {
		return strings.Join(exts, "/")
	}
	return "regular"
}
