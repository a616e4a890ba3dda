package engines

import (
	"context"
	"fmt"

	"github.com/sofmeright/crtb/src/build"
	"github.com/sofmeright/crtb/src/component"
)

func init() {
	build.Register("custom", func() build.Engine { return &customEngine{} })
}

// customEngine runs an arbitrary command in the runner container.
type customEngine struct{}

func (e *customEngine) Name() string { return "custom" }

func (e *customEngine) Build(ctx context.Context, r *build.Runner, job build.Job) (string, error) {
	spec, ok := job.Component.BuildSpec().(component.CustomBuild)
	if !ok {
		return "", fmt.Errorf("custom engine: expected component.CustomBuild, got %T", job.Component.BuildSpec())
	}
	if spec.Command == "" {
		return "", &build.BuildError{Component: job.Component.Label(), Engine: e.Name(), Err: fmt.Errorf("no command configured")}
	}

	dir := build.ResolvePath(job.Workdir, spec.Workdir)
	if err := r.Container(ctx, job, e.Name(), dir, spec.Command); err != nil {
		return "", err
	}
	return build.ResolvePath(dir, spec.Output), nil
}
