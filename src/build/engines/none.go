package engines

import (
	"context"

	"github.com/sofmeright/crtb/src/build"
)

func init() {
	build.Register("none", func() build.Engine { return &noneEngine{} })
}

// noneEngine passes resolved content through untouched.
type noneEngine struct{}

func (e *noneEngine) Name() string { return "none" }

func (e *noneEngine) Build(_ context.Context, _ *build.Runner, job build.Job) (string, error) {
	return job.Source, nil
}
