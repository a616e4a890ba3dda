package engines

import (
	"context"
	"fmt"
	"strings"

	"github.com/sofmeright/crtb/src/build"
	"github.com/sofmeright/crtb/src/component"
)

func init() {
	build.Register("gradle", func() build.Engine { return &gradleEngine{} })
}

// DefaultGradleTask runs when a gradle build names no task.
const DefaultGradleTask = "build"

// gradleEngine runs a Gradle task, on the host when a toolchain is found and
// in the runner container otherwise.
type gradleEngine struct{}

func (e *gradleEngine) Name() string { return "gradle" }

func (e *gradleEngine) Build(ctx context.Context, r *build.Runner, job build.Job) (string, error) {
	spec, ok := job.Component.BuildSpec().(component.GradleBuild)
	if !ok {
		return "", fmt.Errorf("gradle engine: expected component.GradleBuild, got %T", job.Component.BuildSpec())
	}
	task := spec.Task
	if task == "" {
		task = DefaultGradleTask
	}

	if tc, ok := r.DetectGradle(job.Workdir); ok {
		argv := append(append([]string(nil), tc.Argv...), strings.Fields(task)...)
		argv = append(argv, "--no-daemon")
		if err := r.Local(ctx, job, e.Name(), job.Workdir, argv); err != nil {
			return "", err
		}
	} else {
		if err := r.Container(ctx, job, e.Name(), job.Workdir, build.GradleScript(job.Workdir, task)); err != nil {
			return "", err
		}
	}

	return build.ResolvePath(job.Workdir, spec.Output), nil
}
