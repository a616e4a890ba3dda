// Package build runs a component's build step.
//
// Engines are looked up by the component's build type in a registry filled
// from init() in package engines. Gradle builds run on the host when a
// toolchain is available and in the runner container otherwise. Custom
// commands always run in the container.
package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/logging"
)

// DefaultContainerEngine is the container CLI used when none is configured.
const DefaultContainerEngine = "docker"

// maxCaptured bounds the stderr kept for a failed build.
const maxCaptured = 64 << 10

// Job is the input of a single engine run.
type Job struct {
	Component component.Component
	// Source is the resolved source path, a directory or a single file.
	Source string
	// Workdir is the directory the build runs in.
	Workdir string
}

// Runner carries everything engines need to execute a build.
type Runner struct {
	// Image is the runner container image.
	Image string
	// ContainerEngine is the container CLI binary (docker, podman).
	ContainerEngine string
	Executor        Executor

	// LookPath and Getenv locate host toolchains. Nil uses the os versions.
	LookPath func(string) (string, error)
	Getenv   func(string) string

	// User is the "uid:gid" the container runs as. Empty uses the caller's.
	User string

	// LogLine receives every output line when streaming is enabled.
	LogLine func(label, line string)
	Stream  bool

	Verbose bool
	Logger  *slog.Logger
}

// Run builds c from the resolved source path and returns the output path.
func (r *Runner) Run(ctx context.Context, c component.Component, source string) (string, error) {
	spec := c.BuildSpec()
	eng, err := Get(spec.Type())
	if err != nil {
		return "", &BuildError{Component: c.Label(), Engine: spec.Type(), Err: err}
	}

	workdir := source
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		workdir = filepath.Dir(source)
	}

	start := time.Now()
	out, err := eng.Build(ctx, r, Job{Component: c, Source: source, Workdir: workdir})
	if err != nil {
		return "", err
	}
	r.logger().Debug("build finished", "component", c.Label(), "engine", eng.Name(),
		"output", out, "elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// Local runs argv on the host in dir.
func (r *Runner) Local(ctx context.Context, job Job, engine, dir string, argv []string) error {
	return r.exec(ctx, job, engine, Command{Name: argv[0], Args: argv[1:], Dir: dir})
}

// Container runs a shell command inside the runner image with the
// component workdir mounted at the same path.
func (r *Runner) Container(ctx context.Context, job Job, engine, dir, script string) error {
	if r.Image == "" {
		return &BuildError{Component: job.Component.Label(), Engine: engine,
			Err: fmt.Errorf("no runner image configured (runner.image)")}
	}
	args := ContainerArgs(ContainerSpec{
		Image:   r.Image,
		Mounts:  mounts(job.Workdir, dir),
		Workdir: dir,
		User:    r.user(),
		Script:  script,
	})
	return r.exec(ctx, job, engine, Command{Name: r.containerEngine(), Args: args, Dir: job.Workdir})
}

func (r *Runner) exec(ctx context.Context, job Job, engine string, cmd Command) error {
	label := job.Component.Label()
	if r.Verbose {
		r.logger().Debug("exec", "component", label, "cmd", cmd.Name+" "+strings.Join(cmd.Args, " "))
	}

	var captured *bytes.Buffer
	var tail *tailBuffer
	var streams []*lineWriter
	if r.Stream && r.LogLine != nil {
		tail = newTailBuffer(tailLines)
		emit := func(line string) {
			tail.add(line)
			r.LogLine(label, line)
		}
		streams = []*lineWriter{newLineWriter(emit), newLineWriter(emit)}
		cmd.Stdout, cmd.Stderr = streams[0], streams[1]
	} else {
		captured = &bytes.Buffer{}
		cmd.Stdout = io.Discard
		cmd.Stderr = &limitedWriter{w: captured, n: maxCaptured}
	}

	executor := r.Executor
	if executor == nil {
		executor = OSExecutor{}
	}
	err := executor.Run(ctx, cmd)
	for _, lw := range streams {
		lw.Flush()
	}
	if err != nil {
		be := &BuildError{Component: label, Engine: engine, Err: err}
		if captured != nil {
			be.Output = captured.String()
		} else {
			be.Output = strings.Join(tail.lines(), "\n")
		}
		return be
	}
	return nil
}

// HasCommand reports whether name is on PATH.
func (r *Runner) HasCommand(name string) bool {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(name)
	return err == nil
}

func (r *Runner) getenv(key string) string {
	if r.Getenv != nil {
		return r.Getenv(key)
	}
	return os.Getenv(key)
}

func (r *Runner) containerEngine() string {
	if r.ContainerEngine != "" {
		return r.ContainerEngine
	}
	return DefaultContainerEngine
}

func (r *Runner) user() string {
	if r.User != "" {
		return r.User
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

func (r *Runner) logger() *slog.Logger {
	return logging.OrDiscard(r.Logger)
}

// mounts returns the host directories the container needs: the component
// workdir, plus dir when it lives outside it.
func mounts(workdir, dir string) []string {
	out := []string{workdir}
	if rel, err := filepath.Rel(workdir, dir); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		out = append(out, dir)
	}
	return out
}

// ResolvePath resolves p against base, returning base itself for an empty p.
func ResolvePath(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
