package build

import (
	"os"
	"path/filepath"
)

// GradleWrapper is the wrapper script name looked up in a project.
const GradleWrapper = "gradlew"

// Toolchain is a host Gradle installation usable for a project.
type Toolchain struct {
	// Argv is the command prefix the task name is appended to.
	Argv []string
}

// DetectGradle finds a host toolchain for the project in dir: the project's
// wrapper when a Java runtime is available, otherwise a system gradle.
func (r *Runner) DetectGradle(dir string) (Toolchain, bool) {
	wrapper := filepath.Join(dir, GradleWrapper)
	if info, err := os.Stat(wrapper); err == nil && info.Mode().IsRegular() && r.hasJava() {
		return Toolchain{Argv: []string{"sh", wrapper}}, true
	}
	if r.HasCommand("gradle") {
		return Toolchain{Argv: []string{"gradle"}}, true
	}
	return Toolchain{}, false
}

func (r *Runner) hasJava() bool {
	if home := r.getenv("JAVA_HOME"); home != "" {
		if info, err := os.Stat(filepath.Join(home, "bin", "java")); err == nil && !info.IsDir() {
			return true
		}
	}
	return r.HasCommand("java")
}

// GradleScript is the shell command used when the task runs in the container.
func GradleScript(dir, task string) string {
	if _, err := os.Stat(filepath.Join(dir, GradleWrapper)); err == nil {
		return "sh ./" + GradleWrapper + " " + task + " --no-daemon"
	}
	return "gradle " + task + " --no-daemon"
}
