package build

// ContainerSpec describes one run of the runner image.
type ContainerSpec struct {
	Image   string
	Mounts  []string // host paths, mounted at the same path inside
	Workdir string
	User    string // uid:gid
	Script  string // passed to sh -c
}

// containerEnv pins a non-interactive terminal inside the container. HOME
// points at a writable location because the host uid has no passwd entry.
var containerEnv = []string{
	"TERM=dumb",
	"CI=true",
	"HOME=/tmp",
}

// ContainerArgs constructs the `<engine> run` argument list.
func ContainerArgs(spec ContainerSpec) []string {
	args := []string{"run", "--rm"}

	for _, m := range spec.Mounts {
		args = append(args, "-v", m+":"+m)
	}
	if spec.Workdir != "" {
		args = append(args, "-w", spec.Workdir)
	}
	if spec.User != "" {
		args = append(args, "-u", spec.User)
	}
	for _, e := range containerEnv {
		args = append(args, "-e", e)
	}

	args = append(args, spec.Image, "sh", "-c", spec.Script)
	return args
}
