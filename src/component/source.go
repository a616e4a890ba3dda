package component

// Source describes where a component's raw content lives. Exactly one of
// LocalSource, HTTPSource or GitSource.
type Source interface {
	sourceType() string
}

// LocalSource copies content from a directory on this machine.
type LocalSource struct {
	Path string
}

// HTTPSource downloads a single file (often an archive or a jar).
type HTTPSource struct {
	URL string
}

// GitSource checks out a repository. Commit pins an exact revision; without
// it the branch (or the remote default branch) is tracked.
type GitSource struct {
	URL    string
	Branch string
	Commit string
}

func (LocalSource) sourceType() string { return "local" }
func (HTTPSource) sourceType() string  { return "http" }
func (GitSource) sourceType() string   { return "git" }

// SourceType returns "local", "http", "git", or "" for a nil source.
func SourceType(s Source) string {
	if s == nil {
		return ""
	}
	return s.sourceType()
}
