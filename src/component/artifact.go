package component

// ArtifactType selects how build output is narrowed down to one deployable
// file or directory.
type ArtifactType string

const (
	ArtifactRaw  ArtifactType = "raw"
	ArtifactDir  ArtifactType = "dir"
	ArtifactFile ArtifactType = "file"
	ArtifactJar  ArtifactType = "jar"
	ArtifactZip  ArtifactType = "zip"
)

// Valid reports whether t is a known artifact type. Empty is valid and means
// "use the kind default".
func (t ArtifactType) Valid() bool {
	switch t {
	case "", ArtifactRaw, ArtifactDir, ArtifactFile, ArtifactJar, ArtifactZip:
		return true
	}
	return false
}

// Extensions returns the file extensions a candidate must carry, or nil for
// no extension filter.
func (t ArtifactType) Extensions() []string {
	switch t {
	case ArtifactJar:
		return []string{".jar"}
	case ArtifactZip:
		return []string{".zip"}
	}
	return nil
}

// Artifact selects the deployable from build output.
type Artifact struct {
	Type    ArtifactType
	Path    string // sub-path under the build output
	Pattern string // regular expression matched against candidate file names
	Unzip   bool   // extract the selected archive and deploy the directory
}
