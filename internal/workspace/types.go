// Package workspace defines the data shapes the kernel reads from disk and
// from the openspec CLI, and the pure transformation/validation logic
// (schema YAML normalization, task-checkbox toggling, glob detection) that
// does not itself need to be reactive.
package workspace

// SchemaInfo is one entry of `openspec schemas` (JSON).
type SchemaInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// SchemaSource names where a schema resolution came from.
type SchemaSource string

const (
	SourceProject SchemaSource = "project"
	SourceUser    SchemaSource = "user"
	SourcePackage SchemaSource = "package"
)

// SchemaResolution is the result of `openspec schema which <name>`.
type SchemaResolution struct {
	Path   string       `json:"path"`
	Source SchemaSource `json:"source"`
}

// SchemaArtifact is one entry of a schema's artifacts[] list, after
// normalization (generates -> OutputPath, requires defaulted to []).
type SchemaArtifact struct {
	ID          string   `json:"id"`
	OutputPath  string   `json:"outputPath"`
	Description string   `json:"description,omitempty"`
	Template    string   `json:"template,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
	Requires    []string `json:"requires"`
}

// SchemaDetail is the normalized schema.yaml shape.
type SchemaDetail struct {
	Name             string           `json:"name"`
	Version          string           `json:"version,omitempty"`
	Description      string           `json:"description,omitempty"`
	Artifacts        []SchemaArtifact `json:"artifacts"`
	ApplyRequires    []string         `json:"applyRequires,omitempty"`
	ApplyTracks      string           `json:"applyTracks,omitempty"`
	ApplyInstruction string           `json:"applyInstruction,omitempty"`
}

// ChangeFile is one entry of a schema's recursive file tree (schema:files).
type ChangeFile struct {
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
}

// TemplateEntry is one value of a TemplatesMap.
type TemplateEntry struct {
	Path   string       `json:"path"`
	Source SchemaSource `json:"source"`
}

// TemplatesMap is the output of `openspec templates [--schema name]`:
// artifactID -> {path, source}.
type TemplatesMap map[string]TemplateEntry

// TemplateContent is one value of the templateContents NamedState.
type TemplateContent struct {
	Content string       `json:"content"`
	Path    string       `json:"path"`
	Source  SchemaSource `json:"source"`
}

// TemplateContentsMap is artifactID -> {content, path, source}.
type TemplateContentsMap map[string]TemplateContent

// ArtifactStatus is one artifact's status within a ChangeStatus.
type ArtifactStatus string

const (
	ArtifactDone    ArtifactStatus = "done"
	ArtifactReady   ArtifactStatus = "ready"
	ArtifactBlocked ArtifactStatus = "blocked"
)

// Artifact is one artifact entry returned by `openspec status`, with
// RelativePath appended by the kernel.
type Artifact struct {
	ID           string         `json:"id"`
	OutputPath   string         `json:"outputPath"`
	Status       ArtifactStatus `json:"status"`
	MissingDeps  []string       `json:"missingDeps,omitempty"`
	RelativePath string         `json:"relativePath"`
}

// ChangeStatus is the JSON shape of `openspec status --json --change <id>`.
type ChangeStatus struct {
	ChangeID   string     `json:"changeId"`
	ChangeName string     `json:"changeName"`
	Schema     string     `json:"schema,omitempty"`
	Artifacts  []Artifact `json:"artifacts"`
}

// ArtifactInstructions is the JSON shape of
// `openspec instructions <artifact> --json --change <id>`.
type ArtifactInstructions struct {
	ArtifactID  string `json:"artifactId"`
	Instruction string `json:"instruction"`
}

// ApplyInstructions is the JSON shape of
// `openspec instructions apply --json --change <id>`.
type ApplyInstructions struct {
	Requires    []string `json:"requires"`
	Tracks      string   `json:"tracks"`
	Instruction string   `json:"instruction"`
}

// GlobFile is one matched file for globArtifactFiles.
type GlobFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}
