package workspace

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawSchema mirrors the on-disk schema.yaml shape before normalization
// (generates -> outputPath, requires/apply flattening).
type rawSchema struct {
	Name        string `yaml:"name"`
	Version     any    `yaml:"version"`
	Description string `yaml:"description"`
	Artifacts   []struct {
		ID          string   `yaml:"id"`
		Generates   string   `yaml:"generates"`
		Description string   `yaml:"description"`
		Template    string   `yaml:"template"`
		Instruction string   `yaml:"instruction"`
		Requires    []string `yaml:"requires"`
	} `yaml:"artifacts"`
	Apply *struct {
		Requires    []string `yaml:"requires"`
		Tracks      string   `yaml:"tracks"`
		Instruction string   `yaml:"instruction"`
	} `yaml:"apply"`
}

// SchemaValidationError reports a schema.yaml that parses as YAML but
// violates the required shape.
type SchemaValidationError struct {
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", e.Reason)
}

// ParseSchemaDetail parses and normalizes a schema.yaml document's content
// into a SchemaDetail. The document's own `name` field is taken as the
// schema name; it is not compared against the schema's directory name.
func ParseSchemaDetail(content string) (SchemaDetail, error) {
	var raw rawSchema
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return SchemaDetail{}, fmt.Errorf("schema.yaml is not valid YAML: %w", err)
	}

	if raw.Name == "" {
		return SchemaDetail{}, &SchemaValidationError{Reason: "missing required field \"name\""}
	}
	if len(raw.Artifacts) == 0 {
		return SchemaDetail{}, &SchemaValidationError{Reason: "artifacts must contain at least one entry"}
	}

	detail := SchemaDetail{
		Name:        raw.Name,
		Description: raw.Description,
	}
	if raw.Version != nil {
		detail.Version = fmt.Sprintf("%v", raw.Version)
	}

	seen := make(map[string]bool)
	for i, a := range raw.Artifacts {
		if a.ID == "" {
			return SchemaDetail{}, &SchemaValidationError{Reason: fmt.Sprintf("artifacts[%d] missing required field \"id\"", i)}
		}
		if a.Generates == "" {
			return SchemaDetail{}, &SchemaValidationError{Reason: fmt.Sprintf("artifacts[%d] (%s) missing required field \"generates\"", i, a.ID)}
		}
		if seen[a.ID] {
			return SchemaDetail{}, &SchemaValidationError{Reason: fmt.Sprintf("duplicate artifact id %q", a.ID)}
		}
		seen[a.ID] = true

		requires := a.Requires
		if requires == nil {
			requires = []string{}
		}
		detail.Artifacts = append(detail.Artifacts, SchemaArtifact{
			ID:          a.ID,
			OutputPath:  a.Generates,
			Description: a.Description,
			Template:    a.Template,
			Instruction: a.Instruction,
			Requires:    requires,
		})
	}

	// Every `requires` entry must name a real artifact id.
	for _, a := range detail.Artifacts {
		for _, dep := range a.Requires {
			if !seen[dep] {
				return SchemaDetail{}, &SchemaValidationError{Reason: fmt.Sprintf("artifact %q requires unknown artifact %q", a.ID, dep)}
			}
		}
	}

	if raw.Apply != nil {
		detail.ApplyRequires = raw.Apply.Requires
		if detail.ApplyRequires == nil {
			detail.ApplyRequires = []string{}
		}
		detail.ApplyTracks = raw.Apply.Tracks
		detail.ApplyInstruction = raw.Apply.Instruction
		for _, dep := range detail.ApplyRequires {
			if !seen[dep] {
				return SchemaDetail{}, &SchemaValidationError{Reason: fmt.Sprintf("apply.requires names unknown artifact %q", dep)}
			}
		}
	}

	return detail, nil
}
