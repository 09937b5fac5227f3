package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed manifest.cue
var manifestSchema string

// ErrInvalidManifest is wrapped by every parse or schema error.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest overrides the default configuration. Every field is optional;
// unset fields leave the configuration untouched.
type Manifest struct {
	Apps            []string        `yaml:"apps,omitempty" json:"apps,omitempty"`
	Workspace       string          `yaml:"workspace,omitempty" json:"workspace,omitempty"`
	Interpreter     string          `yaml:"interpreter,omitempty" json:"interpreter,omitempty"`
	TranslatorEntry string          `yaml:"translator_entry,omitempty" json:"translator_entry,omitempty"`
	Intermediate    string          `yaml:"intermediate,omitempty" json:"intermediate,omitempty"`
	Make            string          `yaml:"make,omitempty" json:"make,omitempty"`
	Jobs            int             `yaml:"jobs,omitempty" json:"jobs,omitempty"`
	Targets         []string        `yaml:"targets,omitempty" json:"targets,omitempty"`
	Stages          *ManifestStages `yaml:"stages,omitempty" json:"stages,omitempty"`
	Cleanup         *bool           `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
}

// ManifestStages toggles pipeline stages.
type ManifestStages struct {
	Generate  *bool `yaml:"generate,omitempty" json:"generate,omitempty"`
	Translate *bool `yaml:"translate,omitempty" json:"translate,omitempty"`
	Compile   *bool `yaml:"compile,omitempty" json:"compile,omitempty"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes manifest YAML, rejecting unknown keys, and checks
// the result against the manifest schema. An empty document is a valid,
// empty manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidManifest, err)
	}

	if m.Apps != nil && len(m.Apps) == 0 {
		return nil, fmt.Errorf("%w: apps must be non-empty when set", ErrInvalidManifest)
	}
	if m.Targets != nil && len(m.Targets) == 0 {
		return nil, fmt.Errorf("%w: targets must be non-empty when set", ErrInvalidManifest)
	}
	if err := CheckAppNames(m.Apps); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return &m, nil
}

// validateManifest unifies the decoded manifest with #Manifest.
func validateManifest(m *Manifest) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(manifestSchema, cue.Filename("manifest.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile manifest schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Manifest"))
	value := ctx.Encode(m)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return errors.New(cueerrors.Details(err, nil))
	}
	return nil
}

// Apply overlays the manifest onto cfg.
func (m *Manifest) Apply(cfg *Config) {
	if m == nil {
		return
	}
	if len(m.Apps) > 0 {
		cfg.Apps = append([]string(nil), m.Apps...)
	}
	if m.Workspace != "" {
		cfg.Workspace = m.Workspace
	}
	if m.Interpreter != "" {
		cfg.Interpreter = m.Interpreter
	}
	if m.TranslatorEntry != "" {
		cfg.TranslatorEntry = m.TranslatorEntry
	}
	if m.Intermediate != "" {
		cfg.Intermediate = m.Intermediate
	}
	if m.Make != "" {
		cfg.Make = m.Make
	}
	if m.Jobs > 0 {
		cfg.Jobs = m.Jobs
	}
	if len(m.Targets) > 0 {
		cfg.Targets = append([]string(nil), m.Targets...)
	}
	if m.Cleanup != nil {
		cfg.Cleanup = *m.Cleanup
	}
	if s := m.Stages; s != nil {
		if s.Generate != nil {
			cfg.Stages.Generate = *s.Generate
		}
		if s.Translate != nil {
			cfg.Stages.Translate = *s.Translate
		}
		if s.Compile != nil {
			cfg.Stages.Compile = *s.Compile
		}
	}
}
