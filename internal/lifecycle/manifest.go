package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FunctionSpec describes one callable entry point a plugin exposes, with
// its input/output contracts as JSON Schema documents (spec.md §3
// "functions : map<name, {description, input_schema, output_schema}>").
type FunctionSpec struct {
	Description  string         `yaml:"description"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`

	compiledInput  *jsonschema.Schema
	compiledOutput *jsonschema.Schema
}

// LanguageCapabilities describes a plugin's participation in language
// processing pipelines, carried through unchanged from the manifest.
type LanguageCapabilities struct {
	LanguageProcessor bool     `yaml:"language_processor"`
	SupportedModels   []string `yaml:"supported_models"`
	CanGenerate       bool     `yaml:"can_generate"`
	CanModify         bool     `yaml:"can_modify"`
}

// Security holds the sandbox resource limits a manifest declares
// (spec.md §3 "security : {sandboxed, memory_limit_mb, time_limit_secs}").
type Security struct {
	Sandboxed     bool   `yaml:"sandboxed"`
	MemoryLimitMB uint64 `yaml:"memory_limit_mb"`
	TimeLimitSecs uint64 `yaml:"time_limit_secs"`
}

// Manifest is the declarative description of a loadable plugin (spec.md
// §3 "Manifest format"). On-disk parsing (TOML, YAML, or otherwise) is
// explicitly out of scope per spec.md §1; DecodeYAML below only decodes
// bytes already read by the caller.
type Manifest struct {
	Name                 string                  `yaml:"name"`
	Version              string                  `yaml:"version"`
	Description          string                  `yaml:"description"`
	EntryPoint           string                  `yaml:"entry_point"`
	Driver               string                  `yaml:"driver"`
	Permissions          []string                `yaml:"permissions"`
	LanguageCapabilities LanguageCapabilities     `yaml:"language_capabilities"`
	Security             Security                `yaml:"security"`
	Functions            map[string]*FunctionSpec `yaml:"functions"`

	parsedVersion *semver.Version
}

// DecodeYAML decodes a manifest from its YAML representation. Plugin
// manifests in this pack are "typical in TOML" per spec.md but YAML is
// the format the wider example pack (teacher's config layer) decodes
// with goccy/go-yaml, so that is the concrete wire format implemented
// here; callers needing TOML can adapt this decode step without touching
// Manifest's shape.
func DecodeYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("lifecycle: decode manifest: %w", err)
	}
	return &m, nil
}

// Validate implements spec.md §4.F load() step 1: non-empty name,
// parseable version, valid entry point, and (when a policyCheck is
// supplied) declared capabilities within policy. A nil policyCheck skips
// that last check, e.g. for tests that only exercise manifest shape.
func (m *Manifest) Validate(policyCheck func(permission string) error) error {
	if m.Name == "" {
		return fmt.Errorf("lifecycle: manifest name must not be empty")
	}
	if m.EntryPoint == "" {
		return fmt.Errorf("lifecycle: manifest entry_point must not be empty")
	}

	version, err := semver.NewVersion(m.Version)
	if err != nil {
		return fmt.Errorf("lifecycle: manifest version %q is not valid semver: %w", m.Version, err)
	}
	m.parsedVersion = version

	if policyCheck != nil {
		for _, perm := range m.Permissions {
			if err := policyCheck(perm); err != nil {
				return fmt.Errorf("lifecycle: permission %q is not allowed by policy: %w", perm, err)
			}
		}
	}

	for name, fn := range m.Functions {
		if err := fn.compile(); err != nil {
			return fmt.Errorf("lifecycle: function %q: %w", name, err)
		}
	}

	return nil
}

// ParsedVersion returns the manifest's parsed semantic version. Validate
// must have succeeded first.
func (m *Manifest) ParsedVersion() *semver.Version {
	return m.parsedVersion
}

func (f *FunctionSpec) compile() error {
	if f.InputSchema != nil {
		schema, err := compileSchema(f.InputSchema)
		if err != nil {
			return fmt.Errorf("input_schema: %w", err)
		}
		f.compiledInput = schema
	}
	if f.OutputSchema != nil {
		schema, err := compileSchema(f.OutputSchema)
		if err != nil {
			return fmt.Errorf("output_schema: %w", err)
		}
		f.compiledOutput = schema
	}
	return nil
}

func compileSchema(doc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile("schema.json")
}

// ValidateInput checks input against the function's declared input
// schema, if one was supplied. A function with no input_schema accepts
// any input.
func (f *FunctionSpec) ValidateInput(input any) error {
	if f.compiledInput == nil {
		return nil
	}
	return f.compiledInput.Validate(input)
}

// ValidateOutput checks output against the function's declared output
// schema, if one was supplied.
func (f *FunctionSpec) ValidateOutput(output any) error {
	if f.compiledOutput == nil {
		return nil
	}
	return f.compiledOutput.Validate(output)
}
