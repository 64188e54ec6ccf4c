// Package schema describes how a wizard partitions its entity across steps.
// A Form is loaded from YAML (or JSON) and lists, per step, the fields the step
// owns together with their validation rules, plus the derived-field rules that
// turn form-only fields into backend payload fields.
package schema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field types understood by the validators and drivers.
const (
	TypeString   = "string"
	TypeText     = "text"
	TypeRichText = "richtext"
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeDateTime = "datetime"
	TypeEnum     = "enum"
	TypeObject   = "object"
	TypeArray    = "array"
)

// Formats checked on string values.
const (
	FormatEmail    = "email"
	FormatURL      = "url"
	FormatDateTime = "date-time"
)

// Form is the static partition of one wizard.
type Form struct {
	Name      string        `json:"name" yaml:"name"`
	Title     string        `json:"title" yaml:"title"`
	Operation string        `json:"operation" yaml:"operation"`
	Steps     []Step        `json:"steps" yaml:"steps"`
	Derived   []DerivedRule `json:"derived" yaml:"derived"`
	Payload   []string      `json:"payload" yaml:"payload"`
	Source    string        `json:"-" yaml:"-"`
}

// Step is one wizard page and the fields it owns.
type Step struct {
	Name    string  `json:"name" yaml:"name"`
	Label   string  `json:"label" yaml:"label"`
	Visible string  `json:"visible,omitempty" yaml:"visible,omitempty"`
	Fields  []Field `json:"fields" yaml:"fields"`
}

// Field declares one owned path and its rules.
type Field struct {
	Path           string            `json:"path" yaml:"path"`
	Label          string            `json:"label,omitempty" yaml:"label,omitempty"`
	Type           string            `json:"type,omitempty" yaml:"type,omitempty"`
	Required       bool              `json:"required,omitempty" yaml:"required,omitempty"`
	RequiredIf     string            `json:"required_if,omitempty" yaml:"required_if,omitempty"`
	RequiredUnless string            `json:"required_unless,omitempty" yaml:"required_unless,omitempty"`
	Format         string            `json:"format,omitempty" yaml:"format,omitempty"`
	Pattern        string            `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Enum           []string          `json:"enum,omitempty" yaml:"enum,omitempty"`
	Min            *float64          `json:"min,omitempty" yaml:"min,omitempty"`
	Max            *float64          `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength      *int              `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength      *int              `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Checks         []Check           `json:"checks,omitempty" yaml:"checks,omitempty"`
	Async          string            `json:"async,omitempty" yaml:"async,omitempty"`
	Derived        bool              `json:"derived,omitempty" yaml:"derived,omitempty"`
	Messages       map[string]string `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// Check is a cross-field assertion evaluated when the field holds a value.
// Rule uses the expression language of the visibility/expr package.
type Check struct {
	Rule    string `json:"rule" yaml:"rule"`
	Message string `json:"message" yaml:"message"`
}

// DerivedRule declares a merge-time rule: the form fields it reads and the
// payload fields it writes. Implementations are registered by name.
type DerivedRule struct {
	Name     string   `json:"name" yaml:"name"`
	Consumes []string `json:"consumes,omitempty" yaml:"consumes,omitempty"`
	Produces []string `json:"produces,omitempty" yaml:"produces,omitempty"`
}

// Load parses a form document. JSON is tried first, then YAML.
func Load(data []byte, source string) (*Form, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("schema: file %s is empty", source)
	}

	var form Form
	if err := json.Unmarshal(data, &form); err != nil {
		form = Form{}
		if yamlErr := yaml.Unmarshal(data, &form); yamlErr != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", source, yamlErr)
		}
	}
	form.Source = source
	form.normalise()

	if err := form.Validate(); err != nil {
		return nil, err
	}
	return &form, nil
}

// LoadFS reads and parses path from fsys.
func LoadFS(fsys fs.FS, path string) (*Form, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Load(data, path)
}

// MustLoadFS is LoadFS for embedded, known-good documents.
func MustLoadFS(fsys fs.FS, path string) *Form {
	form, err := LoadFS(fsys, path)
	if err != nil {
		panic(err)
	}
	return form
}

func (f *Form) normalise() {
	f.Name = strings.TrimSpace(f.Name)
	for i := range f.Steps {
		step := &f.Steps[i]
		step.Name = strings.TrimSpace(step.Name)
		if step.Label == "" {
			step.Label = humanize(step.Name)
		}
		for j := range step.Fields {
			field := &step.Fields[j]
			field.Path = strings.Trim(strings.TrimSpace(field.Path), ".")
			field.Type = strings.ToLower(strings.TrimSpace(field.Type))
			if field.Type == "" {
				field.Type = TypeString
			}
			if field.Label == "" {
				field.Label = humanize(lastSegment(field.Path))
			}
		}
	}
	for i := range f.Payload {
		f.Payload[i] = strings.Trim(strings.TrimSpace(f.Payload[i]), ".")
	}
}

// Step returns the named step.
func (f *Form) Step(name string) (Step, bool) {
	for _, step := range f.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return Step{}, false
}

// StepNames returns step names in declaration order.
func (f *Form) StepNames() []string {
	out := make([]string, 0, len(f.Steps))
	for _, step := range f.Steps {
		out = append(out, step.Name)
	}
	return out
}

// Field looks a field up by exact path across all steps.
func (f *Form) Field(path string) (Field, string, bool) {
	for _, step := range f.Steps {
		for _, field := range step.Fields {
			if field.Path == path {
				return field, step.Name, true
			}
		}
	}
	return Field{}, "", false
}

// Owner returns the step owning path: the step declaring path itself or its
// closest declared ancestor.
func (f *Form) Owner(path string) (string, bool) {
	best, bestLen := "", -1
	for _, step := range f.Steps {
		for _, field := range step.Fields {
			if (field.Path == path || strings.HasPrefix(path, field.Path+".")) && len(field.Path) > bestLen {
				best, bestLen = step.Name, len(field.Path)
			}
		}
	}
	return best, bestLen >= 0
}

// DerivedPaths lists form-only fields in declaration order.
func (f *Form) DerivedPaths() []string {
	var out []string
	for _, step := range f.Steps {
		for _, field := range step.Fields {
			if field.Derived {
				out = append(out, field.Path)
			}
		}
	}
	return out
}

// PersistedPaths lists fields that reach the payload unchanged.
func (f *Form) PersistedPaths() []string {
	var out []string
	for _, step := range f.Steps {
		for _, field := range step.Fields {
			if !field.Derived {
				out = append(out, field.Path)
			}
		}
	}
	return out
}

// Paths returns the top-level field paths a step owns, skipping paths nested
// under another owned path of the same step.
func (s Step) Paths() []string {
	out := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		nested := false
		for _, other := range s.Fields {
			if other.Path != field.Path && strings.HasPrefix(field.Path, other.Path+".") {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, field.Path)
		}
	}
	return out
}

// Message returns the custom message for kind, or fallback.
func (f Field) Message(kind, fallback string) string {
	if msg := strings.TrimSpace(f.Messages[kind]); msg != "" {
		return msg
	}
	return fallback
}

func lastSegment(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func humanize(name string) string {
	name = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
