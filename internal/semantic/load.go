package semantic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ai4data/dazense/internal/errs"
)

// DefaultSchema is assumed when a model does not name one.
const DefaultSchema = "main"

// DocumentPath is the project-relative location of the model document.
const DocumentPath = "semantics/semantic_model.yml"

// ErrNotConfigured is returned by Load when the project has no semantic
// model document at all. It is a distinct, non-fatal condition: the
// exposing layer reports it as a client error, not a server fault.
var ErrNotConfigured = errors.New("no semantic model configured")

// document is the on-disk shape of the model document.
type document struct {
	Models map[string]*Model `yaml:"models"`
}

// Load reads and parses the semantic model document of a project
// directory. A missing document yields ErrNotConfigured.
func Load(projectDir string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, filepath.FromSlash(DocumentPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotConfigured
		}
		return nil, errs.Wrap(errs.KindModelDocument, "failed to read semantic model document", err)
	}
	return Parse(data)
}

// Parse builds a validated Catalog from document bytes. Validation is
// eager and exhaustive: every violation in the document is collected and
// reported together, so one bad measure does not mask the rest.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.KindModelDocument, "semantic model document is not valid YAML", err)
	}
	if len(doc.Models) == 0 {
		return nil, errs.New(errs.KindModelDocument, "semantic model document defines no models")
	}

	for _, m := range doc.Models {
		applyDefaults(m)
	}

	if violations := validate(doc.Models); len(violations) > 0 {
		return nil, errs.Wrap(errs.KindMeasureValidation,
			fmt.Sprintf("semantic model document has %d violation(s)", len(violations)),
			&ValidationError{Violations: violations})
	}

	return &Catalog{models: doc.Models}, nil
}

func applyDefaults(m *Model) {
	if m == nil {
		return
	}
	if m.SchemaName == "" {
		m.SchemaName = DefaultSchema
	}
	for alias, j := range m.Joins {
		if j.Cardinality == "" {
			j.Cardinality = ManyToOne
			m.Joins[alias] = j
		}
	}
}

// Violation is one structural problem found at load time.
type Violation struct {
	Model  string // model name
	Item   string // offending dimension/measure/join name, empty for the model itself
	Detail string
}

func (v Violation) String() string {
	if v.Item == "" {
		return fmt.Sprintf("model %q: %s", v.Model, v.Detail)
	}
	return fmt.Sprintf("model %q, %s: %s", v.Model, v.Item, v.Detail)
}

// ValidationError carries every violation found in one document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return strings.Join(msgs, "; ")
}

// validate walks all models in name order and collects violations.
func validate(models map[string]*Model) []Violation {
	var out []Violation

	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := models[name]
		if m == nil {
			out = append(out, Violation{Model: name, Detail: "model definition is empty"})
			continue
		}
		if m.Table == "" {
			out = append(out, Violation{Model: name, Detail: "missing 'table'"})
		}

		for _, dimName := range sortedKeys(m.Dimensions) {
			if m.Dimensions[dimName].Column == "" {
				out = append(out, Violation{Model: name, Item: "dimension " + dimName,
					Detail: "missing 'column'"})
			}
		}

		for _, measureName := range sortedKeys(m.Measures) {
			measure := m.Measures[measureName]
			if !measure.Type.Valid() {
				out = append(out, Violation{Model: name, Item: "measure " + measureName,
					Detail: fmt.Sprintf("unknown aggregation type %q", measure.Type)})
				continue
			}
			if measure.Type.RequiresColumn() && measure.Column == "" {
				out = append(out, Violation{Model: name, Item: "measure " + measureName,
					Detail: fmt.Sprintf("type %q requires a 'column' field", measure.Type)})
			}
		}

		for _, alias := range sortedKeys(m.Joins) {
			j := m.Joins[alias]
			item := "join " + alias
			if j.ToModel == "" {
				out = append(out, Violation{Model: name, Item: item, Detail: "missing 'to_model'"})
			} else if _, ok := models[j.ToModel]; !ok {
				out = append(out, Violation{Model: name, Item: item,
					Detail: fmt.Sprintf("target model %q is not defined", j.ToModel)})
			}
			if j.ForeignKey == "" {
				out = append(out, Violation{Model: name, Item: item, Detail: "missing 'foreign_key'"})
			}
			if j.RelatedKey == "" {
				out = append(out, Violation{Model: name, Item: item, Detail: "missing 'related_key'"})
			}
			if !j.Cardinality.Valid() {
				out = append(out, Violation{Model: name, Item: item,
					Detail: fmt.Sprintf("unknown join type %q", j.Cardinality)})
			}
		}
	}

	return out
}
