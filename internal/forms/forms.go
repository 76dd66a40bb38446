// Package forms implements metadata-driven input schemas for workflow steps.
//
// A Schema is resolved by name at request time, so validation rules live in
// data rather than in struct tags bound to compile-time types.
package forms

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// FieldKind enumerates the supported input field types.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
	KindChoice FieldKind = "choice"
	KindBool   FieldKind = "bool"
)

const dateLayout = "2006-01-02"

// FieldSpec describes one input field of a step form.
type FieldSpec struct {
	Name      string    `mapstructure:"name" json:"name"`
	Label     string    `mapstructure:"label" json:"label"`
	Kind      FieldKind `mapstructure:"kind" json:"kind"`
	Required  bool      `mapstructure:"required" json:"required"`
	MaxLength int       `mapstructure:"max_length" json:"max_length,omitempty"`
	Choices   []string  `mapstructure:"choices" json:"choices,omitempty"`
}

// Schema is the validation schema for one step entity type.
type Schema struct {
	Model  string
	Fields []FieldSpec
}

// Errors maps field names to their validation messages.
type Errors map[string][]string

// Join flattens field errors into one display message, mirroring how the
// portal surfaces them above the re-rendered form.
func (e Errors) Join() string {
	var parts []string
	for field, msgs := range e {
		for _, m := range msgs {
			parts = append(parts, fmt.Sprintf("%s: %s", field, m))
		}
	}
	return strings.Join(parts, "; ")
}

func (e Errors) add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Bound is the outcome of binding submitted values against a Schema.
type Bound struct {
	Schema *Schema
	Values map[string]any
	Raw    url.Values
	Errors Errors
}

// Valid reports whether the submission passed validation.
func (b *Bound) Valid() bool {
	return len(b.Errors) == 0
}

// Bind validates submitted form values against the schema and converts them
// to typed field values. It never mutates the schema.
func (s *Schema) Bind(values url.Values) *Bound {
	b := &Bound{
		Schema: s,
		Values: make(map[string]any, len(s.Fields)),
		Raw:    values,
		Errors: make(Errors),
	}

	for _, f := range s.Fields {
		raw := strings.TrimSpace(values.Get(f.Name))
		if raw == "" {
			if f.Required {
				b.Errors.add(f.Name, "this field is required")
			}
			continue
		}

		switch f.Kind {
		case KindText:
			if f.MaxLength > 0 && len(raw) > f.MaxLength {
				b.Errors.add(f.Name, fmt.Sprintf("must be at most %d characters", f.MaxLength))
				continue
			}
			b.Values[f.Name] = raw
		case KindNumber:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				b.Errors.add(f.Name, "must be a number")
				continue
			}
			b.Values[f.Name] = n
		case KindDate:
			t, err := time.Parse(dateLayout, raw)
			if err != nil {
				b.Errors.add(f.Name, "must be a date in YYYY-MM-DD form")
				continue
			}
			b.Values[f.Name] = t.Format(dateLayout)
		case KindChoice:
			if !contains(f.Choices, raw) {
				b.Errors.add(f.Name, fmt.Sprintf("must be one of: %s", strings.Join(f.Choices, ", ")))
				continue
			}
			b.Values[f.Name] = raw
		case KindBool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				b.Errors.add(f.Name, "must be true or false")
				continue
			}
			b.Values[f.Name] = v
		default:
			b.Errors.add(f.Name, fmt.Sprintf("unknown field kind %q", f.Kind))
		}
	}

	return b
}

// Prefill returns a Bound carrying existing instance values for rendering an
// edit form. No validation is performed.
func (s *Schema) Prefill(fields map[string]any) *Bound {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return &Bound{Schema: s, Values: values, Errors: make(Errors)}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
