// Package template loads role-tagged prompt fragments from stored records.
//
// A record is either a single {role, content} object, an ordered array of
// them, or an object with an optional name and a messages array. Records are
// read as JSON or YAML depending on the file extension.
package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nestauk/discovery-genai/internal/llm"
)

// Template is one prompt fragment. Content may contain {name} placeholders.
type Template struct {
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Role    llm.Role `json:"role" yaml:"role"`
	Content string   `json:"content" yaml:"content"`
}

// Store resolves template references.
type Store interface {
	// Load returns the single fragment stored under ref.
	Load(ref string) (Template, error)
	// LoadAll returns every fragment stored under ref, in stored order.
	LoadAll(ref string) ([]Template, error)
}

// NotFoundError means ref does not resolve to stored data.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.Ref)
}

// MalformedTemplateError means the stored data could not be read as
// {role, content} fragments.
type MalformedTemplateError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *MalformedTemplateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template %q malformed: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("template %q malformed: %s", e.Ref, e.Reason)
}

func (e *MalformedTemplateError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Format selects the record decoder.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

type rawFragment struct {
	Name    string  `json:"name" yaml:"name"`
	Role    *string `json:"role" yaml:"role"`
	Content *string `json:"content" yaml:"content"`
}

type rawRecord struct {
	rawFragment `yaml:",inline"`
	Messages    []rawFragment `json:"messages" yaml:"messages"`
}

// Decode parses one stored record into its fragments.
func Decode(ref string, data []byte, format Format) ([]Template, error) {
	var (
		name  string
		frags []rawFragment
	)

	switch format {
	case FormatJSON:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &frags); err != nil {
				return nil, &MalformedTemplateError{Ref: ref, Reason: "invalid json", Err: err}
			}
			break
		}
		var rec rawRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, &MalformedTemplateError{Ref: ref, Reason: "invalid json", Err: err}
		}
		name, frags = flatten(rec)
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, &MalformedTemplateError{Ref: ref, Reason: "invalid yaml", Err: err}
		}
		if len(node.Content) == 0 {
			return nil, &MalformedTemplateError{Ref: ref, Reason: "empty record"}
		}
		root := node.Content[0]
		switch root.Kind {
		case yaml.SequenceNode:
			if err := root.Decode(&frags); err != nil {
				return nil, &MalformedTemplateError{Ref: ref, Reason: "invalid yaml", Err: err}
			}
		case yaml.MappingNode:
			var rec rawRecord
			if err := root.Decode(&rec); err != nil {
				return nil, &MalformedTemplateError{Ref: ref, Reason: "invalid yaml", Err: err}
			}
			name, frags = flatten(rec)
		default:
			return nil, &MalformedTemplateError{Ref: ref, Reason: "record must be a mapping or a sequence"}
		}
	default:
		return nil, &MalformedTemplateError{Ref: ref, Reason: fmt.Sprintf("unknown format %d", format)}
	}

	if len(frags) == 0 {
		return nil, &MalformedTemplateError{Ref: ref, Reason: "record holds no fragments"}
	}
	if name == "" {
		name = ref
	}

	out := make([]Template, len(frags))
	for i, f := range frags {
		t, err := f.template(ref, i)
		if err != nil {
			return nil, err
		}
		if t.Name == "" {
			t.Name = name
		}
		out[i] = t
	}
	return out, nil
}

func flatten(rec rawRecord) (string, []rawFragment) {
	if len(rec.Messages) > 0 {
		return rec.Name, rec.Messages
	}
	if rec.Role == nil && rec.Content == nil {
		return rec.Name, nil
	}
	// a single top-level fragment carries its own name
	return "", []rawFragment{rec.rawFragment}
}

func (f rawFragment) template(ref string, i int) (Template, error) {
	if f.Role == nil {
		return Template{}, &MalformedTemplateError{Ref: ref, Reason: fmt.Sprintf("fragment %d: missing role", i)}
	}
	if f.Content == nil {
		return Template{}, &MalformedTemplateError{Ref: ref, Reason: fmt.Sprintf("fragment %d: missing content", i)}
	}
	role, err := llm.ParseRole(*f.Role)
	if err != nil {
		return Template{}, &MalformedTemplateError{Ref: ref, Reason: fmt.Sprintf("fragment %d", i), Err: err}
	}
	return Template{Name: f.Name, Role: role, Content: *f.Content}, nil
}

// single narrows a fragment list to the one Load is allowed to return.
func single(ref string, ts []Template) (Template, error) {
	if len(ts) != 1 {
		return Template{}, &MalformedTemplateError{
			Ref:    ref,
			Reason: fmt.Sprintf("expected a single fragment, record holds %d", len(ts)),
		}
	}
	return ts[0], nil
}
