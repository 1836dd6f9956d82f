// Package prompt turns templates and placeholder values into a conversation.
package prompt

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/template"
)

// ListSeparator joins sequence values. Generated text is sensitive to it, so
// changing it changes model output.
const ListSeparator = ", "

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// MissingPlaceholderError names the first placeholder with no supplied value.
type MissingPlaceholderError struct {
	Name          string
	TemplateIndex int
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("template %d: missing value for placeholder {%s}", e.TemplateIndex, e.Name)
}

// Compose fills every template in order and returns one message per template.
// Unused values are ignored. Substituted text is never scanned again.
func Compose(templates []template.Template, values map[string]any) (llm.Conversation, error) {
	conv := make(llm.Conversation, len(templates))
	for i, t := range templates {
		content, err := fill(t.Content, values, i)
		if err != nil {
			return nil, err
		}
		conv[i] = llm.Message{Role: t.Role, Content: content}
	}
	return conv, nil
}

func fill(content string, values map[string]any, index int) (string, error) {
	var (
		b    strings.Builder
		last int
	)
	for _, m := range placeholderRE.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		v, ok := values[name]
		if !ok {
			return "", &MissingPlaceholderError{Name: name, TemplateIndex: index}
		}
		rendered, err := Render(v)
		if err != nil {
			return "", fmt.Errorf("placeholder {%s}: %w", name, err)
		}
		b.WriteString(content[last:m[0]])
		b.WriteString(rendered)
		last = m[1]
	}
	b.WriteString(content[last:])
	return b.String(), nil
}

// Render returns the string form of a placeholder value. Slices and arrays
// are rendered element by element and joined with ListSeparator.
func Render(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []string:
		return strings.Join(x, ListSeparator), nil
	case fmt.Stringer:
		return x.String(), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), nil
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			s, err := Render(rv.Index(i).Interface())
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}
			parts[i] = s
		}
		return strings.Join(parts, ListSeparator), nil
	}

	return cast.ToStringE(v)
}

// Placeholders lists the placeholder names in content, in order of first
// appearance.
func Placeholders(content string) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, m := range placeholderRE.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Required lists the placeholders needed by all templates, deduplicated.
func Required(templates []template.Template) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, t := range templates {
		for _, name := range Placeholders(t.Content) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// WithRequest returns conv plus one trailing user message holding content
// verbatim. conv itself is not modified.
func WithRequest(conv llm.Conversation, content string) llm.Conversation {
	return conv.Append(llm.Message{Role: llm.RoleUser, Content: content})
}

// ContentsByRole returns the content of every message with the given role.
func ContentsByRole(conv llm.Conversation, role llm.Role) []string {
	var out []string
	for _, m := range conv {
		if m.Role == role {
			out = append(out, m.Content)
		}
	}
	return out
}

// Custom builds the two-message conversation used when a caller replaces
// the stored templates with its own instructions.
func Custom(system, user string) llm.Conversation {
	var conv llm.Conversation
	if system != "" {
		conv = append(conv, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	if user != "" {
		conv = append(conv, llm.Message{Role: llm.RoleUser, Content: user})
	}
	return conv
}
