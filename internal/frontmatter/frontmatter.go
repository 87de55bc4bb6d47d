// Package frontmatter splits YAML frontmatter from markdown documents and
// fingerprints their content.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter is returned when a document opens a frontmatter
// block but never closes it.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// Document is a markdown file split into its parts.
type Document struct {
	// Raw is the frontmatter block without delimiters.
	Raw            []byte
	Fields         map[string]any
	Body           []byte
	HasFrontmatter bool
}

// Split separates `---` delimited frontmatter from the body. Without an
// opening delimiter, had is false and body is the whole input.
func Split(content []byte) (fm []byte, body []byte, had bool, err error) {
	nl := newline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}
	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closing)
	if idx < 0 {
		// A closing delimiter on the final line has no trailing newline.
		tail := []byte(nl + "---")
		if bytes.HasSuffix(content, tail) {
			end := len(content) - len(tail)
			return content[start : end+len(nl)], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	end := start + idx + len(nl)
	return content[start:end], content[start+idx+len(closing):], true, nil
}

// Parse splits content and decodes its frontmatter. Values are normalized so
// they survive a JSON round trip unchanged.
func Parse(content []byte) (Document, error) {
	raw, body, had, err := Split(content)
	if err != nil {
		return Document{}, err
	}
	fields, err := ParseYAML(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{Raw: raw, Fields: fields, Body: body, HasFrontmatter: had}, nil
}

// ParseYAML decodes a raw frontmatter block into a map. An empty block yields
// an empty map.
func ParseYAML(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	for k, v := range fields {
		fields[k] = normalize(v)
	}
	return fields, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.UTC().Format(time.RFC3339)
	case int:
		return float64(t)
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case map[any]any:
		// Mappings with non-string keys (`1: good`) get string keys so the
		// fields stay JSON-encodable.
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalize(inner)
		}
		return out
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}

func newline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
