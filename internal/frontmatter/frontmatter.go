// Package frontmatter encodes and decodes the front matter of generated Hugo
// content files. Two encodings are supported: a bare JSON object at the top of
// the file, and YAML between `---` delimiters.
package frontmatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/open-filament/catalogbuilder/internal/foundation/normalization"
)

// Format selects the front matter encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var formatNormalizer = normalization.NewNormalizer("front matter format", map[string]Format{
	"json": FormatJSON,
	"yaml": FormatYAML,
	"yml":  FormatYAML,
}, FormatJSON)

// ParseFormat maps a configured name onto a Format. Empty selects JSON.
func ParseFormat(raw string) (Format, error) {
	return formatNormalizer.NormalizeWithError(raw)
}

// Style captures newline shape for YAML rewriting.
type Style struct {
	Newline            string
	HasTrailingNewline bool
}

// ErrMissingClosingDelimiter indicates the document started with a YAML
// front matter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// Split separates YAML front matter (`---` delimited) from the body.
// If the document does not start with a delimiter, had is false and body is
// the full input.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, style Style, err error) {
	style = detectStyle(content)

	nl := style.Newline
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, style, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, style, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		return nil, nil, false, style, ErrMissingClosingDelimiter
	}
	return content[start : start+idx+len(nl)], content[start+idx+len(closeSeq):], true, style, nil
}

// Join reassembles a YAML-fronted document. If had is false, body is returned.
func Join(frontmatter []byte, body []byte, had bool, style Style) []byte {
	if !had {
		return body
	}
	nl := style.Newline
	if nl == "" {
		nl = "\n"
	}
	delim := []byte("---" + nl)

	out := make([]byte, 0, 2*len(delim)+len(frontmatter)+len(body))
	out = append(out, delim...)
	out = append(out, frontmatter...)
	out = append(out, delim...)
	out = append(out, body...)
	return out
}

// Parse decodes the front matter of a content file in either encoding and
// returns the fields, the remaining body and the detected format.
func Parse(content []byte) (map[string]any, []byte, Format, error) {
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var fields map[string]any
		if err := dec.Decode(&fields); err != nil {
			return nil, nil, FormatJSON, fmt.Errorf("json front matter: %w", err)
		}
		body := bytes.TrimLeft(trimmed[dec.InputOffset():], "\r\n")
		return fields, body, FormatJSON, nil
	}

	fm, body, had, _, err := Split(content)
	if err != nil {
		return nil, nil, FormatYAML, err
	}
	if !had {
		return map[string]any{}, body, FormatYAML, nil
	}
	fields, err := ParseYAML(fm)
	if err != nil {
		return nil, nil, FormatYAML, fmt.Errorf("yaml front matter: %w", err)
	}
	return fields, body, FormatYAML, nil
}

// ParseYAML parses raw YAML front matter (without delimiters) into a map.
func ParseYAML(frontmatter []byte) (map[string]any, error) {
	if len(frontmatter) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := yaml.Unmarshal(frontmatter, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func detectStyle(content []byte) Style {
	newline := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		newline = "\r\n"
	}
	return Style{
		Newline:            newline,
		HasTrailingNewline: len(content) > 0 && content[len(content)-1] == '\n',
	}
}
