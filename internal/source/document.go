// Package source reads hand-authored producer documents and turns each one
// into a candidate catalog.Producer for merging.
//
// A document has the shape
//
//	producer:
//	  name: Prusament
//	  materials:
//	    PETG:
//	      filaments:
//	        Jet Black: {color: black}
//
// Key order is preserved, so materials and filaments are appended to the
// catalog in the order they were authored.
package source

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// ParseError reports a source document that could not be turned into a
// producer. The run logs it and skips the document.
type ParseError struct {
	Path   string
	Line   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

// Unwrap exposes a source-category classified error carrying the cause.
func (e *ParseError) Unwrap() error {
	b := ferrors.SourceError(e.Reason).WithContext("path", e.Path)
	if e.Line > 0 {
		b = b.WithContext("line", e.Line)
	}
	if e.Err != nil {
		b = b.WithCause(e.Err)
	}
	return b.Build()
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*catalog.Producer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "cannot read document", Err: err}
	}
	return Parse(path, data)
}

// Parse converts document bytes into a producer; path is used for errors.
func Parse(path string, data []byte) (*catalog.Producer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Path: path, Reason: "document is empty"}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Reason: "invalid YAML", Err: err}
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	p := parser{path: path}
	return p.document(root)
}

type parser struct {
	path string
}

func (p parser) fail(n *yaml.Node, format string, args ...any) error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &ParseError{Path: p.path, Line: line, Reason: fmt.Sprintf(format, args...)}
}

func (p parser) document(root *yaml.Node) (*catalog.Producer, error) {
	if root.Kind != yaml.MappingNode {
		return nil, p.fail(root, "document must be a mapping")
	}
	prodNode := lookup(root, "producer")
	if prodNode == nil {
		return nil, p.fail(root, "missing key %q", "producer")
	}
	if prodNode.Kind != yaml.MappingNode {
		return nil, p.fail(prodNode, "producer must be a mapping")
	}

	nameNode := lookup(prodNode, "name")
	if nameNode == nil || nameNode.Kind != yaml.ScalarNode || nameNode.Value == "" || nameNode.ShortTag() == "!!null" {
		return nil, p.fail(prodNode, "producer.name must be a non-empty string")
	}
	producer := &catalog.Producer{Name: nameNode.Value}

	matsNode := lookup(prodNode, "materials")
	if matsNode == nil || isNull(matsNode) {
		return producer, nil
	}
	if matsNode.Kind != yaml.MappingNode {
		return nil, p.fail(matsNode, "producer.materials must be a mapping of material names")
	}

	for i := 0; i+1 < len(matsNode.Content); i += 2 {
		keyNode, valNode := matsNode.Content[i], matsNode.Content[i+1]
		if producer.Material(keyNode.Value) != nil {
			return nil, p.fail(keyNode, "duplicate material %q", keyNode.Value)
		}
		m, err := p.material(keyNode, valNode)
		if err != nil {
			return nil, err
		}
		producer.Materials = append(producer.Materials, m)
	}
	return producer, nil
}

func (p parser) material(keyNode, valNode *yaml.Node) (*catalog.Material, error) {
	if keyNode.Value == "" {
		return nil, p.fail(keyNode, "material name must not be empty")
	}
	m := &catalog.Material{Name: keyNode.Value}
	if isNull(valNode) {
		return m, nil
	}
	if valNode.Kind != yaml.MappingNode {
		return nil, p.fail(valNode, "material %q must be a mapping", m.Name)
	}
	filsNode := lookup(valNode, "filaments")
	if filsNode == nil || isNull(filsNode) {
		return m, nil
	}
	if filsNode.Kind != yaml.MappingNode {
		return nil, p.fail(filsNode, "material %q filaments must be a mapping of filament names", m.Name)
	}

	for i := 0; i+1 < len(filsNode.Content); i += 2 {
		fKey, fVal := filsNode.Content[i], filsNode.Content[i+1]
		if fKey.Value == "" {
			return nil, p.fail(fKey, "filament name must not be empty")
		}
		if m.Filament(fKey.Value) != nil {
			return nil, p.fail(fKey, "duplicate filament %q in material %q", fKey.Value, m.Name)
		}
		data, err := catalog.AttributesFromYAML(fVal)
		if err != nil {
			return nil, &ParseError{Path: p.path, Line: fVal.Line, Reason: fmt.Sprintf("filament %q attributes", fKey.Value), Err: err}
		}
		m.Filaments = append(m.Filaments, &catalog.Filament{Name: fKey.Value, Data: data})
	}
	return m, nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			n := mapping.Content[i+1]
			if n.Kind == yaml.AliasNode {
				return n.Alias
			}
			return n
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
