package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is a tagged attribute value. The zero Value is null.
// Numbers keep their literal text so round trips are exact.
type Value struct {
	kind Kind
	text string
	b    bool
	m    *Attributes
	list []Value
}

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{kind: KindString, text: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Number returns a numeric value. Non-finite inputs become their string form
// because they have no JSON representation.
func Number(f float64) Value {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return String(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Int returns an integral numeric value.
func Int(i int64) Value { return Value{kind: KindNumber, text: strconv.FormatInt(i, 10)} }

// Map wraps nested attributes. A nil map is treated as empty.
func Map(a *Attributes) Value {
	if a == nil {
		a = NewAttributes()
	}
	return Value{kind: KindMap, m: a}
}

func (v Value) Kind() Kind { return v.kind }

// Text returns the string content, or the literal of a number.
func (v Value) Text() string { return v.text }

func (v Value) Float() (float64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("value is %s, not number", v.kind)
	}
	return strconv.ParseFloat(v.text, 64)
}

func (v Value) BoolValue() bool  { return v.b }
func (v Value) Map() *Attributes { return v.m }
func (v Value) List() []Value    { return v.list }
func (v Value) IsNull() bool     { return v.kind == KindNull }

// Equal reports deep equality, including key order of nested maps.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindNumber:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	case KindMap:
		return v.m.Equal(o.m)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) clone() Value {
	switch v.kind {
	case KindMap:
		return Value{kind: KindMap, m: v.m.Clone()}
	case KindList:
		out := make([]Value, len(v.list))
		for i := range v.list {
			out[i] = v.list[i].clone()
		}
		return Value{kind: KindList, list: out}
	default:
		return v
	}
}

// Interface converts the value to plain Go values: string, json.Number, bool,
// nil, []any, or *Attributes for nested maps (to keep ordering).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindNumber:
		return json.Number(v.text)
	case KindBool:
		return v.b
	case KindMap:
		return v.m
	case KindList:
		out := make([]any, len(v.list))
		for i := range v.list {
			out[i] = v.list[i].Interface()
		}
		return out
	default:
		return nil
	}
}

// Attributes is an ordered string-keyed mapping of values. Setting an existing
// key replaces its value in place; new keys append.
type Attributes struct {
	keys   []string
	values map[string]Value
}

func NewAttributes() *Attributes {
	return &Attributes{values: map[string]Value{}}
}

// Set stores v under key.
func (a *Attributes) Set(key string, v Value) *Attributes {
	if a.values == nil {
		a.values = map[string]Value{}
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
	return a
}

func (a *Attributes) Get(key string) (Value, bool) {
	if a == nil {
		return Value{}, false
	}
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Len is nil-safe; a nil or empty Attributes counts as "no attributes".
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Range calls fn for each entry in order until fn returns false.
func (a *Attributes) Range(fn func(key string, v Value) bool) {
	if a == nil {
		return
	}
	for _, k := range a.keys {
		if !fn(k, a.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy; Clone of nil is nil.
func (a *Attributes) Clone() *Attributes {
	if a == nil {
		return nil
	}
	out := &Attributes{keys: append([]string(nil), a.keys...), values: make(map[string]Value, len(a.values))}
	for k, v := range a.values {
		out.values[k] = v.clone()
	}
	return out
}

// Equal compares entries and their order. nil equals nil only.
func (a *Attributes) Equal(b *Attributes) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if len(a.keys) != len(b.keys) {
		return false
	}
	for i, k := range a.keys {
		if b.keys[i] != k || !a.values[k].Equal(b.values[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the entries as a JSON object in key order.
func (a *Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := a.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.text), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		return v.m.MarshalJSON()
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := v.list[i].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes: expected JSON object, got %v", tok)
	}
	out, err := decodeJSONObject(dec)
	if err != nil {
		return err
	}
	*a = *out
	return nil
}

// UnmarshalJSON decodes any JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m, err := decodeJSONObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Map(m), nil
		case '[':
			list := []Value{}
			for dec.More() {
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				list = append(list, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(list...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return String(t), nil
	case json.Number:
		return Value{kind: KindNumber, text: t.String()}, nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

func decodeJSONObject(dec *json.Decoder) (*Attributes, error) {
	out := NewAttributes()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		v, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarshalYAML renders the entries as an ordered mapping node.
func (a *Attributes) MarshalYAML() (any, error) {
	return a.yamlNode(), nil
}

func (a *Attributes) yamlNode() *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	a.Range(func(k string, v Value) bool {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, v.yamlNode())
		return true
	})
	return n
}

// MarshalYAML renders the value as a YAML node.
func (v Value) MarshalYAML() (any, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() *yaml.Node {
	switch v.kind {
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.text}
	case KindNumber:
		tag := "!!float"
		if _, err := strconv.ParseInt(v.text, 10, 64); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.text}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindMap:
		return v.m.yamlNode()
	case KindList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for i := range v.list {
			n.Content = append(n.Content, v.list[i].yamlNode())
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// UnmarshalYAML decodes a mapping node in document order.
func (a *Attributes) UnmarshalYAML(node *yaml.Node) error {
	out, err := AttributesFromYAML(node)
	if err != nil {
		return err
	}
	if out == nil {
		out = NewAttributes()
	}
	*a = *out
	return nil
}

// AttributesFromYAML converts a mapping node. A null or empty node yields nil.
func AttributesFromYAML(node *yaml.Node) (*Attributes, error) {
	if node == nil {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected mapping, got %s", node.Line, nodeKind(node))
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	out := NewAttributes()
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
		}
		v, err := ValueFromYAML(valNode)
		if err != nil {
			return nil, err
		}
		out.Set(keyNode.Value, v)
	}
	return out, nil
}

// ValueFromYAML converts any YAML node into a Value.
func ValueFromYAML(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return ValueFromYAML(node.Alias)
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null(), nil
		}
		return ValueFromYAML(node.Content[0])
	case yaml.MappingNode:
		m, err := AttributesFromYAML(node)
		if err != nil {
			return Value{}, err
		}
		return Map(m), nil
	case yaml.SequenceNode:
		list := make([]Value, 0, len(node.Content))
		for _, c := range node.Content {
			v, err := ValueFromYAML(c)
			if err != nil {
				return Value{}, err
			}
			list = append(list, v)
		}
		return List(list...), nil
	case yaml.ScalarNode:
		return scalarFromYAML(node)
	}
	return Value{}, fmt.Errorf("line %d: unsupported node", node.Line)
}

func scalarFromYAML(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var raw any
		if err := node.Decode(&raw); err != nil {
			return Value{}, err
		}
		switch n := raw.(type) {
		case int:
			return Int(int64(n)), nil
		case int64:
			return Int(n), nil
		case uint64:
			return Value{kind: KindNumber, text: strconv.FormatUint(n, 10)}, nil
		case float64:
			return Number(n), nil
		}
		return String(node.Value), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return Number(f), nil
	default:
		return String(node.Value), nil
	}
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar " + strconv.Quote(n.Value)
	default:
		return "node"
	}
}
