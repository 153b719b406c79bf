package cloudysetup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind tags the variant held by a Value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

var kindNames = [...]string{"null", "string", "number", "bool", "object", "array"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a JSON value restricted to the shapes a resource property can
// take. Numbers keep their original literal so large integers survive a
// round trip unchanged.
type Value struct {
	kind    Kind
	str     string
	num     json.Number
	boolean bool
	obj     Properties
	arr     []Value
}

// String builds a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number builds a number Value from a JSON literal such as "42" or "1.5".
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

// Int builds a number Value.
func Int(n int64) Value { return Number(json.Number(strconv.FormatInt(n, 10))) }

// Bool builds a bool Value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Null builds a null Value.
func Null() Value { return Value{} }

// Object builds a nested object Value.
func Object(p Properties) Value { return Value{kind: KindObject, obj: p} }

// Array builds an array Value.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the number payload and whether v is a number.
func (v Value) Num() (json.Number, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the bool payload and whether v is a bool.
func (v Value) Boolean() (bool, bool) { return v.boolean, v.kind == KindBool }

// Obj returns the nested object and whether v is an object.
func (v Value) Obj() (Properties, bool) { return v.obj, v.kind == KindObject }

// Items returns the array items and whether v is an array.
func (v Value) Items() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Interface converts v into plain Go values (map[string]any, []any, ...).
// Object key order is lost.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.boolean
	case KindObject:
		return v.obj.Map()
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.boolean)
	case KindObject:
		return v.obj.MarshalJSON()
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("cannot marshal value of kind %s", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data after JSON value")
	}
	*v = parsed
	return nil
}

// MarshalYAML renders the value as an ordered YAML node.
func (v Value) MarshalYAML() (any, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() *yaml.Node {
	switch v.kind {
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.str}
	case KindNumber:
		tag := "!!int"
		if _, err := v.num.Int64(); err != nil {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.num.String()}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.boolean)}
	case KindObject:
		return v.obj.yamlNode()
	case KindArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.arr {
			n.Content = append(n.Content, item.yamlNode())
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// Properties is an insertion-ordered mapping of property name to Value.
// The zero value is an empty mapping ready to use.
type Properties struct {
	keys   []string
	values map[string]Value
}

// NewProperties builds Properties from alternating key/value pairs.
func NewProperties(pairs ...any) Properties {
	var p Properties
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		switch val := pairs[i+1].(type) {
		case Value:
			p.Set(k, val)
		case string:
			p.Set(k, String(val))
		case bool:
			p.Set(k, Bool(val))
		case int:
			p.Set(k, Int(int64(val)))
		case Properties:
			p.Set(k, Object(val))
		}
	}
	return p
}

// IsZero reports whether p holds no properties.
func (p Properties) IsZero() bool { return len(p.keys) == 0 }

// Len returns the number of properties.
func (p Properties) Len() int { return len(p.keys) }

// Keys returns property names in insertion order.
func (p Properties) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Get returns the value stored under key.
func (p Properties) Get(key string) (Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Set stores value under key, keeping the original position on overwrite.
func (p *Properties) Set(key string, value Value) {
	if p.values == nil {
		p.values = make(map[string]Value)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Delete removes key if present.
func (p *Properties) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// clone returns a shallow copy that can be modified independently.
func (p Properties) clone() Properties {
	out := Properties{keys: slices.Clone(p.keys), values: make(map[string]Value, len(p.values))}
	maps.Copy(out.values, p.values)
	return out
}

// Map converts the properties into a plain map.
func (p Properties) Map() map[string]any {
	out := make(map[string]any, len(p.keys))
	for _, k := range p.keys {
		out[k] = p.values[k].Interface()
	}
	return out
}

// MarshalJSON implements json.Marshaler, preserving key order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := p.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. The payload must be an object.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	switch v.kind {
	case KindObject:
		*p = v.obj
		return nil
	case KindNull:
		*p = Properties{}
		return nil
	default:
		return fmt.Errorf("properties must be a JSON object, got %s", v.kind)
	}
}

// MarshalYAML renders the properties as an ordered YAML mapping.
func (p Properties) MarshalYAML() (any, error) {
	return p.yamlNode(), nil
}

func (p Properties) yamlNode() *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range p.keys {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			p.values[k].yamlNode(),
		)
	}
	return n
}

// decodeValue reads one JSON value from dec, which must have UseNumber set.
func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

func decodeObject(dec *json.Decoder) (Value, error) {
	var p Properties
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key must be a string, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", key, err)
		}
		p.Set(key, val)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return Value{}, err
	}
	return Object(p), nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	items := []Value{}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		items = append(items, val)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return Value{}, err
	}
	return Array(items...), nil
}
