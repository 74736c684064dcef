package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValueKind enumerates the shapes a template variable can take
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// Value is the normalised representation of a template variable. JSON
// decoders emit loosely typed containers; every value is converted to this
// tagged form before it reaches the templating engine.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	l    []Value
	m    *Map
}

func Null() Value { return Value{kind: KindNull} }
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }
func Int(v int64) Value { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func List(v ...Value) Value { return Value{kind: KindList, l: v} }
func MapValue(m *Map) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) BoolVal() bool     { return v.b }
func (v Value) IntVal() int64     { return v.i }
func (v Value) FloatVal() float64 { return v.f }
func (v Value) StringVal() string { return v.s }
func (v Value) ListVal() []Value  { return v.l }
func (v Value) MapVal() *Map      { return v.m }

// Interface converts the value back to plain Go types for consumers that
// traverse with reflection, e.g. the templating engine's context.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.l))
		for i, e := range v.l {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		return v.m.Interface()
	default:
		return nil
	}
}

// Map is a string-keyed mapping of values. Insertion order is preserved for
// iteration; key lookup is case-insensitive.
type Map struct {
	keys []string
	vals map[string]Value
	fold map[string]string // lowercase key -> stored key
}

// NewMap creates an empty ordered map
func NewMap() *Map {
	return &Map{
		vals: make(map[string]Value),
		fold: make(map[string]string),
	}
}

// Set inserts or replaces a key. A key that differs only by case replaces
// the existing entry while keeping its original position and spelling.
func (m *Map) Set(key string, v Value) {
	lower := strings.ToLower(key)
	if stored, ok := m.fold[lower]; ok {
		m.vals[stored] = v
		return
	}
	m.keys = append(m.keys, key)
	m.vals[key] = v
	m.fold[lower] = key
}

// Get looks a key up case-insensitively
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Null(), false
	}
	if v, ok := m.vals[key]; ok {
		return v, true
	}
	stored, ok := m.fold[strings.ToLower(key)]
	if !ok {
		return Null(), false
	}
	return m.vals[stored], true
}

// Resolve reports the stored spelling of a key, matching case-insensitively
func (m *Map) Resolve(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	if _, ok := m.vals[key]; ok {
		return key, true
	}
	stored, ok := m.fold[strings.ToLower(key)]
	return stored, ok
}

// Keys returns keys in insertion order
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Interface converts to a plain map for reflective traversal
func (m *Map) Interface() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = m.vals[k].Interface()
	}
	return out
}

// MarshalJSON emits entries in insertion order
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object preserving key order
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	*m = *NewMap()
	return decodeObjectInto(dec, m)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMap:
		return v.m.MarshalJSON()
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.l {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := json.Marshal(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v.Interface())
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return numberValue(t), nil
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			if err := decodeObjectInto(dec, m); err != nil {
				return Null(), err
			}
			return MapValue(m), nil
		case '[':
			var list []Value
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Null(), err
				}
				list = append(list, e)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return Null(), err
			}
			return Value{kind: KindList, l: list}, nil
		}
	}
	return Null(), fmt.Errorf("unexpected token %v", tok)
}

func decodeObjectInto(dec *json.Decoder, m *Map) error {
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return err
		}
		m.Set(key, v)
	}
	_, err := dec.Token() // closing '}'
	return err
}

// numberValue prefers int64 when the source number is whole
func numberValue(n json.Number) Value {
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i)
		}
	}
	f, err := n.Float64()
	if err != nil {
		return String(n.String())
	}
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < float64(math.MaxInt64) {
		return Int(int64(f))
	}
	return Float(f)
}

// Normalize deep-converts loosely typed decoder output into values
func Normalize(in any) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Map:
		return MapValue(t)
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return numberValue(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return numberValue(json.Number(fmt.Sprintf("%v", t)))
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < float64(math.MaxInt64) {
			return Int(int64(t))
		}
		return Float(t)
	case []any:
		list := make([]Value, len(t))
		for i, e := range t {
			list[i] = Normalize(e)
		}
		return Value{kind: KindList, l: list}
	case map[string]any:
		m := NewMap()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m.Set(k, Normalize(t[k]))
		}
		return MapValue(m)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}
