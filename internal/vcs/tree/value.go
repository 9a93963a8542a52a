package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
)

// Kind tags the type of a document tree node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one node of a reporting-event document tree. Numbers keep their
// JSON literal so snapshots round-trip without losing precision. The zero
// Value is null.
//
// Values are treated as immutable: Set and Delete copy the path they touch
// and share the rest, so snapshots derived from one another stay independent.
type Value struct {
	kind   Kind
	boolv  bool
	numv   json.Number
	strv   string
	items  []Value
	fields map[string]Value
}

func Null() Value           { return Value{} }
func Bool(b bool) Value     { return Value{kind: KindBool, boolv: b} }
func String(s string) Value { return Value{kind: KindString, strv: s} }

func Number(n json.Number) Value { return Value{kind: KindNumber, numv: n} }

func Int(i int64) Value {
	return Value{kind: KindNumber, numv: json.Number(strconv.FormatInt(i, 10))}
}

func Float(f float64) Value {
	return Value{kind: KindNumber, numv: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

func Array(items ...Value) Value {
	return Value{kind: KindArray, items: items}
}

func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, fields: fields}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) BoolVal() bool          { return v.boolv }
func (v Value) NumberVal() json.Number { return v.numv }
func (v Value) StringVal() string      { return v.strv }

// Len returns the item count for arrays and the field count for objects.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	default:
		return 0
	}
}

// Index returns the i-th array item; the zero Value when out of range or not
// an array.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Items returns the backing array slice. Callers must not mutate it.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.items
}

// Field looks up an object key.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	fv, ok := v.fields[key]
	return fv, ok
}

// Keys returns the object's field names sorted for deterministic iteration.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty reports whether the node carries no content: null, the empty
// string, an empty array or an empty object. Conflict auto-resolution treats
// an empty side the same as an absent one.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.strv == ""
	case KindArray:
		return len(v.items) == 0
	case KindObject:
		return len(v.fields) == 0
	default:
		return false
	}
}

// Clone deep-copies the value so the result shares no containers with v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.items))
		for i, it := range v.items {
			items[i] = it.Clone()
		}
		return Value{kind: KindArray, items: items}
	case KindObject:
		fields := make(map[string]Value, len(v.fields))
		for k, fv := range v.fields {
			fields[k] = fv.Clone()
		}
		return Value{kind: KindObject, fields: fields}
	default:
		return v
	}
}

// Equal compares two trees structurally: object key order is irrelevant,
// array order matters, numbers compare by numeric value so 3 equals 3.0.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolv == b.boolv
	case KindNumber:
		return numberEqual(a.numv, b.numv)
	case KindString:
		return a.strv == b.strv
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for k, av := range a.fields {
			bv, ok := b.fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func numberEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	ra, okA := new(big.Rat).SetString(a.String())
	rb, okB := new(big.Rat).SetString(b.String())
	if !okA || !okB {
		return false
	}
	return ra.Cmp(rb) == 0
}

// FromJSON decodes raw JSON into a Value, keeping number literals intact.
func FromJSON(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var any interface{}
	if err := dec.Decode(&any); err != nil {
		return Value{}, fmt.Errorf("decode tree: %w", err)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("decode tree: trailing data after document")
	}
	return FromAny(any), nil
}

// FromAny converts a decoded JSON value (map[string]interface{}, []interface{},
// json.Number, float64, string, bool, nil) into a Value.
func FromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Value{}
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return Number(t)
	case float64:
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return Value{kind: KindArray, items: items}
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, fv := range t {
			fields[k] = FromAny(fv)
		}
		return Value{kind: KindObject, fields: fields}
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// ToAny converts the Value back into plain decoded-JSON shapes.
func (v Value) ToAny() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolv
	case KindNumber:
		return v.numv
	case KindString:
		return v.strv
	case KindArray:
		out := make([]interface{}, len(v.items))
		for i, it := range v.items {
			out[i] = it.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.fields))
		for k, fv := range v.fields {
			out[k] = fv.ToAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the tree with object keys sorted, so equal trees always
// produce identical bytes.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolv))
	case KindNumber:
		if v.numv == "" {
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(v.numv.String())
	case KindString:
		b, err := json.Marshal(v.strv)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("encode tree: unknown kind %v", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes raw JSON in place, so Value works inside plain
// structs passed to encoding/json.
func (v *Value) UnmarshalJSON(raw []byte) error {
	nv, err := FromJSON(raw)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid tree: %v>", err)
	}
	return string(b)
}
