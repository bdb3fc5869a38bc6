// Package models defines the dynamic value model shared by every layer:
// the tagged Value variant record fields are made of, the Record and
// ClassSchema containers, and the field-type descriptors inferred from
// values.
//
// Values travel between callers and engines in an interchange form that is
// plain JSON: scalars stay scalars, lists and mappings stay arrays and
// objects, while dates and record references are carried as tagged objects
// of the shape {"__type": "Date", "iso": ...} and
// {"__type": "Pointer", "className": ..., "objectId": ...}.
// [FromAny] and [Value.Any] convert between the two representations and are
// inverses of each other.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
	KindReference
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindTime:
		return "date"
	case KindReference:
		return "pointer"
	case KindList:
		return "array"
	case KindMap:
		return "object"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// TimeLayout is the interchange layout for date values. Dates are rendered
// in UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Reference points at a record of a named class.
type Reference struct {
	ClassName string
	ObjectID  string
}

func (r Reference) String() string {
	return r.ClassName + "$" + r.ObjectID
}

// Value is a tagged variant holding one dynamically-typed record field value:
// a string, a number, a boolean, a date, a reference to another record, an
// ordered list, or a nested mapping. The zero Value is the null value.
//
// Values are immutable once constructed; List and Map copy their input.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	ref  Reference
	list []Value
	obj  map[string]Value
}

// Null returns the null value, which is also the zero Value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value. All numbers are carried as float64, the
// shape they arrive in from JSON.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Timestamp returns a date value.
func Timestamp(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Ref returns a reference value pointing at the given record.
func Ref(r Reference) Value { return Value{kind: KindReference, ref: r} }

// List returns an ordered-list value holding the given elements.
func List(elems ...Value) Value {
	out := make([]Value, len(elems))
	copy(out, elems)
	return Value{kind: KindList, list: out}
}

// Map returns a nested-mapping value holding a copy of m.
func Map(m map[string]Value) Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Value{kind: KindMap, obj: out}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string variant of v.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric variant of v.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean variant of v.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsTime returns the date variant of v.
func (v Value) AsTime() (time.Time, bool) {
	return v.t, v.kind == KindTime
}

// AsReference returns the reference variant of v.
func (v Value) AsReference() (Reference, bool) {
	return v.ref, v.kind == KindReference
}

// AsList returns the list variant of v. The returned slice must not be
// mutated.
func (v Value) AsList() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// AsMap returns the mapping variant of v. The returned map must not be
// mutated.
func (v Value) AsMap() (map[string]Value, bool) {
	return v.obj, v.kind == KindMap
}

// Equal reports whether v and o hold the same variant with an equal payload.
// Values of different kinds are never equal; numbers compare as float64.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	case KindReference:
		return v.ref == o.ref
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
	case KindMap:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, ve := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !ve.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders v against o. Only strings, numbers, and dates of the same
// kind are ordered; every other pairing reports ok == false, which range
// predicates treat as "no match".
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if v.kind != o.kind {
		return 0, false
	}
	switch v.kind {
	case KindString:
		switch {
		case v.str < o.str:
			return -1, true
		case v.str > o.str:
			return 1, true
		}
		return 0, true
	case KindNumber:
		switch {
		case v.num < o.num:
			return -1, true
		case v.num > o.num:
			return 1, true
		}
		return 0, true
	case KindTime:
		switch {
		case v.t.Before(o.t):
			return -1, true
		case v.t.After(o.t):
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// FromAny converts a raw, JSON-shaped (or CBOR-shaped) value into a Value.
// Maps tagged with "__type" decode into dates and references; every other
// map becomes a nested mapping. Numeric Go types all normalize to float64.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case time.Time:
		return Timestamp(x), nil
	case Reference:
		return Ref(x), nil
	case []any:
		return fromAnySlice(x)
	case map[string]any:
		return fromAnyObject(x)
	case map[any]any:
		m, err := normalizeKeys(x)
		if err != nil {
			return Value{}, err
		}
		return fromAnyObject(m)
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// FromAnyMap converts a raw field mapping into typed values.
func FromAnyMap(raw map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(raw))
	for k, v := range raw {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func fromAnySlice(raw []any) (Value, error) {
	elems := make([]Value, len(raw))
	for i, e := range raw {
		v, err := FromAny(e)
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		elems[i] = v
	}
	return Value{kind: KindList, list: elems}, nil
}

func fromAnyObject(raw map[string]any) (Value, error) {
	if v, tagged, err := taggedContent(raw); tagged {
		return v, err
	}

	obj := make(map[string]Value, len(raw))
	for k, e := range raw {
		v, err := FromAny(e)
		if err != nil {
			return Value{}, fmt.Errorf("key %q: %w", k, err)
		}
		obj[k] = v
	}
	return Value{kind: KindMap, obj: obj}, nil
}

// normalizeKeys converts the map shape produced by CBOR decoding into
// string-keyed maps, recursively.
func normalizeKeys(raw map[any]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		ks, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("unsupported map key type %T", k)
		}
		out[ks] = v
	}
	return out, nil
}

// Any renders v back into its interchange form: scalars, []any, and
// map[string]any, with dates and references as their tagged objects.
// FromAny(v.Any()) reproduces v.
func (v Value) Any() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return taggedDate(v.t)
	case KindReference:
		return taggedReference(v.ref)
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Any()
		}
		return out
	}
	return nil
}

// AnyMap renders a field mapping into its interchange form.
func AnyMap(fields map[string]Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v.Any()
	}
	return out
}

// MarshalJSON renders v in its interchange form.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return nil, fmt.Errorf("number value %v is not representable in JSON", v.num)
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON parses the interchange form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", v.Any())
	}
	return string(data)
}
