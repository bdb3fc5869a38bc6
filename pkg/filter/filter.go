// Package filter compiles caller-supplied filter specifications into flat
// conjunctions of predicates.
//
// A Spec maps field names to either a literal, which compiles to an equality
// predicate, or an operator object, a mapping from operator key to operand.
// The recognized operator keys are gt, lt, gte, lte, ne, and in; several of
// them may constrain the same field at once, and all resulting predicates
// apply conjunctively. There is no OR, no NOT beyond ne, and no nesting of
// sub-specs.
//
// [Compile] rejects operator objects containing unrecognized keys.
// [CompileLenient] reproduces the historical behavior of skipping them
// silently, so an operator object made solely of unrecognized keys
// constrains nothing.
package filter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/anyclass/anyclass/pkg/models"
)

// Spec is a raw, JSON-shaped filter specification: field name to literal or
// operator object.
type Spec map[string]any

// Op enumerates the predicate operators.
type Op int

const (
	OpEqual Op = iota
	OpGreaterThan
	OpLessThan
	OpGreaterOrEqual
	OpLessOrEqual
	OpNotEqual
	OpIn
)

func (op Op) String() string {
	switch op {
	case OpEqual:
		return "="
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	case OpGreaterOrEqual:
		return ">="
	case OpLessOrEqual:
		return "<="
	case OpNotEqual:
		return "!="
	case OpIn:
		return "IN"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Key returns the operator's spec key ("gt", "lte", ...). Equality, which a
// spec expresses as a literal rather than an operator key, reports "eq";
// that name only appears in serialized predicate lists.
func (op Op) Key() string {
	switch op {
	case OpEqual:
		return "eq"
	case OpGreaterThan:
		return "gt"
	case OpLessThan:
		return "lt"
	case OpGreaterOrEqual:
		return "gte"
	case OpLessOrEqual:
		return "lte"
	case OpNotEqual:
		return "ne"
	case OpIn:
		return "in"
	}
	return ""
}

// OpForKey resolves a serialized operator key back into an Op.
func OpForKey(key string) (Op, bool) {
	switch key {
	case "eq":
		return OpEqual, true
	case "gt":
		return OpGreaterThan, true
	case "lt":
		return OpLessThan, true
	case "gte":
		return OpGreaterOrEqual, true
	case "lte":
		return OpLessOrEqual, true
	case "ne":
		return OpNotEqual, true
	case "in":
		return OpIn, true
	}
	return 0, false
}

// operatorKeys fixes the evaluation order of operator keys within one
// operator object.
var operatorKeys = []struct {
	key string
	op  Op
}{
	{"gt", OpGreaterThan},
	{"lt", OpLessThan},
	{"gte", OpGreaterOrEqual},
	{"lte", OpLessOrEqual},
	{"ne", OpNotEqual},
	{"in", OpIn},
}

// Predicate is one compiled constraint: field Op operand. A record matches a
// predicate list only if it matches every entry; a record missing the field
// never matches the entry, whatever the operator.
type Predicate struct {
	Field string
	Op    Op
	Value models.Value
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Field, p.Op, p.Value)
}

// ErrUnknownOperator reports an operator object key outside the recognized
// set. Only [Compile] returns it; [CompileLenient] skips the key instead.
var ErrUnknownOperator = errors.New("unknown filter operator")

// Compile translates a spec into its ordered predicate list, rejecting
// unrecognized operator keys. Fields compile in sorted name order;
// within one operator object, predicates follow the fixed key order
// gt, lt, gte, lte, ne, in.
func Compile(spec Spec) ([]Predicate, error) {
	return compile(spec, true)
}

// CompileLenient is [Compile] with the historical treatment of unrecognized
// operator keys: they are skipped silently, emitting no predicate. An
// operator object with no recognized key at all compiles to zero predicates
// for its field.
func CompileLenient(spec Spec) ([]Predicate, error) {
	return compile(spec, false)
}

func compile(spec Spec, strict bool) ([]Predicate, error) {
	if len(spec) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(spec))
	for field := range spec {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	preds := make([]Predicate, 0, len(spec))
	for _, field := range fields {
		raw := spec[field]

		obj, ok := operatorObject(raw)
		if !ok {
			// Literal: scalars, lists, and tagged date/pointer objects
			// all compile to one equality predicate.
			operand, err := models.FromAny(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field, err)
			}
			preds = append(preds, Predicate{Field: field, Op: OpEqual, Value: operand})
			continue
		}

		if strict {
			if err := rejectUnknownKeys(field, obj); err != nil {
				return nil, err
			}
		}

		for _, entry := range operatorKeys {
			rawOperand, present := obj[entry.key]
			if !present {
				continue
			}
			operand, err := models.FromAny(rawOperand)
			if err != nil {
				return nil, fmt.Errorf("field %q, operator %q: %w", field, entry.key, err)
			}
			if strict && entry.op == OpIn && operand.Kind() != models.KindList {
				return nil, fmt.Errorf("field %q: operator \"in\" requires a list operand, got %s", field, operand.Kind())
			}
			preds = append(preds, Predicate{Field: field, Op: entry.op, Value: operand})
		}
	}
	return preds, nil
}

// operatorObject reports whether a field's raw value is an operator object.
// Every plain mapping is one; mappings tagged with "__type" are date or
// pointer literals and compile to equality instead.
func operatorObject(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		if spec, isSpec := raw.(Spec); isSpec {
			m = spec
			ok = true
		}
	}
	if !ok {
		return nil, false
	}
	if _, tagged := m["__type"]; tagged {
		return nil, false
	}
	return m, true
}

func rejectUnknownKeys(field string, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !recognizedKey(key) {
			return fmt.Errorf("field %q: %w: %q", field, ErrUnknownOperator, key)
		}
	}
	return nil
}

func recognizedKey(key string) bool {
	for _, entry := range operatorKeys {
		if entry.key == key {
			return true
		}
	}
	return false
}
