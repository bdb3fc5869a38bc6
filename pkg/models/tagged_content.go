package models

import (
	"fmt"
	"time"
)

// Interchange object tags. Typed values JSON has no native shape for travel
// as objects keyed by "__type", following the wire convention of the legacy
// platform.
const (
	typeKey     = "__type"
	typeDate    = "Date"
	typePointer = "Pointer"
)

// taggedContent decodes the content of a "__type"-tagged interchange object.
// tagged reports whether raw carries a tag at all; an untagged mapping is a
// plain nested value and is not handled here. A "__type" key holding a
// non-string is data, not a tag.
func taggedContent(raw map[string]any) (v Value, tagged bool, err error) {
	tag, ok := raw[typeKey].(string)
	if !ok {
		return Value{}, false, nil
	}
	switch tag {
	case typeDate:
		iso, ok := raw["iso"].(string)
		if !ok {
			return Value{}, true, fmt.Errorf("date value is missing its iso field")
		}
		t, err := time.Parse(time.RFC3339, iso)
		if err != nil {
			return Value{}, true, fmt.Errorf("invalid date %q: %w", iso, err)
		}
		return Timestamp(t), true, nil
	case typePointer:
		class, ok := raw["className"].(string)
		if !ok || class == "" {
			return Value{}, true, fmt.Errorf("pointer value is missing its className field")
		}
		id, ok := raw["objectId"].(string)
		if !ok || id == "" {
			return Value{}, true, fmt.Errorf("pointer value is missing its objectId field")
		}
		return Ref(Reference{ClassName: class, ObjectID: id}), true, nil
	default:
		return Value{}, true, fmt.Errorf("unsupported value type tag %q", tag)
	}
}

// taggedDate renders a date in its interchange envelope, UTC at millisecond
// precision.
func taggedDate(t time.Time) map[string]any {
	return map[string]any{
		typeKey: typeDate,
		"iso":   t.UTC().Format(TimeLayout),
	}
}

// taggedReference renders a record reference in its interchange envelope.
func taggedReference(r Reference) map[string]any {
	return map[string]any{
		typeKey:     typePointer,
		"className": r.ClassName,
		"objectId":  r.ObjectID,
	}
}
