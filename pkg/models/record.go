package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reserved top-level keys of the flattened record form. Engines own these;
// they are never writable through a field mapping.
const (
	FieldObjectID  = "objectId"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// IsReservedField reports whether name is one of the engine-owned record
// keys.
func IsReservedField(name string) bool {
	switch name {
	case FieldObjectID, FieldCreatedAt, FieldUpdatedAt:
		return true
	}
	return false
}

// Record is one document instance within a class: an immutable,
// engine-assigned objectId, engine-maintained creation and update
// timestamps, and a mapping of field name to value.
//
// In its interchange form a record is a single flat JSON object: the fields
// laid out next to objectId, createdAt, and updatedAt.
type Record struct {
	ObjectID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]Value
}

// Clone returns a deep copy of r. Values are immutable, so only the field
// map itself needs copying.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	fields := make(map[string]Value, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return &Record{
		ObjectID:  r.ObjectID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Fields:    fields,
	}
}

// Any renders the record in its flattened interchange form.
func (r *Record) Any() map[string]any {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v.Any()
	}
	out[FieldObjectID] = r.ObjectID
	if !r.CreatedAt.IsZero() {
		out[FieldCreatedAt] = r.CreatedAt.UTC().Format(TimeLayout)
	}
	if !r.UpdatedAt.IsZero() {
		out[FieldUpdatedAt] = r.UpdatedAt.UTC().Format(TimeLayout)
	}
	return out
}

// MarshalJSON renders the flattened interchange form.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Any())
}

// UnmarshalJSON parses the flattened interchange form.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec, err := RecordFromAny(raw)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// RecordFromAny parses the flattened interchange form of a record from a
// decoded map, accepting both JSON- and CBOR-shaped maps.
func RecordFromAny(raw any) (*Record, error) {
	var m map[string]any
	switch x := raw.(type) {
	case map[string]any:
		m = x
	case map[any]any:
		var err error
		if m, err = normalizeKeys(x); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("record must be a mapping, got %T", raw)
	}

	rec := &Record{Fields: make(map[string]Value, len(m))}
	for k, v := range m {
		switch k {
		case FieldObjectID:
			id, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("objectId must be a string, got %T", v)
			}
			rec.ObjectID = id
		case FieldCreatedAt:
			t, err := parseRecordTime(v)
			if err != nil {
				return nil, fmt.Errorf("createdAt: %w", err)
			}
			rec.CreatedAt = t
		case FieldUpdatedAt:
			t, err := parseRecordTime(v)
			if err != nil {
				return nil, fmt.Errorf("updatedAt: %w", err)
			}
			rec.UpdatedAt = t
		default:
			val, err := FromAny(v)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			rec.Fields[k] = val
		}
	}
	return rec, nil
}

func parseRecordTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case string:
		return time.Parse(time.RFC3339, x)
	case time.Time:
		return x, nil
	}
	return time.Time{}, fmt.Errorf("timestamp must be a string, got %T", v)
}
