package models

import "sort"

// ClassSchema is the definition of one class: its name and the mapping of
// field name to inferred type descriptor. Engines mutate the field mapping
// whenever a write introduces a field the class has not seen before.
type ClassSchema struct {
	Name   string               `json:"className"`
	Fields map[string]FieldType `json:"fields"`
}

// FieldNames returns the schema's field names in sorted order.
func (s *ClassSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of s.
func (s *ClassSchema) Clone() *ClassSchema {
	if s == nil {
		return nil
	}
	fields := make(map[string]FieldType, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	return &ClassSchema{Name: s.Name, Fields: fields}
}
