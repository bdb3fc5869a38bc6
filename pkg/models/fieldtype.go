package models

import (
	"fmt"
	"strings"
)

// FieldType is the inferred type descriptor a class schema records for a
// field. The descriptor names follow the interchange convention, so a schema
// read through the API is directly comparable with the tagged value forms.
type FieldType string

const (
	FieldTypeString  FieldType = "String"
	FieldTypeNumber  FieldType = "Number"
	FieldTypeBoolean FieldType = "Boolean"
	FieldTypeDate    FieldType = "Date"
	FieldTypePointer FieldType = "Pointer"
	FieldTypeArray   FieldType = "Array"
	FieldTypeObject  FieldType = "Object"
)

// FieldTypeOf infers the type descriptor for a value. Null values carry no
// type information and report ok == false; schema inference skips them.
func FieldTypeOf(v Value) (FieldType, bool) {
	switch v.Kind() {
	case KindString:
		return FieldTypeString, true
	case KindNumber:
		return FieldTypeNumber, true
	case KindBool:
		return FieldTypeBoolean, true
	case KindTime:
		return FieldTypeDate, true
	case KindReference:
		return FieldTypePointer, true
	case KindList:
		return FieldTypeArray, true
	case KindMap:
		return FieldTypeObject, true
	}
	return "", false
}

// InferTypes infers a field-type mapping from a field-value mapping,
// skipping null values.
func InferTypes(fields map[string]Value) map[string]FieldType {
	out := make(map[string]FieldType, len(fields))
	for name, v := range fields {
		if t, ok := FieldTypeOf(v); ok {
			out[name] = t
		}
	}
	return out
}

// ParseFieldType parses a type descriptor name, case-insensitively, with a
// few common aliases. It is used by schema bootstrap files.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return FieldTypeString, nil
	case "number", "int", "float", "double":
		return FieldTypeNumber, nil
	case "boolean", "bool":
		return FieldTypeBoolean, nil
	case "date", "timestamp", "datetime":
		return FieldTypeDate, nil
	case "pointer", "reference", "ref":
		return FieldTypePointer, nil
	case "array", "list":
		return FieldTypeArray, nil
	case "object", "map":
		return FieldTypeObject, nil
	}
	return "", fmt.Errorf("unknown field type %q", s)
}
