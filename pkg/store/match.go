package store

import (
	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
)

// MatchesPredicates reports whether a record satisfies every predicate in
// the conjunction. It is the reference evaluation: SQL-backed engines must
// agree with it for whatever portion of a predicate list they push down.
func MatchesPredicates(rec *models.Record, preds []filter.Predicate) bool {
	for _, p := range preds {
		if !matches(rec, p) {
			return false
		}
	}
	return true
}

// fieldValue resolves a predicate field against a record. The identity and
// timestamp fields live outside the field mapping but are filterable like
// any other field.
func fieldValue(rec *models.Record, name string) (models.Value, bool) {
	switch name {
	case models.FieldObjectID:
		return models.String(rec.ObjectID), true
	case models.FieldCreatedAt:
		if rec.CreatedAt.IsZero() {
			return models.Value{}, false
		}
		return models.Timestamp(rec.CreatedAt), true
	case models.FieldUpdatedAt:
		if rec.UpdatedAt.IsZero() {
			return models.Value{}, false
		}
		return models.Timestamp(rec.UpdatedAt), true
	}
	v, ok := rec.Fields[name]
	return v, ok
}

func matches(rec *models.Record, p filter.Predicate) bool {
	v, ok := fieldValue(rec, p.Field)
	if !ok {
		// A field absent from the record matches no predicate, not even
		// a not-equal one.
		return false
	}

	switch p.Op {
	case filter.OpEqual:
		return v.Equal(p.Value)
	case filter.OpNotEqual:
		return !v.Equal(p.Value)
	case filter.OpGreaterThan:
		cmp, ok := v.Compare(p.Value)
		return ok && cmp > 0
	case filter.OpLessThan:
		cmp, ok := v.Compare(p.Value)
		return ok && cmp < 0
	case filter.OpGreaterOrEqual:
		cmp, ok := v.Compare(p.Value)
		return ok && cmp >= 0
	case filter.OpLessOrEqual:
		cmp, ok := v.Compare(p.Value)
		return ok && cmp <= 0
	case filter.OpIn:
		elems, ok := p.Value.AsList()
		if !ok {
			return false
		}
		for _, e := range elems {
			if v.Equal(e) {
				return true
			}
		}
		return false
	}
	return false
}

// ReferencesClass reports whether any of the record's values, at any
// nesting depth, is a reference into the named class. Engines use it to
// refuse purging a class other classes still point into.
func ReferencesClass(rec *models.Record, className string) bool {
	for _, v := range rec.Fields {
		if valueReferences(v, className) {
			return true
		}
	}
	return false
}

func valueReferences(v models.Value, className string) bool {
	switch v.Kind() {
	case models.KindReference:
		ref, _ := v.AsReference()
		return ref.ClassName == className
	case models.KindList:
		elems, _ := v.AsList()
		for _, e := range elems {
			if valueReferences(e, className) {
				return true
			}
		}
	case models.KindMap:
		m, _ := v.AsMap()
		for _, e := range m {
			if valueReferences(e, className) {
				return true
			}
		}
	}
	return false
}
