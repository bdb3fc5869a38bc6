package pgstore

import (
	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
)

// predSQL is one predicate rendered to a SQL expression with bind args. The
// field name always travels as a bind parameter, never spliced into SQL.
type predSQL struct {
	expr string
	args []any
}

// compilePreds renders the predicates PostgreSQL can evaluate with the same
// semantics as [store.MatchesPredicates]; the rest stay residual for
// in-process evaluation. The rendered subset is always a safe prefilter.
func compilePreds(preds []filter.Predicate) (exprs []predSQL, residual bool) {
	for _, p := range preds {
		e, ok := compilePred(p)
		if !ok {
			residual = true
			continue
		}
		exprs = append(exprs, e)
	}
	return exprs, residual
}

func compilePred(p filter.Predicate) (predSQL, bool) {
	switch p.Field {
	case models.FieldObjectID:
		return compileObjectIDPred(p)
	case models.FieldCreatedAt, models.FieldUpdatedAt:
		// Timestamp operands carry an arbitrary zone offset; ordering them
		// is the in-process evaluator's job.
		return predSQL{}, false
	}

	op, ok := sqlOp(p.Op)
	if !ok {
		return predSQL{}, false
	}

	switch p.Value.Kind() {
	case models.KindString:
		s, _ := p.Value.AsString()
		// COLLATE "C" pins string ranges to byte order, matching the
		// in-process comparison regardless of database locale.
		return guardedPred(p.Field, p.Op, op,
			"jsonb_typeof(fields -> ?) = 'string'",
			`(fields ->> ?) COLLATE "C"`,
			s), true
	case models.KindNumber:
		n, _ := p.Value.AsNumber()
		return guardedPred(p.Field, p.Op, op,
			"jsonb_typeof(fields -> ?) = 'number'",
			"((fields ->> ?)::float8)",
			n), true
	case models.KindBool:
		b, _ := p.Value.AsBool()
		return boolPred(p.Field, p.Op, b)
	case models.KindNull:
		return nullPred(p.Field, p.Op)
	}
	return predSQL{}, false
}

// guardedPred wraps a comparison in a jsonb_typeof guard so only same-type
// values compare, exactly like the in-process evaluator. guard and extract
// each consume one bind slot for the field name.
func guardedPred(name string, op filter.Op, sqlOperator, guard, extract string, operand any) predSQL {
	if op == filter.OpNotEqual {
		// Not-equal matches any present value that is not the operand,
		// whatever its type.
		return predSQL{
			expr: "(jsonb_typeof(fields -> ?) IS NOT NULL AND NOT (" + guard + " AND " + extract + " = ?))",
			args: []any{name, name, name, operand},
		}
	}
	return predSQL{
		expr: "(" + guard + " AND " + extract + " " + sqlOperator + " ?)",
		args: []any{name, name, operand},
	}
}

func boolPred(name string, op filter.Op, operand bool) (predSQL, bool) {
	lit := "'false'::jsonb"
	if operand {
		lit = "'true'::jsonb"
	}
	switch op {
	case filter.OpEqual:
		return predSQL{expr: "(fields -> ?) = " + lit, args: []any{name}}, true
	case filter.OpNotEqual:
		return predSQL{
			expr: "(jsonb_typeof(fields -> ?) IS NOT NULL AND (fields -> ?) <> " + lit + ")",
			args: []any{name, name},
		}, true
	}
	return predSQL{}, false
}

func nullPred(name string, op filter.Op) (predSQL, bool) {
	switch op {
	case filter.OpEqual:
		return predSQL{expr: "jsonb_typeof(fields -> ?) = 'null'", args: []any{name}}, true
	case filter.OpNotEqual:
		return predSQL{
			expr: "(jsonb_typeof(fields -> ?) IS NOT NULL AND jsonb_typeof(fields -> ?) <> 'null')",
			args: []any{name, name},
		}, true
	}
	return predSQL{}, false
}

func compileObjectIDPred(p filter.Predicate) (predSQL, bool) {
	s, ok := p.Value.AsString()
	if !ok {
		return predSQL{}, false
	}
	op, ok := sqlOp(p.Op)
	if !ok {
		return predSQL{}, false
	}
	if p.Op == filter.OpNotEqual {
		return predSQL{expr: "object_id <> ?", args: []any{s}}, true
	}
	return predSQL{expr: `object_id COLLATE "C" ` + op + " ?", args: []any{s}}, true
}

func sqlOp(op filter.Op) (string, bool) {
	switch op {
	case filter.OpEqual:
		return "=", true
	case filter.OpNotEqual:
		return "<>", true
	case filter.OpGreaterThan:
		return ">", true
	case filter.OpLessThan:
		return "<", true
	case filter.OpGreaterOrEqual:
		return ">=", true
	case filter.OpLessOrEqual:
		return "<=", true
	}
	return "", false
}
