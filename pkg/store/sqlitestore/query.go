package sqlitestore

import (
	"strings"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
)

// predSQL is one predicate rendered to a SQL expression with bind args.
type predSQL struct {
	expr string
	args []any
}

// compilePreds renders the predicates SQLite can evaluate with the same
// semantics as [store.MatchesPredicates]. Predicates it cannot render
// exactly are left to in-process evaluation; residual reports whether any
// were. The rendered subset never rejects a record the full list accepts,
// so it is always safe as a prefilter.
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

	path, ok := fieldPath(p.Field)
	if !ok {
		return predSQL{}, false
	}
	op, ok := sqlOp(p.Op)
	if !ok {
		return predSQL{}, false
	}

	switch p.Value.Kind() {
	case models.KindString:
		s, _ := p.Value.AsString()
		return guardedPred(path, p.Op, op, "json_type(fields, ?) = 'text'", s)
	case models.KindNumber:
		n, _ := p.Value.AsNumber()
		return guardedPred(path, p.Op, op, "json_type(fields, ?) IN ('integer', 'real')", n)
	case models.KindBool:
		b, _ := p.Value.AsBool()
		return boolPred(path, p.Op, b)
	case models.KindNull:
		return nullPred(path, p.Op)
	}
	return predSQL{}, false
}

// guardedPred wraps a comparison in a json_type guard so SQLite's
// cross-type ordering (INTEGER < TEXT always) can never leak in: a value of
// the wrong type fails the predicate, exactly like a cross-kind comparison
// does in process.
func guardedPred(path string, op filter.Op, sqlOperator, guard string, operand any) (predSQL, bool) {
	if op == filter.OpNotEqual {
		// Not-equal matches any present value that is not the operand,
		// whatever its type.
		return predSQL{
			expr: "(json_type(fields, ?) IS NOT NULL AND NOT (" + guard + " AND json_extract(fields, ?) = ?))",
			args: []any{path, path, path, operand},
		}, true
	}
	return predSQL{
		expr: "(" + guard + " AND json_extract(fields, ?) " + sqlOperator + " ?)",
		args: []any{path, path, operand},
	}, true
}

func boolPred(path string, op filter.Op, operand bool) (predSQL, bool) {
	lit := "false"
	if operand {
		lit = "true"
	}
	switch op {
	case filter.OpEqual:
		return predSQL{expr: "json_type(fields, ?) = '" + lit + "'", args: []any{path}}, true
	case filter.OpNotEqual:
		return predSQL{
			expr: "(json_type(fields, ?) IS NOT NULL AND json_type(fields, ?) != '" + lit + "')",
			args: []any{path, path},
		}, true
	}
	return predSQL{}, false
}

func nullPred(path string, op filter.Op) (predSQL, bool) {
	switch op {
	case filter.OpEqual:
		return predSQL{expr: "json_type(fields, ?) = 'null'", args: []any{path}}, true
	case filter.OpNotEqual:
		return predSQL{
			expr: "(json_type(fields, ?) IS NOT NULL AND json_type(fields, ?) != 'null')",
			args: []any{path, path},
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
		return predSQL{expr: "object_id != ?", args: []any{s}}, true
	}
	return predSQL{expr: "object_id " + op + " ?", args: []any{s}}, true
}

// fieldPath renders a JSON path addressing a top-level field. Names the
// path syntax cannot quote stay residual.
func fieldPath(name string) (string, bool) {
	if name == "" || strings.ContainsAny(name, "\"\\") {
		return "", false
	}
	for _, r := range name {
		if r < 0x20 {
			return "", false
		}
	}
	return `$."` + name + `"`, true
}

func sqlOp(op filter.Op) (string, bool) {
	switch op {
	case filter.OpEqual:
		return "=", true
	case filter.OpNotEqual:
		return "!=", true
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
