package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
)

func record(fields map[string]models.Value) *models.Record {
	return &models.Record{ObjectID: "r1", Fields: fields}
}

func TestMatchesPredicates(t *testing.T) {
	rec := record(map[string]models.Value{
		"title": models.String("report"),
		"prio":  models.Number(3),
		"done":  models.Bool(false),
		"eta":   models.Timestamp(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
		"none":  models.Null(),
	})

	cases := []struct {
		name string
		pred filter.Predicate
		want bool
	}{
		{"eq string", filter.Predicate{Field: "title", Op: filter.OpEqual, Value: models.String("report")}, true},
		{"eq mismatch", filter.Predicate{Field: "title", Op: filter.OpEqual, Value: models.String("memo")}, false},
		{"eq cross-kind", filter.Predicate{Field: "prio", Op: filter.OpEqual, Value: models.String("3")}, false},
		{"eq null field", filter.Predicate{Field: "none", Op: filter.OpEqual, Value: models.Null()}, true},
		{"gt number", filter.Predicate{Field: "prio", Op: filter.OpGreaterThan, Value: models.Number(2)}, true},
		{"gt equal bound", filter.Predicate{Field: "prio", Op: filter.OpGreaterThan, Value: models.Number(3)}, false},
		{"gte equal bound", filter.Predicate{Field: "prio", Op: filter.OpGreaterOrEqual, Value: models.Number(3)}, true},
		{"lt time", filter.Predicate{Field: "eta", Op: filter.OpLessThan, Value: models.Timestamp(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))}, true},
		{"lte string", filter.Predicate{Field: "title", Op: filter.OpLessOrEqual, Value: models.String("report")}, true},
		{"gt cross-kind", filter.Predicate{Field: "title", Op: filter.OpGreaterThan, Value: models.Number(1)}, false},
		{"ne", filter.Predicate{Field: "done", Op: filter.OpNotEqual, Value: models.Bool(true)}, true},
		{"ne null field", filter.Predicate{Field: "none", Op: filter.OpNotEqual, Value: models.Number(1)}, true},
		{"in hit", filter.Predicate{Field: "title", Op: filter.OpIn, Value: models.List(models.String("memo"), models.String("report"))}, true},
		{"in miss", filter.Predicate{Field: "title", Op: filter.OpIn, Value: models.List(models.String("memo"))}, false},
		{"in non-list operand", filter.Predicate{Field: "title", Op: filter.OpIn, Value: models.String("report")}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchesPredicates(rec, []filter.Predicate{tc.pred}))
		})
	}
}

func TestMissingFieldNeverMatches(t *testing.T) {
	rec := record(map[string]models.Value{"title": models.String("x")})

	for _, op := range []filter.Op{
		filter.OpEqual, filter.OpNotEqual, filter.OpGreaterThan,
		filter.OpLessThan, filter.OpGreaterOrEqual, filter.OpLessOrEqual, filter.OpIn,
	} {
		pred := filter.Predicate{Field: "ghost", Op: op, Value: models.Number(1)}
		assert.False(t, MatchesPredicates(rec, []filter.Predicate{pred}), op.String())
	}
}

func TestMatchesIdentityFields(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &models.Record{
		ObjectID:  "abc-123",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
		Fields:    map[string]models.Value{"title": models.String("x")},
	}

	assert.True(t, MatchesPredicates(rec, []filter.Predicate{
		{Field: "objectId", Op: filter.OpEqual, Value: models.String("abc-123")},
	}))
	assert.False(t, MatchesPredicates(rec, []filter.Predicate{
		{Field: "objectId", Op: filter.OpEqual, Value: models.String("other")},
	}))
	assert.True(t, MatchesPredicates(rec, []filter.Predicate{
		{Field: "createdAt", Op: filter.OpLessOrEqual, Value: models.Timestamp(created)},
	}))
	assert.True(t, MatchesPredicates(rec, []filter.Predicate{
		{Field: "updatedAt", Op: filter.OpGreaterThan, Value: models.Timestamp(created)},
	}))

	// Zero timestamps behave like absent fields.
	bare := &models.Record{ObjectID: "id", Fields: map[string]models.Value{}}
	assert.False(t, MatchesPredicates(bare, []filter.Predicate{
		{Field: "createdAt", Op: filter.OpNotEqual, Value: models.Timestamp(created)},
	}))
}

func TestMatchesConjunction(t *testing.T) {
	rec := record(map[string]models.Value{
		"prio": models.Number(5),
	})
	preds, err := filter.Compile(filter.Spec{"prio": map[string]any{"gte": 2, "lte": 8}})
	require.NoError(t, err)
	assert.True(t, MatchesPredicates(rec, preds))

	preds, err = filter.Compile(filter.Spec{"prio": map[string]any{"gte": 2, "lte": 4}})
	require.NoError(t, err)
	assert.False(t, MatchesPredicates(rec, preds))
}

func TestReferencesClass(t *testing.T) {
	direct := record(map[string]models.Value{
		"owner": models.Ref(models.Reference{ClassName: "User", ObjectID: "u1"}),
	})
	assert.True(t, ReferencesClass(direct, "User"))
	assert.False(t, ReferencesClass(direct, "Task"))

	nested := record(map[string]models.Value{
		"audit": models.Map(map[string]models.Value{
			"seen": models.List(models.Ref(models.Reference{ClassName: "User", ObjectID: "u2"})),
		}),
	})
	assert.True(t, ReferencesClass(nested, "User"))

	plain := record(map[string]models.Value{"n": models.Number(1)})
	assert.False(t, ReferencesClass(plain, "User"))
}
