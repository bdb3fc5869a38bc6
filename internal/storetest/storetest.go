// Package storetest runs one shared conformance suite against any engine
// implementing the store capability contract. Engine packages call Run from
// their own tests; the suite covers identity assignment, implicit class
// creation, field-type inference, filtered queries, result windows, partial
// update semantics at the engine boundary, bulk inserts, and the purge
// guards. Engine-specific behavior (connection handling, SQL pushdown,
// failure injection) stays in the engine's own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// Factory returns a fresh, empty engine for one subtest. Implementations may
// register cleanup on t; the suite closes the returned store itself.
type Factory func(t *testing.T) store.Store

// Run exercises the full engine contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"InsertAssignsIdentity", testInsertAssignsIdentity},
		{"GetByID", testGetByID},
		{"ImplicitClassAndInference", testImplicitClassAndInference},
		{"QueryReturnsCreationOrder", testQueryReturnsCreationOrder},
		{"QueryFilters", testQueryFilters},
		{"QueryByIdentityFields", testQueryByIdentityFields},
		{"QueryWindow", testQueryWindow},
		{"CountIgnoresWindow", testCountIgnoresWindow},
		{"UpdateReplacesFields", testUpdateReplacesFields},
		{"Delete", testDelete},
		{"BulkInsertPositional", testBulkInsertPositional},
		{"DefineClassMetadataOnly", testDefineClassMetadataOnly},
		{"PurgeRequiresEmptyClass", testPurgeRequiresEmptyClass},
		{"PurgeRejectsReferencedClass", testPurgeRejectsReferencedClass},
		{"UnknownClassReadsAreEmpty", testUnknownClassReadsAreEmpty},
		{"ValueFidelity", testValueFidelity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := open(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

func fieldsOf(t *testing.T, src map[string]any) map[string]models.Value {
	t.Helper()
	fields, err := models.FromAnyMap(src)
	require.NoError(t, err)
	return fields
}

func preds(t *testing.T, spec filter.Spec) []filter.Predicate {
	t.Helper()
	p, err := filter.Compile(spec)
	require.NoError(t, err)
	return p
}

func seedTasks(t *testing.T, st store.Store, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		rec, err := st.Insert(context.Background(), "Task", fieldsOf(t, map[string]any{
			"title": "task",
			"prio":  i + 1,
		}))
		require.NoError(t, err)
		ids[i] = rec.ObjectID
	}
	return ids
}

func objectIDs(recs []*models.Record) []string {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ObjectID
	}
	return ids
}

func testInsertAssignsIdentity(t *testing.T, st store.Store) {
	ctx := context.Background()

	rec, err := st.Insert(ctx, "Task", fieldsOf(t, map[string]any{"title": "write tests", "done": false}))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ObjectID)
	require.False(t, rec.CreatedAt.IsZero())
	assert.True(t, rec.UpdatedAt.Equal(rec.CreatedAt))
	assert.WithinDuration(t, time.Now(), rec.CreatedAt, 10*time.Second)
	assert.True(t, rec.Fields["title"].Equal(models.String("write tests")))
	assert.True(t, rec.Fields["done"].Equal(models.Bool(false)))

	other, err := st.Insert(ctx, "Task", fieldsOf(t, map[string]any{"title": "second"}))
	require.NoError(t, err)
	assert.NotEqual(t, rec.ObjectID, other.ObjectID)
}

func testGetByID(t *testing.T, st store.Store) {
	ctx := context.Background()

	rec, err := st.Insert(ctx, "Task", fieldsOf(t, map[string]any{"title": "find me", "prio": 3}))
	require.NoError(t, err)

	got, err := st.GetByID(ctx, "Task", rec.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, rec.ObjectID, got.ObjectID)
	assert.True(t, got.Fields["title"].Equal(models.String("find me")))
	assert.True(t, got.Fields["prio"].Equal(models.Number(3)))
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))

	_, err = st.GetByID(ctx, "Task", "missing-id")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)

	_, err = st.GetByID(ctx, "Nowhere", rec.ObjectID)
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}

func testImplicitClassAndInference(t *testing.T, st store.Store) {
	ctx := context.Background()

	_, err := st.Insert(ctx, "Event", fieldsOf(t, map[string]any{
		"name":    "launch",
		"seats":   120,
		"public":  true,
		"at":      map[string]any{"__type": "Date", "iso": "2024-03-01T09:00:00.000Z"},
		"owner":   map[string]any{"__type": "Pointer", "className": "User", "objectId": "u1"},
		"tags":    []any{"go", "talk"},
		"details": map[string]any{"room": "A"},
		"note":    nil,
	}))
	require.NoError(t, err)

	schema, err := st.GetClassFields(ctx, "Event")
	require.NoError(t, err)
	assert.Equal(t, "Event", schema.Name)
	assert.Equal(t, map[string]models.FieldType{
		"name":    models.FieldTypeString,
		"seats":   models.FieldTypeNumber,
		"public":  models.FieldTypeBoolean,
		"at":      models.FieldTypeDate,
		"owner":   models.FieldTypePointer,
		"tags":    models.FieldTypeArray,
		"details": models.FieldTypeObject,
	}, schema.Fields)

	// A later write adds new fields but never retypes known ones.
	_, err = st.Insert(ctx, "Event", fieldsOf(t, map[string]any{"seats": "overflow", "venue": "hall 4"}))
	require.NoError(t, err)

	schema, err = st.GetClassFields(ctx, "Event")
	require.NoError(t, err)
	assert.Equal(t, models.FieldTypeNumber, schema.Fields["seats"])
	assert.Equal(t, models.FieldTypeString, schema.Fields["venue"])

	classes, err := st.ListClasses(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "Event", classes[0].Name)
}

func testQueryReturnsCreationOrder(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := seedTasks(t, st, 4)

	recs, err := st.Query(ctx, "Task", nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ids, objectIDs(recs))
}

func testQueryFilters(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := seedTasks(t, st, 5)

	recs, err := st.Query(ctx, "Task", preds(t, filter.Spec{
		"prio": map[string]any{"gt": 1, "lte": 4},
	}), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[1:4], objectIDs(recs))

	recs, err = st.Query(ctx, "Task", preds(t, filter.Spec{
		"prio": map[string]any{"in": []any{1, 5, 99}},
	}), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[4]}, objectIDs(recs))

	recs, err = st.Query(ctx, "Task", preds(t, filter.Spec{"title": "task", "prio": 2}), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[1:2], objectIDs(recs))

	// Records without the filtered field never match, whatever the operator.
	recs, err = st.Query(ctx, "Task", preds(t, filter.Spec{
		"absent": map[string]any{"ne": "x"},
	}), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func testQueryByIdentityFields(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := seedTasks(t, st, 3)

	recs, err := st.Query(ctx, "Task", preds(t, filter.Spec{"objectId": ids[1]}), 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ids[1], recs[0].ObjectID)

	first, err := st.GetByID(ctx, "Task", ids[0])
	require.NoError(t, err)

	cutoff := first.CreatedAt.Add(-time.Second).UTC().Format(models.TimeLayout)
	recs, err = st.Query(ctx, "Task", preds(t, filter.Spec{
		"createdAt": map[string]any{"gte": map[string]any{"__type": "Date", "iso": cutoff}},
	}), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ids, objectIDs(recs))
}

func testQueryWindow(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := seedTasks(t, st, 5)

	recs, err := st.Query(ctx, "Task", nil, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, ids[1:3], objectIDs(recs))

	recs, err = st.Query(ctx, "Task", nil, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, ids[3:], objectIDs(recs))

	recs, err = st.Query(ctx, "Task", nil, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = st.Query(ctx, "Task", nil, 0, -7)
	require.NoError(t, err)
	assert.Equal(t, ids, objectIDs(recs))
}

func testCountIgnoresWindow(t *testing.T, st store.Store) {
	ctx := context.Background()
	seedTasks(t, st, 5)

	n, err := st.Count(ctx, "Task", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	n, err = st.Count(ctx, "Task", preds(t, filter.Spec{"prio": map[string]any{"gte": 4}}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func testUpdateReplacesFields(t *testing.T, st store.Store) {
	ctx := context.Background()

	rec, err := st.Insert(ctx, "Task", fieldsOf(t, map[string]any{"title": "old", "done": false}))
	require.NoError(t, err)

	updated, err := st.Update(ctx, "Task", rec.ObjectID, fieldsOf(t, map[string]any{"done": true}))
	require.NoError(t, err)
	assert.Equal(t, rec.ObjectID, updated.ObjectID)
	assert.True(t, updated.CreatedAt.Equal(rec.CreatedAt))
	assert.False(t, updated.UpdatedAt.Before(rec.UpdatedAt))

	got, err := st.GetByID(ctx, "Task", rec.ObjectID)
	require.NoError(t, err)
	// The engine stores exactly the mapping it was handed; merging lives a
	// layer above.
	assert.Len(t, got.Fields, 1)
	assert.True(t, got.Fields["done"].Equal(models.Bool(true)))

	_, err = st.Update(ctx, "Task", "missing-id", fieldsOf(t, map[string]any{"done": true}))
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}

func testDelete(t *testing.T, st store.Store) {
	ctx := context.Background()
	ids := seedTasks(t, st, 3)

	require.NoError(t, st.Delete(ctx, "Task", ids[1]))

	_, err := st.GetByID(ctx, "Task", ids[1])
	assert.ErrorIs(t, err, store.ErrObjectNotFound)

	err = st.Delete(ctx, "Task", ids[1])
	assert.ErrorIs(t, err, store.ErrObjectNotFound)

	recs, err := st.Query(ctx, "Task", nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[2]}, objectIDs(recs))
}

func testBulkInsertPositional(t *testing.T, st store.Store) {
	ctx := context.Background()

	batch := make([]map[string]models.Value, 4)
	for i := range batch {
		batch[i] = fieldsOf(t, map[string]any{"pos": i})
	}
	ids, err := st.BulkInsert(ctx, "Task", batch)
	require.NoError(t, err)
	require.Len(t, ids, 4)

	for i, id := range ids {
		rec, err := st.GetByID(ctx, "Task", id)
		require.NoError(t, err)
		assert.True(t, rec.Fields["pos"].Equal(models.Number(float64(i))), "id %d maps to wrong record", i)
	}

	recs, err := st.Query(ctx, "Task", nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, ids, objectIDs(recs))
}

func testDefineClassMetadataOnly(t *testing.T, st store.Store) {
	ctx := context.Background()

	err := st.DefineClass(ctx, "Task", map[string]models.FieldType{
		"title": models.FieldTypeString,
		"due":   models.FieldTypeDate,
	})
	require.NoError(t, err)

	n, err := st.Count(ctx, "Task", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	schema, err := st.GetClassFields(ctx, "Task")
	require.NoError(t, err)
	assert.Equal(t, models.FieldTypeString, schema.Fields["title"])
	assert.Equal(t, models.FieldTypeDate, schema.Fields["due"])

	// Re-defining merges new fields and keeps established types.
	err = st.DefineClass(ctx, "Task", map[string]models.FieldType{
		"title": models.FieldTypeNumber,
		"done":  models.FieldTypeBoolean,
	})
	require.NoError(t, err)

	schema, err = st.GetClassFields(ctx, "Task")
	require.NoError(t, err)
	assert.Equal(t, models.FieldTypeString, schema.Fields["title"])
	assert.Equal(t, models.FieldTypeBoolean, schema.Fields["done"])

	_, err = st.GetClassFields(ctx, "Nowhere")
	assert.ErrorIs(t, err, store.ErrClassNotFound)
}

func testPurgeRequiresEmptyClass(t *testing.T, st store.Store) {
	ctx := context.Background()

	rec, err := st.Insert(ctx, "Task", fieldsOf(t, map[string]any{"title": "keep"}))
	require.NoError(t, err)

	err = st.PurgeClass(ctx, "Task")
	assert.ErrorIs(t, err, store.ErrClassNotEmpty)

	require.NoError(t, st.Delete(ctx, "Task", rec.ObjectID))
	require.NoError(t, st.PurgeClass(ctx, "Task"))

	_, err = st.GetClassFields(ctx, "Task")
	assert.ErrorIs(t, err, store.ErrClassNotFound)

	err = st.PurgeClass(ctx, "Task")
	assert.ErrorIs(t, err, store.ErrClassNotFound)
}

func testPurgeRejectsReferencedClass(t *testing.T, st store.Store) {
	ctx := context.Background()

	require.NoError(t, st.DefineClass(ctx, "User", map[string]models.FieldType{"name": models.FieldTypeString}))

	// The pointer hides inside a list to make sure the guard walks nested
	// values, not just top-level fields.
	rec, err := st.Insert(ctx, "Task", fieldsOf(t, map[string]any{
		"title": "assigned",
		"watchers": []any{
			map[string]any{"__type": "Pointer", "className": "User", "objectId": "u1"},
		},
	}))
	require.NoError(t, err)

	err = st.PurgeClass(ctx, "User")
	assert.ErrorIs(t, err, store.ErrClassReferenced)

	require.NoError(t, st.Delete(ctx, "Task", rec.ObjectID))
	require.NoError(t, st.PurgeClass(ctx, "User"))
}

func testUnknownClassReadsAreEmpty(t *testing.T, st store.Store) {
	ctx := context.Background()

	recs, err := st.Query(ctx, "Ghost", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	n, err := st.Count(ctx, "Ghost", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testValueFidelity(t *testing.T, st store.Store) {
	ctx := context.Background()

	fields := fieldsOf(t, map[string]any{
		"str":  "héllo \"world\"",
		"num":  3.25,
		"neg":  -17,
		"flag": true,
		"when": map[string]any{"__type": "Date", "iso": "2023-11-05T08:30:15.250Z"},
		"who":  map[string]any{"__type": "Pointer", "className": "User", "objectId": "u-42"},
		"mix":  []any{"a", 1, false, map[string]any{"k": "v"}},
		"deep": map[string]any{"inner": []any{map[string]any{"__type": "Pointer", "className": "Team", "objectId": "t9"}}},
		"nul":  nil,
	})

	rec, err := st.Insert(ctx, "Blob", fields)
	require.NoError(t, err)

	got, err := st.GetByID(ctx, "Blob", rec.ObjectID)
	require.NoError(t, err)
	require.Len(t, got.Fields, len(fields))
	for name, want := range fields {
		assert.True(t, got.Fields[name].Equal(want), "field %q drifted: got %s, want %s", name, got.Fields[name], want)
	}
}
