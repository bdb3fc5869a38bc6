package sqlitestore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/internal/storetest"
	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
	"github.com/anyclass/anyclass/pkg/store/sqlitestore"
)

func open(t *testing.T) *sqlitestore.Store {
	t.Helper()
	st, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return open(t)
	})
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "anyclass.db")

	st, err := sqlitestore.Open(path)
	require.NoError(t, err)
	rec, err := st.Insert(ctx, "tasks", map[string]models.Value{
		"title": models.String("persisted"),
		"prio":  models.Number(3),
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = sqlitestore.Open(path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.GetByID(ctx, "tasks", rec.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, models.String("persisted"), got.Fields["title"])
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)

	schema, err := st.GetClassFields(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, models.FieldTypeString, schema.Fields["title"])
	assert.Equal(t, models.FieldTypeNumber, schema.Fields["prio"])
}

// A JSON string "10" sorts above the number 7 in raw SQLite ordering; the
// type guards must keep such cross-type pairs out of range results.
func TestCrossTypeOrderingDoesNotLeak(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	for _, v := range []models.Value{
		models.String("10"),
		models.Number(5),
		models.Number(9),
		models.Bool(true),
	} {
		_, err := st.Insert(ctx, "mixed", map[string]models.Value{"v": v})
		require.NoError(t, err)
	}

	preds, err := filter.Compile(filter.Spec{"v": map[string]any{"gt": 7.0}})
	require.NoError(t, err)

	recs, err := st.Query(ctx, "mixed", preds, 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.Number(9), recs[0].Fields["v"])

	n, err := st.Count(ctx, "mixed", preds)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNotEqualMatchesPresentValuesOnly(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	_, err := st.Insert(ctx, "flags", map[string]models.Value{"flag": models.Bool(true)})
	require.NoError(t, err)
	_, err = st.Insert(ctx, "flags", map[string]models.Value{"flag": models.String("yes")})
	require.NoError(t, err)
	_, err = st.Insert(ctx, "flags", map[string]models.Value{"other": models.Number(1)})
	require.NoError(t, err)

	preds, err := filter.Compile(filter.Spec{"flag": map[string]any{"ne": false}})
	require.NoError(t, err)

	recs, err := st.Query(ctx, "flags", preds, 0, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

// Mixing pushed-down and in-process predicates must still return records in
// creation order with the window applied after filtering.
func TestMixedPushdownKeepsOrderAndWindow(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		_, err := st.Insert(ctx, "tasks", map[string]models.Value{
			"seq": models.Number(float64(i)),
			"due": models.Timestamp(base.AddDate(0, 0, i)),
		})
		require.NoError(t, err)
	}

	// seq >= 2 pushes down; the due bound stays in process.
	preds, err := filter.Compile(filter.Spec{
		"seq": map[string]any{"gte": 2.0},
		"due": map[string]any{
			"lt": map[string]any{"__type": "Date", "iso": base.AddDate(0, 0, 8).Format(models.TimeLayout)},
		},
	})
	require.NoError(t, err)

	recs, err := st.Query(ctx, "tasks", preds, 3, 1)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, want := range []float64{3, 4, 5} {
		assert.Equal(t, models.Number(want), recs[i].Fields["seq"])
	}

	n, err := st.Count(ctx, "tasks", preds)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestObjectIDPredicatePushdown(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := st.Insert(ctx, "tasks", map[string]models.Value{
			"n": models.Number(float64(i)),
		})
		require.NoError(t, err)
		ids = append(ids, rec.ObjectID)
	}

	preds, err := filter.Compile(filter.Spec{"objectId": ids[2]})
	require.NoError(t, err)
	recs, err := st.Query(ctx, "tasks", preds, 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ids[2], recs[0].ObjectID)

	preds, err = filter.Compile(filter.Spec{"objectId": map[string]any{"ne": ids[2]}})
	require.NoError(t, err)
	n, err := st.Count(ctx, "tasks", preds)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestQueryAgreesWithReferenceMatcher(t *testing.T) {
	ctx := context.Background()
	st := open(t)

	var all []*models.Record
	for i := 0; i < 20; i++ {
		fields := map[string]models.Value{
			"n":    models.Number(float64(i % 7)),
			"name": models.String(fmt.Sprintf("item-%d", i%5)),
		}
		if i%3 == 0 {
			fields["flag"] = models.Bool(i%2 == 0)
		}
		rec, err := st.Insert(ctx, "grid", fields)
		require.NoError(t, err)
		all = append(all, rec)
	}

	specs := []filter.Spec{
		{"n": map[string]any{"gte": 2.0, "lte": 5.0}},
		{"name": "item-3"},
		{"name": map[string]any{"ne": "item-0"}, "n": map[string]any{"lt": 4.0}},
		{"flag": true},
		{"flag": map[string]any{"ne": true}},
		{"n": map[string]any{"in": []any{1.0, 6.0}}},
	}
	for _, spec := range specs {
		preds, err := filter.Compile(spec)
		require.NoError(t, err)

		var want []string
		for _, rec := range all {
			if store.MatchesPredicates(rec, preds) {
				want = append(want, rec.ObjectID)
			}
		}

		recs, err := st.Query(ctx, "grid", preds, 0, 0)
		require.NoError(t, err)
		var got []string
		for _, rec := range recs {
			got = append(got, rec.ObjectID)
		}
		assert.Equal(t, want, got, "spec %v", spec)
	}
}
