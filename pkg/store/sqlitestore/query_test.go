package sqlitestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
)

func TestCompilePredsPushesScalars(t *testing.T) {
	preds, err := filter.Compile(filter.Spec{
		"title": "a",
		"prio":  map[string]any{"gte": 2.0},
		"done":  false,
		"gone":  nil,
	})
	require.NoError(t, err)

	exprs, residual := compilePreds(preds)
	assert.False(t, residual)
	assert.Len(t, exprs, 4)
	for _, e := range exprs {
		assert.Contains(t, e.expr, "json_type", "every pushed predicate is type guarded: %s", e.expr)
	}
}

func TestCompilePredsLeavesResidual(t *testing.T) {
	residualSpecs := []filter.Spec{
		{"due": map[string]any{"gt": map[string]any{"__type": "Date", "iso": time.Now().UTC().Format(models.TimeLayout)}}},
		{"n": map[string]any{"in": []any{1.0, 2.0}}},
		{"owner": map[string]any{"__type": "Pointer", "className": "users", "objectId": "u1"}},
		{"createdAt": map[string]any{"gte": map[string]any{"__type": "Date", "iso": time.Now().UTC().Format(models.TimeLayout)}}},
		{`odd"name`: 1.0},
	}
	for _, spec := range residualSpecs {
		preds, err := filter.Compile(spec)
		require.NoError(t, err)
		exprs, residual := compilePreds(preds)
		assert.True(t, residual, "spec %v must stay in process", spec)
		assert.Empty(t, exprs)
	}
}

func TestCompileObjectIDPred(t *testing.T) {
	preds, err := filter.Compile(filter.Spec{"objectId": "abc"})
	require.NoError(t, err)
	exprs, residual := compilePreds(preds)
	assert.False(t, residual)
	require.Len(t, exprs, 1)
	assert.Equal(t, "object_id = ?", exprs[0].expr)
	assert.Equal(t, []any{"abc"}, exprs[0].args)
}

func TestFieldPath(t *testing.T) {
	path, ok := fieldPath("title")
	assert.True(t, ok)
	assert.Equal(t, `$."title"`, path)

	path, ok = fieldPath("with space.and.dots")
	assert.True(t, ok)
	assert.Equal(t, `$."with space.and.dots"`, path)

	_, ok = fieldPath(`quo"te`)
	assert.False(t, ok)
	_, ok = fieldPath("back\\slash")
	assert.False(t, ok)
	_, ok = fieldPath("")
	assert.False(t, ok)
}
