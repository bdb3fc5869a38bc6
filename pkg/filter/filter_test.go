package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/pkg/models"
)

func TestCompileEmptySpec(t *testing.T) {
	preds, err := Compile(nil)
	require.NoError(t, err)
	assert.Empty(t, preds)

	preds, err = Compile(Spec{})
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestCompileEqualityLiterals(t *testing.T) {
	preds, err := Compile(Spec{
		"title": "report",
		"done":  false,
		"prio":  3,
		"tags":  []any{"a", "b"},
	})
	require.NoError(t, err)
	require.Len(t, preds, 4)

	// Fields compile in sorted name order.
	assert.Equal(t, "done", preds[0].Field)
	assert.Equal(t, "prio", preds[1].Field)
	assert.Equal(t, "tags", preds[2].Field)
	assert.Equal(t, "title", preds[3].Field)
	for _, p := range preds {
		assert.Equal(t, OpEqual, p.Op)
	}
	assert.True(t, preds[2].Value.Equal(models.List(models.String("a"), models.String("b"))))
}

func TestCompileTaggedLiterals(t *testing.T) {
	preds, err := Compile(Spec{
		"owner": map[string]any{"__type": "Pointer", "className": "User", "objectId": "u1"},
		"eta":   map[string]any{"__type": "Date", "iso": "2024-06-01T00:00:00.000Z"},
	})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, OpEqual, preds[0].Op)
	assert.Equal(t, models.KindTime, preds[0].Value.Kind())
	assert.Equal(t, OpEqual, preds[1].Op)
	assert.Equal(t, models.KindReference, preds[1].Value.Kind())
}

func TestCompileOperatorObject(t *testing.T) {
	preds, err := Compile(Spec{
		"prio": map[string]any{"lte": 5, "gte": 2},
	})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	// Within a field, predicates follow the fixed key order gt, lt, gte, lte, ne, in.
	assert.Equal(t, OpGreaterOrEqual, preds[0].Op)
	assert.Equal(t, OpLessOrEqual, preds[1].Op)

	preds, err = Compile(Spec{
		"state": map[string]any{"in": []any{"open", "blocked"}, "ne": "done"},
	})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, OpNotEqual, preds[0].Op)
	assert.Equal(t, OpIn, preds[1].Op)
	list, ok := preds[1].Value.AsList()
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestCompileRejectsUnknownOperator(t *testing.T) {
	_, err := Compile(Spec{"prio": map[string]any{"bogus": 5}})
	require.ErrorIs(t, err, ErrUnknownOperator)
	assert.ErrorContains(t, err, `"bogus"`)

	// A recognized key does not rescue the object.
	_, err = Compile(Spec{"prio": map[string]any{"gt": 1, "bogus": 5}})
	require.ErrorIs(t, err, ErrUnknownOperator)
}

func TestCompileRejectsNonListInOperand(t *testing.T) {
	_, err := Compile(Spec{"state": map[string]any{"in": "open"}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "list operand")
}

func TestCompileLenientSkipsUnknownOperators(t *testing.T) {
	preds, err := CompileLenient(Spec{"prio": map[string]any{"bogus": 5}})
	require.NoError(t, err)
	assert.Empty(t, preds, "an object of only unrecognized keys constrains nothing")

	preds, err = CompileLenient(Spec{"prio": map[string]any{"gt": 1, "bogus": 5}})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, OpGreaterThan, preds[0].Op)
}

func TestCompileDeterministicAcrossFields(t *testing.T) {
	spec := Spec{
		"b": map[string]any{"gt": 1, "lt": 9},
		"a": 1,
		"c": map[string]any{"ne": 0},
	}
	first, err := Compile(spec)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Compile(spec)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	require.Len(t, first, 4)
	assert.Equal(t, "a", first[0].Field)
	assert.Equal(t, "b", first[1].Field)
	assert.Equal(t, "b", first[2].Field)
	assert.Equal(t, "c", first[3].Field)
}

func TestOpKeyRoundTrip(t *testing.T) {
	for _, op := range []Op{OpEqual, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpNotEqual, OpIn} {
		back, ok := OpForKey(op.Key())
		require.True(t, ok, op.Key())
		assert.Equal(t, op, back)
	}
	_, ok := OpForKey("bogus")
	assert.False(t, ok)
}

func TestCompileBadOperand(t *testing.T) {
	_, err := Compile(Spec{"x": map[string]any{"gt": struct{}{}}})
	require.Error(t, err)

	_, err = CompileLenient(Spec{"x": map[string]any{"gt": struct{}{}}})
	require.Error(t, err, "lenient mode still rejects unconvertible operands")
}
