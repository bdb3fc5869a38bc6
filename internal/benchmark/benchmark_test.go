package benchmark_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/anyclass/anyclass"
	"github.com/anyclass/anyclass/pkg/store/memstore"
)

func setupDispatcher(b *testing.B) (*anyclass.Dispatcher, context.Context) {
	b.Helper()
	st := memstore.New()
	b.Cleanup(func() { _ = st.Close() })
	return anyclass.New(st), context.Background()
}

func seedTasks(b *testing.B, disp *anyclass.Dispatcher, ctx context.Context, n int) {
	b.Helper()
	records := make([]any, n)
	for i := range records {
		records[i] = map[string]any{
			"title":    fmt.Sprintf("task %d", i),
			"priority": i % 10,
			"done":     i%2 == 0,
		}
	}
	if _, err := disp.Dispatch(ctx, anyclass.OpBatchCreateRecords, map[string]any{
		"className": "Task",
		"records":   records,
	}); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkCreateRecord(b *testing.B) {
	disp, ctx := setupDispatcher(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// error is ignored for benchmarking purposes.
		disp.Dispatch(ctx, anyclass.OpCreateRecord, map[string]any{ //nolint:errcheck
			"className": "Task",
			"data":      map[string]any{"title": fmt.Sprintf("task %d", i), "priority": i % 10},
		})
	}
}

func BenchmarkReadTableFiltered(b *testing.B) {
	disp, ctx := setupDispatcher(b)
	seedTasks(b, disp, ctx, 1000)
	params := map[string]any{
		"className": "Task",
		"filters": map[string]any{
			"done":     true,
			"priority": map[string]any{"gte": 3, "lt": 8},
		},
		"limit": 50,
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// error is ignored for benchmarking purposes.
		disp.Dispatch(ctx, anyclass.OpReadTable, params) //nolint:errcheck
	}
}

func BenchmarkCountRecords(b *testing.B) {
	disp, ctx := setupDispatcher(b)
	seedTasks(b, disp, ctx, 1000)
	params := map[string]any{
		"className": "Task",
		"filters":   map[string]any{"priority": map[string]any{"ne": 0}},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// error is ignored for benchmarking purposes.
		disp.Dispatch(ctx, anyclass.OpCountRecords, params) //nolint:errcheck
	}
}
