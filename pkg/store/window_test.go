package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anyclass/anyclass/pkg/models"
)

func TestWindow(t *testing.T) {
	var recs []*models.Record
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		recs = append(recs, &models.Record{ObjectID: id})
	}

	ids := func(page []*models.Record) []string {
		out := []string{}
		for _, rec := range page {
			out = append(out, rec.ObjectID)
		}
		return out
	}

	tests := []struct {
		name        string
		limit, skip int
		want        []string
	}{
		{"unbounded", 0, 0, []string{"a", "b", "c", "d", "e"}},
		{"limit", 2, 0, []string{"a", "b"}},
		{"skip", 0, 3, []string{"d", "e"}},
		{"limit and skip", 2, 1, []string{"b", "c"}},
		{"limit past end", 10, 3, []string{"d", "e"}},
		{"skip past end", 0, 5, []string{}},
		{"negative limit unbounded", -1, 4, []string{"e"}},
		{"negative skip ignored", 2, -3, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Window(recs, tt.limit, tt.skip)))
		})
	}

	t.Run("skip past end is empty not nil", func(t *testing.T) {
		assert.NotNil(t, Window(recs, 0, 99))
	})
}
