package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass"
	"github.com/anyclass/anyclass/internal/seed"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store/memstore"
)

const document = `
classes:
  - name: Task
    fields: {title: String, done: Bool}
  - name: Project
    fields:
      name: String
      deadline: Date
`

func TestParse(t *testing.T) {
	f, err := seed.Parse([]byte(document))
	require.NoError(t, err)
	require.Len(t, f.Classes, 2)
	assert.Equal(t, "Task", f.Classes[0].Name)
	assert.Equal(t, map[string]string{"title": "String", "done": "Bool"}, f.Classes[0].Fields)
	assert.Equal(t, "Date", f.Classes[1].Fields["deadline"])
}

func TestParseRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not yaml", "classes: [", "parse seed file"},
		{"missing name", "classes:\n  - fields: {x: String}\n", "classes[0]: missing name"},
		{"unknown type", "classes:\n  - name: Task\n    fields: {blob: Binary}\n", `field "blob"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seed.Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o644))

	f, err := seed.Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Classes, 2)

	_, err = seed.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyDefinesClasses(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	f, err := seed.Parse([]byte(document))
	require.NoError(t, err)
	require.NoError(t, f.Apply(ctx, anyclass.NewRegistry(st)))

	schema, err := st.GetClassFields(ctx, "Task")
	require.NoError(t, err)
	assert.Equal(t, models.FieldTypeString, schema.Fields["title"])
	assert.Equal(t, models.FieldTypeBoolean, schema.Fields["done"])

	// Metadata-only creation leaves the class empty.
	n, err := st.Count(ctx, "Task", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	schema, err = st.GetClassFields(ctx, "Project")
	require.NoError(t, err)
	assert.Equal(t, models.FieldTypeDate, schema.Fields["deadline"])
}

func TestApplyHonorsLegacySeedRecord(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	f, err := seed.Parse([]byte(document))
	require.NoError(t, err)
	require.NoError(t, f.Apply(ctx, anyclass.NewRegistry(st, anyclass.WithLegacySeedRecord())))

	n, err := st.Count(ctx, "Task", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
