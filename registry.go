package anyclass

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// deleteBatchSize caps how many records DeleteTable drains per round.
const deleteBatchSize = 500

// Registry implements the schema operations: creating, listing, inspecting
// and deleting classes. It holds no state of its own; every call goes
// straight to the engine.
type Registry struct {
	store      store.Store
	log        zerolog.Logger
	legacySeed bool
}

// NewRegistry returns a schema registry backed by the given engine.
func NewRegistry(st store.Store, opts ...Option) *Registry {
	o := applyOptions(opts)
	return &Registry{store: st, log: o.logger, legacySeed: o.legacySeedRecord}
}

// TableSummary is one listTables entry: a class name and its field names.
type TableSummary struct {
	ClassName string   `json:"className"`
	Fields    []string `json:"fields"`
}

// CreateTable materializes a class. The schema mapping is optional; entries
// may give a field type by name ("String", "Date", ...) or an example value
// the type is inferred from. In legacy seed-record mode a non-empty schema
// is persisted as one live record instead, and the engine infers the types
// from that write.
func (r *Registry) CreateTable(ctx context.Context, className string, schema map[string]any) error {
	if r.legacySeed && len(schema) > 0 {
		values, err := models.FromAnyMap(schema)
		if err != nil {
			return newValidationError("invalid schema: %v", err)
		}
		rec, err := r.store.Insert(ctx, className, values)
		if err != nil {
			return wrapStoreErr("insert", className, "", err)
		}
		r.log.Debug().Str("class", className).Str("seedObjectId", rec.ObjectID).
			Msg("class created via seed record")
		return nil
	}

	types, err := schemaTypes(schema)
	if err != nil {
		return err
	}
	if err := r.store.DefineClass(ctx, className, types); err != nil {
		return wrapStoreErr("defineClass", className, "", err)
	}
	r.log.Debug().Str("class", className).Int("fields", len(types)).Msg("class defined")
	return nil
}

func schemaTypes(schema map[string]any) (map[string]models.FieldType, error) {
	types := make(map[string]models.FieldType, len(schema))
	for name, raw := range schema {
		if s, ok := raw.(string); ok {
			if t, err := models.ParseFieldType(s); err == nil {
				types[name] = t
				continue
			}
		}
		v, err := models.FromAny(raw)
		if err != nil {
			return nil, newValidationError("invalid schema: field %q: %v", name, err)
		}
		// Null examples carry no type information.
		if t, ok := models.FieldTypeOf(v); ok {
			types[name] = t
		}
	}
	return types, nil
}

// DefineTable declares a class with explicit field types, bypassing
// inference. Seed files use it.
func (r *Registry) DefineTable(ctx context.Context, className string, fields map[string]models.FieldType) error {
	if err := r.store.DefineClass(ctx, className, fields); err != nil {
		return wrapStoreErr("defineClass", className, "", err)
	}
	return nil
}

// ListTables returns every class and its field names, sorted by class name.
func (r *Registry) ListTables(ctx context.Context) ([]TableSummary, error) {
	classes, err := r.store.ListClasses(ctx)
	if err != nil {
		return nil, wrapStoreErr("listClasses", "", "", err)
	}
	out := make([]TableSummary, len(classes))
	for i, c := range classes {
		out[i] = TableSummary{ClassName: c.Name, Fields: c.FieldNames()}
	}
	return out, nil
}

// GetTableSchema returns the field-type mapping of one class.
func (r *Registry) GetTableSchema(ctx context.Context, className string) (*models.ClassSchema, error) {
	schema, err := r.store.GetClassFields(ctx, className)
	if err != nil {
		return nil, wrapStoreErr("getClassFields", className, "", err)
	}
	return schema, nil
}

// DeleteTable drains every record of the class and then purges its
// definition. Purging still fails if other classes hold references into
// this one; the drained records are not restored in that case.
func (r *Registry) DeleteTable(ctx context.Context, className string) error {
	if _, err := r.store.GetClassFields(ctx, className); err != nil {
		return wrapStoreErr("getClassFields", className, "", err)
	}

	drained := 0
	for {
		recs, err := r.store.Query(ctx, className, nil, deleteBatchSize, 0)
		if err != nil {
			return wrapStoreErr("query", className, "", err)
		}
		if len(recs) == 0 {
			break
		}
		for _, rec := range recs {
			if err := r.store.Delete(ctx, className, rec.ObjectID); err != nil {
				return wrapStoreErr("delete", className, rec.ObjectID, err)
			}
		}
		drained += len(recs)
	}

	if err := r.store.PurgeClass(ctx, className); err != nil {
		return wrapStoreErr("purgeClass", className, "", err)
	}
	r.log.Debug().Str("class", className).Int("drained", drained).Msg("class deleted")
	return nil
}
