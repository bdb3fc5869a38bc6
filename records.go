package anyclass

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// DefaultReadLimit is the page size Read applies when the caller gives no
// limit.
const DefaultReadLimit = 100

// Records implements the record operations over an engine: create, filtered
// reads, partial updates, deletes, bulk creation and counting. It holds no
// state between calls.
type Records struct {
	store   store.Store
	log     zerolog.Logger
	lenient bool
}

// NewRecords returns a record access layer backed by the given engine.
func NewRecords(st store.Store, opts ...Option) *Records {
	o := applyOptions(opts)
	return &Records{store: st, log: o.logger, lenient: o.lenientFilters}
}

// stripReserved drops the identity and timestamp keys from write data; the
// engine owns those.
func stripReserved(fields map[string]models.Value) {
	delete(fields, models.FieldObjectID)
	delete(fields, models.FieldCreatedAt)
	delete(fields, models.FieldUpdatedAt)
}

func asObject(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = v
		}
		return out, true
	}
	return nil, false
}

// Create persists one new record and returns it with its assigned identity.
func (r *Records) Create(ctx context.Context, className string, data map[string]any) (*models.Record, error) {
	fields, err := models.FromAnyMap(data)
	if err != nil {
		return nil, newValidationError("invalid record data: %v", err)
	}
	stripReserved(fields)

	rec, err := r.store.Insert(ctx, className, fields)
	if err != nil {
		return nil, wrapStoreErr("insert", className, "", err)
	}
	r.log.Debug().Str("class", className).Str("objectId", rec.ObjectID).Msg("record created")
	return rec, nil
}

// Read returns the page of records matching the filter spec. A zero limit
// means DefaultReadLimit; a negative limit disables the cap entirely.
// Negative skips read from the start.
func (r *Records) Read(ctx context.Context, className string, filters map[string]any, limit, skip int) ([]*models.Record, error) {
	preds, err := r.compileFilters(filters)
	if err != nil {
		return nil, err
	}
	switch {
	case limit == 0:
		limit = DefaultReadLimit
	case limit < 0:
		limit = 0
	}
	if skip < 0 {
		skip = 0
	}

	recs, err := r.store.Query(ctx, className, preds, limit, skip)
	if err != nil {
		return nil, wrapStoreErr("query", className, "", err)
	}
	return recs, nil
}

// Update merges data over the record's current fields and persists the
// result. Fields absent from data are untouched; there is no conflict
// detection, the last write to reach the engine wins.
func (r *Records) Update(ctx context.Context, className, objectID string, data map[string]any) (*models.Record, error) {
	patch, err := models.FromAnyMap(data)
	if err != nil {
		return nil, newValidationError("invalid record data: %v", err)
	}
	stripReserved(patch)

	current, err := r.store.GetByID(ctx, className, objectID)
	if err != nil {
		return nil, wrapStoreErr("getById", className, objectID, err)
	}

	merged := current.Fields
	if merged == nil {
		merged = make(map[string]models.Value, len(patch))
	}
	for k, v := range patch {
		merged[k] = v
	}

	rec, err := r.store.Update(ctx, className, objectID, merged)
	if err != nil {
		return nil, wrapStoreErr("update", className, objectID, err)
	}
	r.log.Debug().Str("class", className).Str("objectId", objectID).Msg("record updated")
	return rec, nil
}

// Delete removes one record.
func (r *Records) Delete(ctx context.Context, className, objectID string) error {
	if err := r.store.Delete(ctx, className, objectID); err != nil {
		return wrapStoreErr("delete", className, objectID, err)
	}
	r.log.Debug().Str("class", className).Str("objectId", objectID).Msg("record deleted")
	return nil
}

// BatchCreate persists one record per entry through the engine's bulk
// write and returns the assigned ids in input order. The batch is only as
// atomic as the engine's bulk write; a failure aborts the whole call.
func (r *Records) BatchCreate(ctx context.Context, className string, entries []any) ([]string, error) {
	batch := make([]map[string]models.Value, len(entries))
	for i, raw := range entries {
		obj, ok := asObject(raw)
		if !ok {
			return nil, newValidationError("records[%d] is not an object", i)
		}
		fields, err := models.FromAnyMap(obj)
		if err != nil {
			return nil, newValidationError("records[%d]: %v", i, err)
		}
		stripReserved(fields)
		batch[i] = fields
	}

	ids, err := r.store.BulkInsert(ctx, className, batch)
	if err != nil {
		return nil, wrapStoreErr("bulkInsert", className, "", err)
	}
	r.log.Debug().Str("class", className).Int("count", len(ids)).Msg("batch created")
	return ids, nil
}

// Count returns how many records match the filter spec, ignoring any
// pagination.
func (r *Records) Count(ctx context.Context, className string, filters map[string]any) (int64, error) {
	preds, err := r.compileFilters(filters)
	if err != nil {
		return 0, err
	}
	n, err := r.store.Count(ctx, className, preds)
	if err != nil {
		return 0, wrapStoreErr("count", className, "", err)
	}
	return n, nil
}

func (r *Records) compileFilters(filters map[string]any) ([]filter.Predicate, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	compile := filter.Compile
	if r.lenient {
		compile = filter.CompileLenient
	}
	preds, err := compile(filter.Spec(filters))
	if err != nil {
		return nil, newValidationError("invalid filter: %v", err)
	}
	return preds, nil
}
