// Package memstore is the in-memory document-store engine. It backs
// development setups and tests, and doubles as the reference implementation
// of the engine contract: predicate evaluation delegates to the shared
// [store.MatchesPredicates], and every record is deep-copied on the way in
// and out so callers can never alias engine state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// Store is an in-memory engine. The zero value is not usable; construct one
// with New.
type Store struct {
	classes *xsync.MapOf[string, *class]
}

var _ store.Store = (*Store)(nil)

type class struct {
	mu      sync.RWMutex
	name    string
	fields  map[string]models.FieldType
	records map[string]*models.Record
	// order holds objectIds in insertion sequence; queries return records
	// in this order.
	order []string
}

// New returns an empty in-memory engine.
func New() *Store {
	return &Store{classes: xsync.NewMapOf[string, *class]()}
}

func newClass(name string) *class {
	return &class{
		name:    name,
		fields:  make(map[string]models.FieldType),
		records: make(map[string]*models.Record),
	}
}

func (s *Store) load(className string) (*class, bool) {
	return s.classes.Load(className)
}

func (s *Store) loadOrCreate(className string) *class {
	c, _ := s.classes.LoadOrCompute(className, func() *class {
		return newClass(className)
	})
	return c
}

// inferInto extends a class field mapping with the types of newly seen
// fields. A field's first inferred type sticks; later writes never change it.
func inferInto(schema map[string]models.FieldType, fields map[string]models.Value) {
	for name, v := range fields {
		if _, seen := schema[name]; seen {
			continue
		}
		if t, ok := models.FieldTypeOf(v); ok {
			schema[name] = t
		}
	}
}

func cloneFields(fields map[string]models.Value) map[string]models.Value {
	out := make(map[string]models.Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (s *Store) Insert(_ context.Context, className string, fields map[string]models.Value) (*models.Record, error) {
	c := s.loadOrCreate(className)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(fields).Clone(), nil
}

func (c *class) insertLocked(fields map[string]models.Value) *models.Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &models.Record{
		ObjectID:  uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    cloneFields(fields),
	}
	c.records[rec.ObjectID] = rec
	c.order = append(c.order, rec.ObjectID)
	inferInto(c.fields, rec.Fields)
	return rec
}

func (s *Store) GetByID(_ context.Context, className, objectID string) (*models.Record, error) {
	c, ok := s.load(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	return rec.Clone(), nil
}

func (s *Store) Query(_ context.Context, className string, preds []filter.Predicate, limit, skip int) ([]*models.Record, error) {
	c, ok := s.load(className)
	if !ok {
		// Querying a class that was never written matches nothing.
		return []*models.Record{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	matched := make([]*models.Record, 0, len(c.order))
	for _, id := range c.order {
		rec := c.records[id]
		if store.MatchesPredicates(rec, preds) {
			matched = append(matched, rec)
		}
	}

	page := store.Window(matched, limit, skip)
	out := make([]*models.Record, len(page))
	for i, rec := range page {
		out[i] = rec.Clone()
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, className, objectID string, fields map[string]models.Value) (*models.Record, error) {
	c, ok := s.load(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	rec.Fields = cloneFields(fields)
	rec.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	inferInto(c.fields, rec.Fields)
	return rec.Clone(), nil
}

func (s *Store) Delete(_ context.Context, className, objectID string) error {
	c, ok := s.load(className)
	if !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[objectID]; !ok {
		return fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	delete(c.records, objectID)
	for i, id := range c.order {
		if id == objectID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) BulkInsert(_ context.Context, className string, fields []map[string]models.Value) ([]string, error) {
	c := s.loadOrCreate(className)
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, len(fields))
	for i, f := range fields {
		ids[i] = c.insertLocked(f).ObjectID
	}
	return ids, nil
}

func (s *Store) Count(_ context.Context, className string, preds []filter.Predicate) (int64, error) {
	c, ok := s.load(className)
	if !ok {
		return 0, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, rec := range c.records {
		if store.MatchesPredicates(rec, preds) {
			n++
		}
	}
	return n, nil
}

func (s *Store) DefineClass(_ context.Context, className string, fields map[string]models.FieldType) error {
	c := s.loadOrCreate(className)
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, t := range fields {
		if _, seen := c.fields[name]; !seen {
			c.fields[name] = t
		}
	}
	return nil
}

func (s *Store) ListClasses(_ context.Context) ([]models.ClassSchema, error) {
	out := make([]models.ClassSchema, 0)
	s.classes.Range(func(_ string, c *class) bool {
		c.mu.RLock()
		schema := models.ClassSchema{Name: c.name, Fields: make(map[string]models.FieldType, len(c.fields))}
		for k, v := range c.fields {
			schema.Fields[k] = v
		}
		c.mu.RUnlock()
		out = append(out, schema)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetClassFields(_ context.Context, className string) (*models.ClassSchema, error) {
	c, ok := s.load(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrClassNotFound, className)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	schema := &models.ClassSchema{Name: c.name, Fields: make(map[string]models.FieldType, len(c.fields))}
	for k, v := range c.fields {
		schema.Fields[k] = v
	}
	return schema, nil
}

func (s *Store) PurgeClass(_ context.Context, className string) error {
	c, ok := s.load(className)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrClassNotFound, className)
	}

	c.mu.RLock()
	held := len(c.records)
	c.mu.RUnlock()
	if held > 0 {
		return fmt.Errorf("%w: %s", store.ErrClassNotEmpty, className)
	}

	var referencedBy string
	s.classes.Range(func(name string, other *class) bool {
		if name == className {
			return true
		}
		other.mu.RLock()
		defer other.mu.RUnlock()
		for _, rec := range other.records {
			if store.ReferencesClass(rec, className) {
				referencedBy = name
				return false
			}
		}
		return true
	})
	if referencedBy != "" {
		return fmt.Errorf("%w: %s is referenced by %s", store.ErrClassReferenced, className, referencedBy)
	}

	s.classes.Delete(className)
	return nil
}

func (s *Store) Close() error { return nil }
