// Package sqlitestore is the document-store engine on a single SQLite
// database file. Records keep their fields as interchange-form JSON in one
// TEXT column; predicates that render exactly into SQLite's json_* surface
// are pushed down, the rest are evaluated in process against the shared
// reference matcher.
//
// Tables:
//
//	classes(name, fields)                                       PRIMARY KEY (name)
//	records(class_name, object_id, fields, created_at, updated_at)
//	                                                            PRIMARY KEY (class_name, object_id)
//
// Creation order, which queries must preserve, rides on the implicit rowid.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// Store is a SQLite-backed engine. Construct one with Open.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and prepares the schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if !isMemory(path) {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if isMemory(path) {
		// A memory database exists per connection; the pool must not
		// open a second one.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		fields TEXT NOT NULL DEFAULT '{}'
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		class_name TEXT NOT NULL,
		object_id TEXT NOT NULL,
		fields TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (class_name, object_id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" ||
		strings.HasPrefix(path, "file::memory:") ||
		strings.Contains(path, "mode=memory")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeFields(fields map[string]models.Value) (string, error) {
	b, err := json.Marshal(models.AnyMap(fields))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFields(raw string) (map[string]models.Value, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return models.FromAnyMap(m)
}

func rowToRecord(objectID, rawFields string, createdAt, updatedAt int64) (*models.Record, error) {
	fields, err := decodeFields(rawFields)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", objectID, err)
	}
	return &models.Record{
		ObjectID:  objectID,
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
		Fields:    fields,
	}, nil
}

func (s *Store) Insert(ctx context.Context, className string, fields map[string]models.Value) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.insertLocked(ctx, s.db, className, fields)
	if err != nil {
		return nil, err
	}
	if err := s.mergeClassFields(ctx, className, models.InferTypes(rec.Fields)); err != nil {
		return nil, err
	}
	return rec, nil
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertLocked(ctx context.Context, ex execer, className string, fields map[string]models.Value) (*models.Record, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &models.Record{
		ObjectID:  uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    fields,
	}
	raw, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO records (class_name, object_id, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		className, rec.ObjectID, raw, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) GetByID(ctx context.Context, className, objectID string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getByIDLocked(ctx, className, objectID)
}

func (s *Store) getByIDLocked(ctx context.Context, className, objectID string) (*models.Record, error) {
	var (
		raw                  string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fields, created_at, updated_at FROM records WHERE class_name = ? AND object_id = ?`,
		className, objectID,
	).Scan(&raw, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	if err != nil {
		return nil, err
	}
	return rowToRecord(objectID, raw, createdAt, updatedAt)
}

func (s *Store) Query(ctx context.Context, className string, preds []filter.Predicate, limit, skip int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exprs, residual := compilePreds(preds)

	var sb strings.Builder
	sb.WriteString(`SELECT object_id, fields, created_at, updated_at FROM records WHERE class_name = ?`)
	args := []any{className}
	for _, e := range exprs {
		sb.WriteString(" AND ")
		sb.WriteString(e.expr)
		args = append(args, e.args...)
	}
	sb.WriteString(" ORDER BY rowid")
	if !residual {
		// Fully pushed down; SQLite can window too. LIMIT -1 is unbounded.
		sqlLimit := -1
		if limit > 0 {
			sqlLimit = limit
		}
		if skip < 0 {
			skip = 0
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, sqlLimit, skip)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matched := []*models.Record{}
	for rows.Next() {
		var (
			objectID, raw        string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&objectID, &raw, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec, err := rowToRecord(objectID, raw, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		if residual && !store.MatchesPredicates(rec, preds) {
			continue
		}
		matched = append(matched, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if residual {
		matched = store.Window(matched, limit, skip)
	}
	return matched, nil
}

func (s *Store) Update(ctx context.Context, className, objectID string, fields map[string]models.Value) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getByIDLocked(ctx, className, objectID)
	if err != nil {
		return nil, err
	}
	raw, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	_, err = s.db.ExecContext(ctx,
		`UPDATE records SET fields = ?, updated_at = ? WHERE class_name = ? AND object_id = ?`,
		raw, now.UnixMilli(), className, objectID,
	)
	if err != nil {
		return nil, err
	}
	if err := s.mergeClassFields(ctx, className, models.InferTypes(fields)); err != nil {
		return nil, err
	}
	return &models.Record{
		ObjectID:  objectID,
		CreatedAt: current.CreatedAt,
		UpdatedAt: now,
		Fields:    fields,
	}, nil
}

func (s *Store) Delete(ctx context.Context, className, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE class_name = ? AND object_id = ?`,
		className, objectID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	return nil
}

func (s *Store) BulkInsert(ctx context.Context, className string, fields []map[string]models.Value) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, len(fields))
	inferred := make(map[string]models.FieldType)
	for i, f := range fields {
		rec, err := s.insertLocked(ctx, tx, className, f)
		if err != nil {
			return nil, err
		}
		ids[i] = rec.ObjectID
		for name, t := range models.InferTypes(f) {
			if _, seen := inferred[name]; !seen {
				inferred[name] = t
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if err := s.mergeClassFields(ctx, className, inferred); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) Count(ctx context.Context, className string, preds []filter.Predicate) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exprs, residual := compilePreds(preds)
	if !residual {
		var sb strings.Builder
		sb.WriteString(`SELECT COUNT(*) FROM records WHERE class_name = ?`)
		args := []any{className}
		for _, e := range exprs {
			sb.WriteString(" AND ")
			sb.WriteString(e.expr)
			args = append(args, e.args...)
		}
		var n int64
		if err := s.db.QueryRowContext(ctx, sb.String(), args...).Scan(&n); err != nil {
			return 0, err
		}
		return n, nil
	}

	var sb strings.Builder
	sb.WriteString(`SELECT object_id, fields, created_at, updated_at FROM records WHERE class_name = ?`)
	args := []any{className}
	for _, e := range exprs {
		sb.WriteString(" AND ")
		sb.WriteString(e.expr)
		args = append(args, e.args...)
	}
	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		var (
			objectID, raw        string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&objectID, &raw, &createdAt, &updatedAt); err != nil {
			return 0, err
		}
		rec, err := rowToRecord(objectID, raw, createdAt, updatedAt)
		if err != nil {
			return 0, err
		}
		if store.MatchesPredicates(rec, preds) {
			n++
		}
	}
	return n, rows.Err()
}

func (s *Store) DefineClass(ctx context.Context, className string, fields map[string]models.FieldType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeClassFields(ctx, className, fields)
}

// mergeClassFields records newly seen field types for a class, creating the
// class row on first contact. A field's first recorded type sticks.
func (s *Store) mergeClassFields(ctx context.Context, className string, add map[string]models.FieldType) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM classes WHERE name = ?`, className).Scan(&raw)
	if err == sql.ErrNoRows {
		b, err := json.Marshal(add)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO classes (name, fields) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
			className, string(b),
		)
		return err
	}
	if err != nil {
		return err
	}

	known := make(map[string]models.FieldType)
	if err := json.Unmarshal([]byte(raw), &known); err != nil {
		return fmt.Errorf("class %s: %w", className, err)
	}
	changed := false
	for name, t := range add {
		if _, seen := known[name]; seen {
			continue
		}
		known[name] = t
		changed = true
	}
	if !changed {
		return nil
	}
	b, err := json.Marshal(known)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE classes SET fields = ? WHERE name = ?`, string(b), className)
	return err
}

func (s *Store) ListClasses(ctx context.Context) ([]models.ClassSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name, fields FROM classes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ClassSchema{}
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		fields := make(map[string]models.FieldType)
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("class %s: %w", name, err)
		}
		out = append(out, models.ClassSchema{Name: name, Fields: fields})
	}
	return out, rows.Err()
}

func (s *Store) GetClassFields(ctx context.Context, className string) (*models.ClassSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM classes WHERE name = ?`, className).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", store.ErrClassNotFound, className)
	}
	if err != nil {
		return nil, err
	}
	fields := make(map[string]models.FieldType)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("class %s: %w", className, err)
	}
	return &models.ClassSchema{Name: className, Fields: fields}, nil
}

func (s *Store) PurgeClass(ctx context.Context, className string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM classes WHERE name = ?`, className).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", store.ErrClassNotFound, className)
	}
	if err != nil {
		return err
	}

	var held int64
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE class_name = ?`, className).Scan(&held)
	if err != nil {
		return err
	}
	if held > 0 {
		return fmt.Errorf("%w: %s", store.ErrClassNotEmpty, className)
	}

	// Walk every stored value tree for a pointer into this class. The two
	// json_tree scans of one document share node ids, so matching parents
	// pins __type and className to the same object.
	var referencedBy string
	err = s.db.QueryRowContext(ctx, `
		SELECT r.class_name
		FROM records r, json_tree(r.fields) a, json_tree(r.fields) b
		WHERE r.class_name != ?
		  AND a.parent = b.parent
		  AND a.key = '__type' AND a.value = 'Pointer'
		  AND b.key = 'className' AND b.value = ?
		LIMIT 1`,
		className, className,
	).Scan(&referencedBy)
	if err == nil {
		return fmt.Errorf("%w: %s is referenced by %s", store.ErrClassReferenced, className, referencedBy)
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM classes WHERE name = ?`, className)
	return err
}
