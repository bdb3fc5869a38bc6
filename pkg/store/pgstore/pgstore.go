// Package pgstore is the document-store engine on PostgreSQL through GORM.
// Fields live in a jsonb column; predicates render onto the jsonb operator
// surface where that is exact and fall back to in-process evaluation where
// it is not. A bigserial column carries creation order, since same-
// millisecond timestamps cannot.
package pgstore

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// insertBatchSize caps the rows per INSERT during bulk loads.
const insertBatchSize = 500

// JSONMap adapts a decoded JSON object to a jsonb column.
type JSONMap map[string]any

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(j))
}

func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("jsonb column: unexpected %T", value)
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, j)
}

type classRow struct {
	Name   string  `gorm:"primaryKey"`
	Fields JSONMap `gorm:"type:jsonb;not null"`
}

func (classRow) TableName() string { return "anyclass_classes" }

type recordRow struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement"`
	ClassName string    `gorm:"uniqueIndex:idx_anyclass_records_identity;not null"`
	ObjectID  string    `gorm:"uniqueIndex:idx_anyclass_records_identity;not null"`
	Fields    JSONMap   `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (recordRow) TableName() string { return "anyclass_records" }

// Store is a PostgreSQL-backed engine. Construct one with Open.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&classRow{}, &recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Reset truncates every class and record. Test setups call it between runs.
func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Exec("TRUNCATE anyclass_records, anyclass_classes RESTART IDENTITY").Error
}

func rowToRecord(row *recordRow) (*models.Record, error) {
	fields, err := models.FromAnyMap(map[string]any(row.Fields))
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", row.ObjectID, err)
	}
	return &models.Record{
		ObjectID:  row.ObjectID,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Fields:    fields,
	}, nil
}

// mergeClassFields upserts newly seen field types. The jsonb concatenation
// keeps the stored side on key conflicts, so a field's first recorded type
// sticks even under concurrent writers.
func mergeClassFields(tx *gorm.DB, className string, add map[string]models.FieldType) error {
	fields := make(JSONMap, len(add))
	for name, t := range add {
		fields[name] = string(t)
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"fields": gorm.Expr("EXCLUDED.fields || anyclass_classes.fields"),
		}),
	}).Create(&classRow{Name: className, Fields: fields}).Error
}

func (s *Store) Insert(ctx context.Context, className string, fields map[string]models.Value) (*models.Record, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &models.Record{
		ObjectID:  uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    fields,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &recordRow{
			ClassName: className,
			ObjectID:  rec.ObjectID,
			Fields:    JSONMap(models.AnyMap(fields)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return mergeClassFields(tx, className, models.InferTypes(fields))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) GetByID(ctx context.Context, className, objectID string) (*models.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		First(&row, "class_name = ? AND object_id = ?", className, objectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	if err != nil {
		return nil, err
	}
	return rowToRecord(&row)
}

func (s *Store) Query(ctx context.Context, className string, preds []filter.Predicate, limit, skip int) ([]*models.Record, error) {
	exprs, residual := compilePreds(preds)

	q := s.db.WithContext(ctx).Model(&recordRow{}).Where("class_name = ?", className)
	for _, e := range exprs {
		q = q.Where(e.expr, e.args...)
	}
	q = q.Order("seq")
	if !residual {
		if skip < 0 {
			skip = 0
		}
		if limit > 0 {
			q = q.Limit(limit)
		}
		q = q.Offset(skip)
	}

	var rows []recordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	matched := []*models.Record{}
	for i := range rows {
		rec, err := rowToRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		if residual && !store.MatchesPredicates(rec, preds) {
			continue
		}
		matched = append(matched, rec)
	}
	if residual {
		matched = store.Window(matched, limit, skip)
	}
	return matched, nil
}

func (s *Store) Update(ctx context.Context, className, objectID string, fields map[string]models.Value) (*models.Record, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	var createdAt time.Time
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row recordRow
		err := tx.First(&row, "class_name = ? AND object_id = ?", className, objectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
		}
		if err != nil {
			return err
		}
		createdAt = row.CreatedAt.UTC()

		err = tx.Model(&recordRow{}).
			Where("class_name = ? AND object_id = ?", className, objectID).
			Updates(map[string]any{
				"fields":     JSONMap(models.AnyMap(fields)),
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}
		return mergeClassFields(tx, className, models.InferTypes(fields))
	})
	if err != nil {
		return nil, err
	}
	return &models.Record{
		ObjectID:  objectID,
		CreatedAt: createdAt,
		UpdatedAt: now,
		Fields:    fields,
	}, nil
}

func (s *Store) Delete(ctx context.Context, className, objectID string) error {
	res := s.db.WithContext(ctx).
		Delete(&recordRow{}, "class_name = ? AND object_id = ?", className, objectID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", store.ErrObjectNotFound, className, objectID)
	}
	return nil
}

func (s *Store) BulkInsert(ctx context.Context, className string, fields []map[string]models.Value) ([]string, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ids := make([]string, len(fields))
	rows := make([]recordRow, len(fields))
	inferred := make(map[string]models.FieldType)
	for i, f := range fields {
		ids[i] = uuid.NewString()
		rows[i] = recordRow{
			ClassName: className,
			ObjectID:  ids[i],
			Fields:    JSONMap(models.AnyMap(f)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		for name, t := range models.InferTypes(f) {
			if _, seen := inferred[name]; !seen {
				inferred[name] = t
			}
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return mergeClassFields(tx, className, inferred)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) Count(ctx context.Context, className string, preds []filter.Predicate) (int64, error) {
	exprs, residual := compilePreds(preds)
	if !residual {
		q := s.db.WithContext(ctx).Model(&recordRow{}).Where("class_name = ?", className)
		for _, e := range exprs {
			q = q.Where(e.expr, e.args...)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return 0, err
		}
		return n, nil
	}

	recs, err := s.Query(ctx, className, preds, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

func (s *Store) DefineClass(ctx context.Context, className string, fields map[string]models.FieldType) error {
	return mergeClassFields(s.db.WithContext(ctx), className, fields)
}

func schemaFields(m JSONMap) (map[string]models.FieldType, error) {
	out := make(map[string]models.FieldType, len(m))
	for name, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: expected type name, got %T", name, v)
		}
		t, err := models.ParseFieldType(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

func (s *Store) ListClasses(ctx context.Context) ([]models.ClassSchema, error) {
	var rows []classRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.ClassSchema, 0, len(rows))
	for _, row := range rows {
		fields, err := schemaFields(row.Fields)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", row.Name, err)
		}
		out = append(out, models.ClassSchema{Name: row.Name, Fields: fields})
	}
	return out, nil
}

func (s *Store) GetClassFields(ctx context.Context, className string) (*models.ClassSchema, error) {
	var row classRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", className).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", store.ErrClassNotFound, className)
	}
	if err != nil {
		return nil, err
	}
	fields, err := schemaFields(row.Fields)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", className, err)
	}
	return &models.ClassSchema{Name: className, Fields: fields}, nil
}

// referencePath matches any value in a document tree that is a pointer into
// the class bound as $cn.
const referencePath = `$.** ? (@."__type" == "Pointer" && @."className" == $cn)`

func (s *Store) PurgeClass(ctx context.Context, className string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row classRow
		err := tx.First(&row, "name = ?", className).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", store.ErrClassNotFound, className)
		}
		if err != nil {
			return err
		}

		var held int64
		if err := tx.Model(&recordRow{}).Where("class_name = ?", className).Count(&held).Error; err != nil {
			return err
		}
		if held > 0 {
			return fmt.Errorf("%w: %s", store.ErrClassNotEmpty, className)
		}

		var referencedBy []string
		err = tx.Model(&recordRow{}).
			Where("class_name <> ?", className).
			Where("jsonb_path_exists(fields, ?::jsonpath, jsonb_build_object('cn', ?::text))", referencePath, className).
			Limit(1).
			Pluck("class_name", &referencedBy).Error
		if err != nil {
			return err
		}
		if len(referencedBy) > 0 {
			return fmt.Errorf("%w: %s is referenced by %s", store.ErrClassReferenced, className, referencedBy[0])
		}

		return tx.Delete(&classRow{}, "name = ?", className).Error
	})
}
