// Package store defines the capability interface the access layer consumes
// to reach a document-store engine, together with the error sentinels every
// engine reports through and the reference predicate evaluation the
// in-process engines share.
package store

import (
	"context"
	"errors"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
)

// Engine error sentinels. Adapters normalize their native failures onto
// these so callers can match with errors.Is regardless of the engine.
var (
	// ErrClassNotFound reports an operation against an undefined class.
	ErrClassNotFound = errors.New("class not found")
	// ErrObjectNotFound reports a lookup of an objectId the class does not hold.
	ErrObjectNotFound = errors.New("object not found")
	// ErrClassNotEmpty reports a purge of a class that still holds records.
	ErrClassNotEmpty = errors.New("class still holds records")
	// ErrClassReferenced reports a purge of a class that records of other
	// classes still point into.
	ErrClassReferenced = errors.New("class is referenced by another class")
)

// Store is the document-store capability. Implementations are safe for
// concurrent use.
//
// Class lifecycle is implicit on the write path: Insert and BulkInsert
// materialize an undefined class and extend its field mapping with the types
// inferred from the written values. DefineClass declares or extends a class
// without writing records.
//
// Query and Count evaluate a flat predicate conjunction; a record missing a
// predicate's field never matches it. Query orders results by creation time,
// then objectId, and applies skip before limit; limit <= 0 means no limit,
// and a skip beyond the result set yields an empty page. Count ignores
// pagination entirely.
//
// Update replaces the record's whole field mapping; merge semantics belong
// to the caller. PurgeClass removes the class definition and fails with
// ErrClassNotEmpty while records remain, or with ErrClassReferenced while
// records of other classes hold references into the class.
type Store interface {
	Insert(ctx context.Context, className string, fields map[string]models.Value) (*models.Record, error)
	GetByID(ctx context.Context, className, objectID string) (*models.Record, error)
	Query(ctx context.Context, className string, preds []filter.Predicate, limit, skip int) ([]*models.Record, error)
	Update(ctx context.Context, className, objectID string, fields map[string]models.Value) (*models.Record, error)
	Delete(ctx context.Context, className, objectID string) error
	BulkInsert(ctx context.Context, className string, fields []map[string]models.Value) ([]string, error)
	Count(ctx context.Context, className string, preds []filter.Predicate) (int64, error)

	DefineClass(ctx context.Context, className string, fields map[string]models.FieldType) error
	ListClasses(ctx context.Context) ([]models.ClassSchema, error)
	GetClassFields(ctx context.Context, className string) (*models.ClassSchema, error)
	PurgeClass(ctx context.Context, className string) error

	Close() error
}
