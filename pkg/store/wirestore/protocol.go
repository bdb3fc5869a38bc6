// Package wirestore is the engine adapter for a remote datastore reached
// over a WebSocket RPC connection. Requests carry a generated id, a method
// name and positional parameters; responses echo the id and carry either a
// result or an error with a numeric code. Records, schemas and predicates
// travel in their interchange forms, so the same protocol works over the
// JSON and CBOR codecs.
package wirestore

import (
	"errors"
	"fmt"

	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// Engine method names.
const (
	MethodInsert         = "insert"
	MethodGetByID        = "getById"
	MethodQuery          = "query"
	MethodUpdate         = "update"
	MethodDelete         = "delete"
	MethodBulkInsert     = "bulkInsert"
	MethodCount          = "count"
	MethodDefineClass    = "defineClass"
	MethodListClasses    = "listClasses"
	MethodGetClassFields = "getClassFields"
	MethodPurgeClass     = "purgeClass"
)

// Request is one RPC call.
type Request struct {
	ID     string `json:"id" cbor:"id"`
	Method string `json:"method" cbor:"method"`
	Params []any  `json:"params,omitempty" cbor:"params,omitempty"`
}

// Response answers exactly one Request, matched by ID.
type Response struct {
	ID     any    `json:"id,omitempty" cbor:"id,omitempty"`
	Error  *Error `json:"error,omitempty" cbor:"error,omitempty"`
	Result any    `json:"result,omitempty" cbor:"result,omitempty"`
}

// Error codes. The negative range follows the JSON-RPC convention for
// protocol-level failures; the positive range carries the engine's own
// conditions.
const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeClassNotFound   = 1001
	CodeObjectNotFound  = 1002
	CodeClassReferenced = 1003
	CodeClassNotEmpty   = 1004
)

// Error is the wire form of an engine failure.
type Error struct {
	Code    int    `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrorFor folds an engine error into its wire form. Servers use it.
func ErrorFor(err error) *Error {
	var wireErr *Error
	if errors.As(err, &wireErr) {
		return wireErr
	}
	code := CodeInternal
	switch {
	case errors.Is(err, store.ErrClassNotFound):
		code = CodeClassNotFound
	case errors.Is(err, store.ErrObjectNotFound):
		code = CodeObjectNotFound
	case errors.Is(err, store.ErrClassReferenced):
		code = CodeClassReferenced
	case errors.Is(err, store.ErrClassNotEmpty):
		code = CodeClassNotEmpty
	}
	return &Error{Code: code, Message: err.Error()}
}

// remoteErr keeps the server's message while matching the local sentinel
// under errors.Is.
type remoteErr struct {
	msg      string
	sentinel error
}

func (e *remoteErr) Error() string { return e.msg }
func (e *remoteErr) Unwrap() error { return e.sentinel }

// storeError resolves a wire error into the engine error taxonomy. Clients
// use it.
func (e *Error) storeError() error {
	var sentinel error
	switch e.Code {
	case CodeClassNotFound:
		sentinel = store.ErrClassNotFound
	case CodeObjectNotFound:
		sentinel = store.ErrObjectNotFound
	case CodeClassReferenced:
		sentinel = store.ErrClassReferenced
	case CodeClassNotEmpty:
		sentinel = store.ErrClassNotEmpty
	default:
		return e
	}
	return &remoteErr{msg: e.Message, sentinel: sentinel}
}

// PredicatesToWire serializes compiled predicates for transport.
func PredicatesToWire(preds []filter.Predicate) []any {
	out := make([]any, len(preds))
	for i, p := range preds {
		out[i] = map[string]any{
			"field": p.Field,
			"op":    p.Op.Key(),
			"value": p.Value.Any(),
		}
	}
	return out
}

// PredicatesFromWire parses the wire form back into predicates.
func PredicatesFromWire(raw any) ([]filter.Predicate, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("predicates: expected array, got %T", raw)
	}
	preds := make([]filter.Predicate, len(items))
	for i, item := range items {
		obj, err := asWireObject(item)
		if err != nil {
			return nil, fmt.Errorf("predicates[%d]: %w", i, err)
		}
		field, _ := obj["field"].(string)
		if field == "" {
			return nil, fmt.Errorf("predicates[%d]: missing field", i)
		}
		key, _ := obj["op"].(string)
		op, ok := filter.OpForKey(key)
		if !ok {
			return nil, fmt.Errorf("predicates[%d]: unknown operator key %q", i, key)
		}
		value, err := models.FromAny(obj["value"])
		if err != nil {
			return nil, fmt.Errorf("predicates[%d]: %w", i, err)
		}
		preds[i] = filter.Predicate{Field: field, Op: op, Value: value}
	}
	return preds, nil
}

// SchemaToWire serializes a class schema for transport.
func SchemaToWire(s *models.ClassSchema) map[string]any {
	fields := make(map[string]any, len(s.Fields))
	for name, t := range s.Fields {
		fields[name] = string(t)
	}
	return map[string]any{"className": s.Name, "fields": fields}
}

// SchemaFromWire parses the wire form of a class schema.
func SchemaFromWire(raw any) (*models.ClassSchema, error) {
	obj, err := asWireObject(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	name, _ := obj["className"].(string)
	if name == "" {
		return nil, errors.New("schema: missing className")
	}
	out := &models.ClassSchema{Name: name, Fields: map[string]models.FieldType{}}
	if rawFields := obj["fields"]; rawFields != nil {
		fields, err := asWireObject(rawFields)
		if err != nil {
			return nil, fmt.Errorf("schema fields: %w", err)
		}
		for fname, rawType := range fields {
			s, ok := rawType.(string)
			if !ok {
				return nil, fmt.Errorf("schema field %q: expected type name, got %T", fname, rawType)
			}
			t, err := models.ParseFieldType(s)
			if err != nil {
				return nil, fmt.Errorf("schema field %q: %w", fname, err)
			}
			out.Fields[fname] = t
		}
	}
	return out, nil
}

// asWireObject accepts the map shapes the two codecs decode into.
func asWireObject(raw any) (map[string]any, error) {
	switch m := raw.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			s, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			out[s] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected object, got %T", raw)
}
