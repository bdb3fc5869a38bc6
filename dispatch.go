package anyclass

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"

	"github.com/anyclass/anyclass/pkg/store"
)

// Operation names a dispatchable request.
type Operation string

const (
	OpCreateTable        Operation = "createTable"
	OpListTables         Operation = "listTables"
	OpGetTableSchema     Operation = "getTableSchema"
	OpDeleteTable        Operation = "deleteTable"
	OpCreateRecord       Operation = "createRecord"
	OpReadTable          Operation = "readTable"
	OpUpdateRecord       Operation = "updateRecord"
	OpDeleteRecord       Operation = "deleteRecord"
	OpBatchCreateRecords Operation = "batchCreateRecords"
	OpCountRecords       Operation = "countRecords"
	OpGetServerInfo      Operation = "getServerInfo"
	OpHealthCheck        Operation = "healthCheck"
)

var allOperations = []Operation{
	OpCreateTable, OpListTables, OpGetTableSchema, OpDeleteTable,
	OpCreateRecord, OpReadTable, OpUpdateRecord, OpDeleteRecord,
	OpBatchCreateRecords, OpCountRecords,
	OpGetServerInfo, OpHealthCheck,
}

// Operations returns every operation name the dispatcher accepts.
func Operations() []Operation {
	out := make([]Operation, len(allOperations))
	copy(out, allOperations)
	return out
}

// requiredParams declares, per operation, the parameters whose absence
// fails the request before any engine access. Order fixes which missing
// parameter gets reported.
var requiredParams = map[Operation][]string{
	OpCreateTable:        {"className"},
	OpListTables:         {},
	OpGetTableSchema:     {"className"},
	OpDeleteTable:        {"className"},
	OpCreateRecord:       {"className", "data"},
	OpReadTable:          {"className"},
	OpUpdateRecord:       {"className", "objectId", "data"},
	OpDeleteRecord:       {"className", "objectId"},
	OpBatchCreateRecords: {"className", "records"},
	OpCountRecords:       {"className"},
	OpGetServerInfo:      {},
	OpHealthCheck:        {},
}

// failurePrefix is prepended to every error a store-touching operation
// raises. The wrapped error keeps its kind and message.
var failurePrefix = map[Operation]string{
	OpCreateTable:        "Failed to create table",
	OpListTables:         "Failed to list tables",
	OpGetTableSchema:     "Failed to get table schema",
	OpDeleteTable:        "Failed to delete table",
	OpCreateRecord:       "Failed to create record",
	OpReadTable:          "Failed to read table",
	OpUpdateRecord:       "Failed to update record",
	OpDeleteRecord:       "Failed to delete record",
	OpBatchCreateRecords: "Failed to batch create records",
	OpCountRecords:       "Failed to count records",
}

// Dispatcher validates parameters, routes operations to the schema registry
// or the record access layer, and folds results and errors into the
// envelope shape.
type Dispatcher struct {
	registry *Registry
	records  *Records
	log      zerolog.Logger
	version  string
	legacy   bool
	lenient  bool
}

// New wires a dispatcher, registry and record access layer over one engine.
func New(st store.Store, opts ...Option) *Dispatcher {
	o := applyOptions(opts)
	return &Dispatcher{
		registry: &Registry{store: st, log: o.logger, legacySeed: o.legacySeedRecord},
		records:  &Records{store: st, log: o.logger, lenient: o.lenientFilters},
		log:      o.logger,
		version:  o.version,
		legacy:   o.legacySeedRecord,
		lenient:  o.lenientFilters,
	}
}

// Registry exposes the schema registry sharing this dispatcher's engine and
// settings.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Records exposes the record access layer sharing this dispatcher's engine
// and settings.
func (d *Dispatcher) Records() *Records { return d.records }

// Store exposes the engine this dispatcher runs over. Transports use it to
// serve the engine itself to remote clients.
func (d *Dispatcher) Store() store.Store { return d.registry.store }

// Dispatch runs one named operation. The envelope is always populated; on
// failure it carries the error message and the error itself is returned for
// transports that need to map it to a status.
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation, params map[string]any) (Envelope, error) {
	start := time.Now()
	payload, err := d.run(ctx, op, params)
	d.observe(op, time.Since(start), err)
	if err != nil {
		return Fail(err), err
	}
	return OK(payload), nil
}

func (d *Dispatcher) observe(op Operation, elapsed time.Duration, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`anyclass_operations_total{operation=%q}`, op)).Inc()
	metrics.GetOrCreateSummary(fmt.Sprintf(`anyclass_operation_duration_seconds{operation=%q}`, op)).Update(elapsed.Seconds())

	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`anyclass_operation_failures_total{operation=%q}`, op)).Inc()
		d.log.Error().Err(err).Str("operation", string(op)).Dur("elapsed", elapsed).Msg("operation failed")
		return
	}
	d.log.Info().Str("operation", string(op)).Dur("elapsed", elapsed).Msg("operation completed")
}

func (d *Dispatcher) run(ctx context.Context, op Operation, params map[string]any) (map[string]any, error) {
	switch op {
	case OpGetServerInfo:
		return d.serverInfo(), nil
	case OpHealthCheck:
		return healthPayload(), nil
	}

	prefix, known := failurePrefix[op]
	if !known {
		return nil, newValidationError("unknown operation %q", op)
	}
	if err := requireParams(op, params); err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	payload, err := d.call(ctx, op, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prefix, err)
	}
	return payload, nil
}

func (d *Dispatcher) call(ctx context.Context, op Operation, params map[string]any) (map[string]any, error) {
	switch op {
	case OpCreateTable:
		return d.createTable(ctx, params)
	case OpListTables:
		return d.listTables(ctx)
	case OpGetTableSchema:
		return d.getTableSchema(ctx, params)
	case OpDeleteTable:
		return d.deleteTable(ctx, params)
	case OpCreateRecord:
		return d.createRecord(ctx, params)
	case OpReadTable:
		return d.readTable(ctx, params)
	case OpUpdateRecord:
		return d.updateRecord(ctx, params)
	case OpDeleteRecord:
		return d.deleteRecord(ctx, params)
	case OpBatchCreateRecords:
		return d.batchCreateRecords(ctx, params)
	case OpCountRecords:
		return d.countRecords(ctx, params)
	}
	return nil, newValidationError("unknown operation %q", op)
}

func (d *Dispatcher) createTable(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	schema, err := objectParam(params, "schema")
	if err != nil {
		return nil, err
	}
	if err := d.registry.CreateTable(ctx, className, schema); err != nil {
		return nil, err
	}
	return map[string]any{
		"className": className,
		"message":   fmt.Sprintf("Table %s created successfully", className),
	}, nil
}

func (d *Dispatcher) listTables(ctx context.Context) (map[string]any, error) {
	tables, err := d.registry.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables, "count": len(tables)}, nil
}

func (d *Dispatcher) getTableSchema(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	schema, err := d.registry.GetTableSchema(ctx, className)
	if err != nil {
		return nil, err
	}
	return map[string]any{"className": schema.Name, "fields": schema.Fields}, nil
}

func (d *Dispatcher) deleteTable(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	if err := d.registry.DeleteTable(ctx, className); err != nil {
		return nil, err
	}
	return map[string]any{
		"message": fmt.Sprintf("Table %s deleted successfully", className),
	}, nil
}

func (d *Dispatcher) createRecord(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	data, err := objectParam(params, "data")
	if err != nil {
		return nil, err
	}
	rec, err := d.records.Create(ctx, className, data)
	if err != nil {
		return nil, err
	}
	return map[string]any{"objectId": rec.ObjectID, "data": rec.Any()}, nil
}

func (d *Dispatcher) readTable(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	filters, err := objectParam(params, "filters")
	if err != nil {
		return nil, err
	}
	limit, err := intParam(params, "limit")
	if err != nil {
		return nil, err
	}
	skip, err := intParam(params, "skip")
	if err != nil {
		return nil, err
	}

	recs, err := d.records.Read(ctx, className, filters, limit, skip)
	if err != nil {
		return nil, err
	}
	data := make([]map[string]any, len(recs))
	for i, rec := range recs {
		data[i] = rec.Any()
	}
	return map[string]any{"className": className, "count": len(recs), "data": data}, nil
}

func (d *Dispatcher) updateRecord(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	objectID, err := stringParam(params, "objectId")
	if err != nil {
		return nil, err
	}
	data, err := objectParam(params, "data")
	if err != nil {
		return nil, err
	}
	rec, err := d.records.Update(ctx, className, objectID, data)
	if err != nil {
		return nil, err
	}
	return map[string]any{"objectId": rec.ObjectID, "data": rec.Any()}, nil
}

func (d *Dispatcher) deleteRecord(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	objectID, err := stringParam(params, "objectId")
	if err != nil {
		return nil, err
	}
	if err := d.records.Delete(ctx, className, objectID); err != nil {
		return nil, err
	}
	return map[string]any{"objectId": objectID, "message": "Record deleted successfully"}, nil
}

func (d *Dispatcher) batchCreateRecords(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	entries, err := listParam(params, "records")
	if err != nil {
		return nil, err
	}
	ids, err := d.records.BatchCreate(ctx, className, entries)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(ids), "objectIds": ids}, nil
}

func (d *Dispatcher) countRecords(ctx context.Context, params map[string]any) (map[string]any, error) {
	className, err := stringParam(params, "className")
	if err != nil {
		return nil, err
	}
	filters, err := objectParam(params, "filters")
	if err != nil {
		return nil, err
	}
	n, err := d.records.Count(ctx, className, filters)
	if err != nil {
		return nil, err
	}
	return map[string]any{"className": className, "count": n}, nil
}

func requireParams(op Operation, params map[string]any) error {
	for _, name := range requiredParams[op] {
		if v, ok := params[name]; !ok || v == nil {
			return newValidationError("missing required parameter %q", name)
		}
	}
	return nil
}

func stringParam(params map[string]any, name string) (string, error) {
	s, ok := params[name].(string)
	if !ok || s == "" {
		return "", newValidationError("parameter %q must be a non-empty string", name)
	}
	return s, nil
}

// objectParam reads an optional object parameter; absent means nil. For
// required object parameters the presence check has already run.
func objectParam(params map[string]any, name string) (map[string]any, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := asObject(raw)
	if !ok {
		return nil, newValidationError("parameter %q must be an object", name)
	}
	return obj, nil
}

func listParam(params map[string]any, name string) ([]any, error) {
	if v, ok := params[name].([]any); ok {
		return v, nil
	}
	return nil, newValidationError("parameter %q must be an array", name)
}

// intParam reads an optional integer parameter; absent means zero. Decoders
// deliver numbers in different Go types depending on the transport.
func intParam(params map[string]any, name string) (int, error) {
	raw, ok := params[name]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, newValidationError("parameter %q must be an integer", name)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, newValidationError("parameter %q must be an integer", name)
		}
		return int(n), nil
	}
	return 0, newValidationError("parameter %q must be an integer", name)
}
