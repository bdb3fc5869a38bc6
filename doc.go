// The [anyclass] package implements a schema-flexible document API in the Go way.
//
// Records live in named classes. A class needs no upfront declaration: the
// first write that names it materializes it, and the field types are
// inferred from the values as they arrive. Every record carries a
// store-assigned objectId plus creation and update timestamps.
//
// # Dispatcher
//
// [New] wires the three layers over one engine: the [Registry] for schema
// operations, [Records] for record operations, and the [Dispatcher] that
// routes named operations such as "createRecord" or "listTables" and folds
// every result into the uniform [Envelope] shape. Transports only ever talk
// to [Dispatcher.Dispatch].
//
// # Engines
//
// Persistence sits behind the [github.com/anyclass/anyclass/pkg/store]
// capability interface. The module ships four engines: in-memory
// ([github.com/anyclass/anyclass/pkg/store/memstore]), SQLite
// ([github.com/anyclass/anyclass/pkg/store/sqlitestore]), PostgreSQL
// ([github.com/anyclass/anyclass/pkg/store/pgstore]) and a WebSocket client
// for a remote engine ([github.com/anyclass/anyclass/pkg/store/wirestore]).
//
// # Filters
//
// Reads and counts accept a flat filter mapping compiled by
// [github.com/anyclass/anyclass/pkg/filter]: a field maps either to a
// literal (equality) or to an operator object combining gt, lt, gte, lte,
// ne and in. All predicates conjoin; there is no OR.
//
// # Errors
//
// Every failure is one of [ValidationError], [NotFoundError] or
// [StoreError], wrapped with the failing operation's message prefix. Use
// [errors.As] to recover the kind.
package anyclass
