// Package core is the table gateway's domain layer: catalog access, dynamic
// statement assembly and the transactional bulk-write protocol.
//
// It knows nothing about HTTP. Web handlers, tests and tools drive it through
// [Service], which wraps any [DB] (a *pgxpool.Pool in production, a pgxmock
// pool in tests).
//
// # Records
//
// A [Record] is an ordered list of column/value pairs decoded from a JSON
// object. Key order matters: inserts derive their column list from the first
// record of a batch, and updates bind match values in key order.
//
// # Statements
//
// Every SQL text is produced by the statement builder. Identifiers pass
// through a single quoting function governed by an [IdentifierPolicy]; values
// are always bound as positional parameters.
//
// # Bulk writes
//
// [Service.InsertBatch] and [Service.UpdateBatch] run one transaction per
// call. Rows execute in order on a single pooled connection; the first
// failure rolls everything back and is reported as an [ExecutionError]
// naming the zero-based row index. Validation happens before the transaction
// begins and is reported as a [ValidationError].
//
// # Error Codes
//
// [MapError] classifies engine and request errors for the logs:
//
//   - DB001-DB010: engine errors keyed by SQLSTATE
//   - REQ001-REQ002: request cancellation and deadlines
//   - ERR000: anything else
package core
