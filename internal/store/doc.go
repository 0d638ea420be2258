// Package store is the SQLite storage engine behind the contacts provider.
//
// It exposes the four synchronous primitives the provider consumes:
//
//   - ExecuteQuery(table, projection, selection, args, sort) -> *ResultSet
//   - ExecuteInsert(table, values) -> new primary key
//   - ExecuteUpdate(table, values, selection, args) -> rows affected
//   - ExecuteDelete(table, selection, args) -> rows affected
//
// SQL text is produced by internal/querysql; every value is bound.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - one open connection: SQLite has a single writer, and an in-memory
//     database only exists on the connection that created it
//
// The contacts table is created on first open and PRAGMA user_version
// records the schema version.
package store
