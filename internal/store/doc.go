// Package store provides the durable table store behind the connection
// registry and pairing table.
//
// # Architecture
//
// The broker holds no state between events; every decision is reconstructed
// from this store. Three tables back it: clients, gatekeepers, and pairings.
// Connection records are keyed by connection id, pairings by the
// (client_connection_id, gatekeeper_connection_id) tuple.
//
// Two durable implementations share the Store interface:
//
//   - DynamoStore: DynamoDB via aws-sdk-go-v2. Registration uses an
//     attribute_not_exists condition expression; counterpart lookups go
//     through the name-index and gatekeeper-index GSIs; physical expiry is
//     DynamoDB's native TTL on the expire_at attribute.
//   - SQLiteStore: single-node backend on modernc.org/sqlite (WAL mode).
//     A background goroutine sweeps expired rows once a minute, standing in
//     for the managed backend's automatic TTL deletion.
//
// Because physical expiry lags in both backends, queries may return records
// whose ExpireAt has passed. The registry and pairing layers filter these;
// the store does not.
//
// # Consistency
//
// Only per-key atomicity is assumed: conditional single-key puts, no
// multi-key transactions. Cross-record invariants (a pairing referencing two
// live connections) are restored reactively by the broker, with ExpireAt as
// the backstop for anything cleanup misses.
//
// # Errors
//
//   - ErrNotFound: requested record does not exist
//   - ErrConditionFailed: conditional put lost to an existing record
//
// # Testing
//
// Use NewMockStore() for unit tests; it honors the same contract, including
// returning expired records from queries. Set FailWith to exercise
// transient-failure paths. Use NewSQLiteStore with t.TempDir() for
// integration tests against a real backend.
package store
