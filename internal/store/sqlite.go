// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Single-node durable table store with a background expiry sweep

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sweepInterval is how often expired rows are physically removed. Lookups
// filter on expire_at regardless, so sweep latency is not correctness-relevant.
const sweepInterval = time.Minute

// SQLiteStore implements the Store interface using SQLite. It is the
// single-node backend; the expiry sweep the managed table stores do
// automatically runs here as a background goroutine.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	done   chan struct{}
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	go s.sweep()

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS clients (
			connection_id TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			connected_at  INTEGER NOT NULL,
			expire_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(name);

		CREATE TABLE IF NOT EXISTS gatekeepers (
			connection_id TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			connected_at  INTEGER NOT NULL,
			expire_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_gatekeepers_name ON gatekeepers(name);

		CREATE TABLE IF NOT EXISTS pairings (
			client_connection_id     TEXT NOT NULL,
			gatekeeper_connection_id TEXT NOT NULL,
			name                     TEXT NOT NULL,
			paired_at                INTEGER NOT NULL,
			expire_at                INTEGER NOT NULL,

			PRIMARY KEY (client_connection_id, gatekeeper_connection_id)
		);

		CREATE INDEX IF NOT EXISTS idx_pairings_gatekeeper
			ON pairings(gatekeeper_connection_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// connTable maps a role to its table name.
func connTable(role Role) string {
	if role == RoleClient {
		return "clients"
	}
	return "gatekeepers"
}

// PutConnection inserts a connection record. With ifAbsent set, an existing
// record with the same connection id makes the write fail with
// ErrConditionFailed instead of being overwritten.
func (s *SQLiteStore) PutConnection(ctx context.Context, rec *ConnectionRecord, ifAbsent bool) error {
	table := connTable(rec.Role)

	if ifAbsent {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO `+table+` (connection_id, name, connected_at, expire_at)
			 VALUES (?, ?, ?, ?)`,
			rec.ConnectionID, rec.Name, rec.ConnectedAt, rec.ExpireAt)
		if err != nil {
			return fmt.Errorf("inserting connection: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking insert result: %w", err)
		}
		if n == 0 {
			return ErrConditionFailed
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (connection_id, name, connected_at, expire_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(connection_id) DO UPDATE SET
			name = excluded.name,
			expire_at = excluded.expire_at`,
		rec.ConnectionID, rec.Name, rec.ConnectedAt, rec.ExpireAt)
	if err != nil {
		return fmt.Errorf("upserting connection: %w", err)
	}
	return nil
}

// GetConnection retrieves a connection record by role and id.
func (s *SQLiteStore) GetConnection(ctx context.Context, role Role, connectionID string) (*ConnectionRecord, error) {
	rec := &ConnectionRecord{Role: role}
	err := s.db.QueryRowContext(ctx,
		`SELECT connection_id, name, connected_at, expire_at
		 FROM `+connTable(role)+` WHERE connection_id = ?`,
		connectionID).Scan(&rec.ConnectionID, &rec.Name, &rec.ConnectedAt, &rec.ExpireAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	return rec, nil
}

// DeleteConnection removes a connection record. Deleting an absent record
// is not an error.
func (s *SQLiteStore) DeleteConnection(ctx context.Context, role Role, connectionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+connTable(role)+` WHERE connection_id = ?`, connectionID)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return nil
}

// QueryConnectionsByName returns all connection records for a role with the
// given name, newest first. Expired rows may still be present; callers filter.
func (s *SQLiteStore) QueryConnectionsByName(ctx context.Context, role Role, name string) ([]*ConnectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT connection_id, name, connected_at, expire_at
		 FROM `+connTable(role)+` WHERE name = ?
		 ORDER BY connected_at DESC`,
		name)
	if err != nil {
		return nil, fmt.Errorf("querying connections by name: %w", err)
	}
	defer rows.Close()

	var recs []*ConnectionRecord
	for rows.Next() {
		rec := &ConnectionRecord{Role: role}
		if err := rows.Scan(&rec.ConnectionID, &rec.Name, &rec.ConnectedAt, &rec.ExpireAt); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// PutPairing creates or refreshes a pairing record. The composite primary
// key makes re-pairing the same tuple extend expire_at in place.
func (s *SQLiteStore) PutPairing(ctx context.Context, rec *PairingRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pairings (client_connection_id, gatekeeper_connection_id, name, paired_at, expire_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(client_connection_id, gatekeeper_connection_id) DO UPDATE SET
			name = excluded.name,
			expire_at = excluded.expire_at`,
		rec.ClientConnectionID, rec.GatekeeperConnectionID, rec.Name, rec.PairedAt, rec.ExpireAt)
	if err != nil {
		return fmt.Errorf("upserting pairing: %w", err)
	}
	return nil
}

// DeletePairing removes one pairing. Idempotent.
func (s *SQLiteStore) DeletePairing(ctx context.Context, clientConnectionID, gatekeeperConnectionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pairings WHERE client_connection_id = ? AND gatekeeper_connection_id = ?`,
		clientConnectionID, gatekeeperConnectionID)
	if err != nil {
		return fmt.Errorf("deleting pairing: %w", err)
	}
	return nil
}

// QueryPairingsByClient returns all pairings for a client connection.
func (s *SQLiteStore) QueryPairingsByClient(ctx context.Context, clientConnectionID string) ([]*PairingRecord, error) {
	return s.queryPairings(ctx,
		`SELECT client_connection_id, gatekeeper_connection_id, name, paired_at, expire_at
		 FROM pairings WHERE client_connection_id = ?`,
		clientConnectionID)
}

// QueryPairingsByGatekeeper returns all pairings for a gatekeeper connection.
func (s *SQLiteStore) QueryPairingsByGatekeeper(ctx context.Context, gatekeeperConnectionID string) ([]*PairingRecord, error) {
	return s.queryPairings(ctx,
		`SELECT client_connection_id, gatekeeper_connection_id, name, paired_at, expire_at
		 FROM pairings WHERE gatekeeper_connection_id = ?`,
		gatekeeperConnectionID)
}

func (s *SQLiteStore) queryPairings(ctx context.Context, query string, arg string) ([]*PairingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying pairings: %w", err)
	}
	defer rows.Close()

	var recs []*PairingRecord
	for rows.Next() {
		rec := &PairingRecord{}
		if err := rows.Scan(&rec.ClientConnectionID, &rec.GatekeeperConnectionID, &rec.Name, &rec.PairedAt, &rec.ExpireAt); err != nil {
			return nil, fmt.Errorf("scanning pairing: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// sweep runs in a background goroutine, periodically removing expired rows.
func (s *SQLiteStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.done:
			return
		}
	}
}

// sweepExpired removes all rows whose expire_at has passed.
func (s *SQLiteStore) sweepExpired() {
	now := time.Now().Unix()
	for _, table := range []string{"clients", "gatekeepers", "pairings"} {
		res, err := s.db.Exec(`DELETE FROM `+table+` WHERE expire_at < ?`, now)
		if err != nil {
			s.logger.Warn("expiry sweep failed", "table", table, "error", err)
			continue
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			s.logger.Debug("swept expired records", "table", table, "count", n)
		}
	}
}

// Close stops the sweep goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.db.Close()
}
