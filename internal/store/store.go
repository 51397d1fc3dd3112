// ABOUTME: Store interface and record types for relay-broker persistence
// ABOUTME: Defines ConnectionRecord, PairingRecord and the durable table store contract

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConditionFailed is returned when a conditional put loses to an
// existing record (the backing store's conditional-write failure).
var ErrConditionFailed = errors.New("conditional write failed")

// Role identifies which peer class a connection belongs to.
type Role string

const (
	// RoleClient is the peer class registered under a logical name.
	RoleClient Role = "client"

	// RoleGatekeeper is the peer class that pairs against a client by name.
	RoleGatekeeper Role = "gatekeeper"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleGatekeeper
}

// Counterpart returns the opposite role.
func (r Role) Counterpart() Role {
	if r == RoleClient {
		return RoleGatekeeper
	}
	return RoleClient
}

// ConnectionRecord is one live connection of either role. Records are
// created on connect, removed on disconnect, and never mutated in between.
// ExpireAt is epoch seconds; a record past it is logically dead even if the
// store has not swept it yet.
type ConnectionRecord struct {
	ConnectionID string `dynamodbav:"connection_id"`
	Role         Role   `dynamodbav:"role"`
	Name         string `dynamodbav:"name"`
	ConnectedAt  int64  `dynamodbav:"connected_at"`
	ExpireAt     int64  `dynamodbav:"expire_at"`
}

// PairingRecord links one client connection to one gatekeeper connection.
// The two connection ids form the composite key, so re-pairing the same
// tuple refreshes ExpireAt instead of duplicating.
type PairingRecord struct {
	ClientConnectionID     string `dynamodbav:"client_connection_id"`
	GatekeeperConnectionID string `dynamodbav:"gatekeeper_connection_id"`
	Name                   string `dynamodbav:"name"`
	PairedAt               int64  `dynamodbav:"paired_at"`
	ExpireAt               int64  `dynamodbav:"expire_at"`
}

// Store is the durable table store behind the registry and pairing table.
// Implementations must provide per-key atomicity for conditional puts; no
// multi-key transactions are assumed. Expired records may still show up in
// query results (sweeps are not instantaneous), so callers filter on ExpireAt.
type Store interface {
	// Connections. Each role has its own table; the record's Role selects it.
	PutConnection(ctx context.Context, rec *ConnectionRecord, ifAbsent bool) error
	GetConnection(ctx context.Context, role Role, connectionID string) (*ConnectionRecord, error)
	DeleteConnection(ctx context.Context, role Role, connectionID string) error
	QueryConnectionsByName(ctx context.Context, role Role, name string) ([]*ConnectionRecord, error)

	// Pairings. PutPairing is an upsert keyed on both connection ids.
	PutPairing(ctx context.Context, rec *PairingRecord) error
	DeletePairing(ctx context.Context, clientConnectionID, gatekeeperConnectionID string) error
	QueryPairingsByClient(ctx context.Context, clientConnectionID string) ([]*PairingRecord, error)
	QueryPairingsByGatekeeper(ctx context.Context, gatekeeperConnectionID string) ([]*PairingRecord, error)

	// Close releases any resources held by the store.
	Close() error
}
