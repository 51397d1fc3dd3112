// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite or DynamoDB

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing. It mirrors the
// contract of the durable backends, including returning expired records from
// queries (filtering is the caller's job).
type MockStore struct {
	mu          sync.RWMutex
	clients     map[string]*ConnectionRecord // keyed by connection ID
	gatekeepers map[string]*ConnectionRecord // keyed by connection ID
	pairings    map[string]*PairingRecord    // keyed by "clientID:gatekeeperID"

	// FailWith, when set, makes every operation return this error.
	// Used to exercise retry and error-surfacing paths.
	FailWith error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		clients:     make(map[string]*ConnectionRecord),
		gatekeepers: make(map[string]*ConnectionRecord),
		pairings:    make(map[string]*PairingRecord),
	}
}

func (m *MockStore) connMap(role Role) map[string]*ConnectionRecord {
	if role == RoleClient {
		return m.clients
	}
	return m.gatekeepers
}

func pairingKey(clientID, gatekeeperID string) string {
	return clientID + ":" + gatekeeperID
}

// PutConnection stores a connection record, honoring the ifAbsent condition.
func (m *MockStore) PutConnection(ctx context.Context, rec *ConnectionRecord, ifAbsent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	conns := m.connMap(rec.Role)
	if ifAbsent {
		if _, exists := conns[rec.ConnectionID]; exists {
			return ErrConditionFailed
		}
	}

	r := *rec
	conns[r.ConnectionID] = &r
	return nil
}

// GetConnection retrieves a connection record by role and id.
func (m *MockStore) GetConnection(ctx context.Context, role Role, connectionID string) (*ConnectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	rec, ok := m.connMap(role)[connectionID]
	if !ok {
		return nil, ErrNotFound
	}

	result := *rec
	return &result, nil
}

// DeleteConnection removes a connection record. Idempotent.
func (m *MockStore) DeleteConnection(ctx context.Context, role Role, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	delete(m.connMap(role), connectionID)
	return nil
}

// QueryConnectionsByName returns all records matching name, newest first.
func (m *MockStore) QueryConnectionsByName(ctx context.Context, role Role, name string) ([]*ConnectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	var recs []*ConnectionRecord
	for _, rec := range m.connMap(role) {
		if rec.Name == name {
			r := *rec
			recs = append(recs, &r)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ConnectedAt > recs[j].ConnectedAt
	})
	return recs, nil
}

// PutPairing creates or refreshes a pairing record.
func (m *MockStore) PutPairing(ctx context.Context, rec *PairingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	r := *rec
	m.pairings[pairingKey(r.ClientConnectionID, r.GatekeeperConnectionID)] = &r
	return nil
}

// DeletePairing removes one pairing. Idempotent.
func (m *MockStore) DeletePairing(ctx context.Context, clientConnectionID, gatekeeperConnectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}

	delete(m.pairings, pairingKey(clientConnectionID, gatekeeperConnectionID))
	return nil
}

// QueryPairingsByClient returns all pairings for a client connection.
func (m *MockStore) QueryPairingsByClient(ctx context.Context, clientConnectionID string) ([]*PairingRecord, error) {
	return m.queryPairings(func(rec *PairingRecord) bool {
		return rec.ClientConnectionID == clientConnectionID
	})
}

// QueryPairingsByGatekeeper returns all pairings for a gatekeeper connection.
func (m *MockStore) QueryPairingsByGatekeeper(ctx context.Context, gatekeeperConnectionID string) ([]*PairingRecord, error) {
	return m.queryPairings(func(rec *PairingRecord) bool {
		return rec.GatekeeperConnectionID == gatekeeperConnectionID
	})
}

func (m *MockStore) queryPairings(match func(*PairingRecord) bool) ([]*PairingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}

	var recs []*PairingRecord
	for _, rec := range m.pairings {
		if match(rec) {
			r := *rec
			recs = append(recs, &r)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].PairedAt < recs[j].PairedAt
	})
	return recs, nil
}

// PairingCount returns the number of stored pairings. Test helper.
func (m *MockStore) PairingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pairings)
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
