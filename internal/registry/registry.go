// ABOUTME: Connection registry tracking live connections per role
// ABOUTME: Durable register/lookup/remove over the table store, with expiry filtering

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/relay-broker/internal/store"
)

// ErrDuplicateConnection indicates a connection id is already registered for
// the role. Should not occur under correct transport behavior, but the
// conditional write checks it anyway.
var ErrDuplicateConnection = errors.New("connection already registered")

// Registry tracks live connection records per role. It holds no state of its
// own; every operation is a durable read or write against the table store,
// so any number of concurrent broker instances can share one registry.
type Registry struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Registry over the given store.
func New(s store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		store:  s,
		logger: logger.With("component", "registry"),
	}
}

// Register inserts a connection record with the given TTL.
// Returns ErrDuplicateConnection if the id is already present for the role.
func (r *Registry) Register(ctx context.Context, role store.Role, connectionID, name string, ttl time.Duration) error {
	now := time.Now()
	rec := &store.ConnectionRecord{
		ConnectionID: connectionID,
		Role:         role,
		Name:         name,
		ConnectedAt:  now.Unix(),
		ExpireAt:     now.Add(ttl).Unix(),
	}

	err := r.store.PutConnection(ctx, rec, true)
	if errors.Is(err, store.ErrConditionFailed) {
		return fmt.Errorf("%w: %s %s", ErrDuplicateConnection, role, connectionID)
	}
	if err != nil {
		return fmt.Errorf("registering connection: %w", err)
	}

	r.logger.Debug("connection registered",
		"role", role,
		"connection_id", connectionID,
		"name", name,
		"expire_at", rec.ExpireAt,
	)
	return nil
}

// Get retrieves a single live connection record, or store.ErrNotFound if the
// record is absent or past its expiry.
func (r *Registry) Get(ctx context.Context, role store.Role, connectionID string) (*store.ConnectionRecord, error) {
	rec, err := r.store.GetConnection(ctx, role, connectionID)
	if err != nil {
		return nil, err
	}
	if rec.ExpireAt <= time.Now().Unix() {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

// LookupByName returns the live connection records matching name for the
// role, newest first. Expired records are filtered here as well as swept by
// the store, since sweep latency is not instantaneous.
func (r *Registry) LookupByName(ctx context.Context, role store.Role, name string) ([]*store.ConnectionRecord, error) {
	recs, err := r.store.QueryConnectionsByName(ctx, role, name)
	if err != nil {
		return nil, fmt.Errorf("looking up connections by name: %w", err)
	}

	now := time.Now().Unix()
	live := recs[:0]
	for _, rec := range recs {
		if rec.ExpireAt > now {
			live = append(live, rec)
		}
	}
	return live, nil
}

// Remove deletes a connection record. Removing an absent record is not an
// error; disconnect handling relies on that idempotence.
func (r *Registry) Remove(ctx context.Context, role store.Role, connectionID string) error {
	if err := r.store.DeleteConnection(ctx, role, connectionID); err != nil {
		return fmt.Errorf("removing connection: %w", err)
	}
	r.logger.Debug("connection removed", "role", role, "connection_id", connectionID)
	return nil
}
