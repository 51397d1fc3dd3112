// ABOUTME: Pairing table mapping client connections to gatekeeper connections
// ABOUTME: Idempotent pair/refresh, counterpart lookup by either side, unpair-all

package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/relay-broker/internal/store"
)

// Table manages pairing records between client and gatekeeper connections.
// Like the registry it is stateless; the composite key on the backing table
// makes Pair idempotent without any in-process coordination.
type Table struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a pairing Table over the given store.
func New(s store.Store, logger *slog.Logger) *Table {
	return &Table{
		store:  s,
		logger: logger.With("component", "pairing"),
	}
}

// Pair creates or refreshes the pairing between a client and a gatekeeper
// connection. Pairing the same tuple again extends its expiry rather than
// duplicating the record.
func (t *Table) Pair(ctx context.Context, clientConnectionID, gatekeeperConnectionID, name string, ttl time.Duration) error {
	now := time.Now()
	rec := &store.PairingRecord{
		ClientConnectionID:     clientConnectionID,
		GatekeeperConnectionID: gatekeeperConnectionID,
		Name:                   name,
		PairedAt:               now.Unix(),
		ExpireAt:               now.Add(ttl).Unix(),
	}

	if err := t.store.PutPairing(ctx, rec); err != nil {
		return fmt.Errorf("pairing connections: %w", err)
	}

	t.logger.Info("paired",
		"client_connection_id", clientConnectionID,
		"gatekeeper_connection_id", gatekeeperConnectionID,
		"name", name,
	)
	return nil
}

// FindCounterparts returns the live counterpart connection ids for the given
// side: gatekeeper ids for a client connection, client ids for a gatekeeper
// connection. An empty result means no active pairing and is not an error.
func (t *Table) FindCounterparts(ctx context.Context, role store.Role, connectionID string) ([]string, error) {
	recs, err := t.pairingsFor(ctx, role, connectionID)
	if err != nil {
		return nil, fmt.Errorf("finding counterparts: %w", err)
	}

	now := time.Now().Unix()
	var ids []string
	for _, rec := range recs {
		if rec.ExpireAt <= now {
			continue
		}
		if role == store.RoleClient {
			ids = append(ids, rec.GatekeeperConnectionID)
		} else {
			ids = append(ids, rec.ClientConnectionID)
		}
	}
	return ids, nil
}

// UnpairAll removes every pairing record involving the given connection.
// Called on disconnect of either side so no half-pairing lingers.
func (t *Table) UnpairAll(ctx context.Context, role store.Role, connectionID string) error {
	recs, err := t.pairingsFor(ctx, role, connectionID)
	if err != nil {
		return fmt.Errorf("listing pairings for unpair: %w", err)
	}

	var errs []error
	for _, rec := range recs {
		if err := t.store.DeletePairing(ctx, rec.ClientConnectionID, rec.GatekeeperConnectionID); err != nil {
			errs = append(errs, err)
			continue
		}
		t.logger.Debug("unpaired",
			"client_connection_id", rec.ClientConnectionID,
			"gatekeeper_connection_id", rec.GatekeeperConnectionID,
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("unpairing %s %s: %w", role, connectionID, errors.Join(errs...))
	}
	return nil
}

func (t *Table) pairingsFor(ctx context.Context, role store.Role, connectionID string) ([]*store.PairingRecord, error) {
	if role == store.RoleClient {
		return t.store.QueryPairingsByClient(ctx, connectionID)
	}
	return t.store.QueryPairingsByGatekeeper(ctx, connectionID)
}
