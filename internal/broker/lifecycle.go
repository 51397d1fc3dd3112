// ABOUTME: Connection lifecycle handling: connect and disconnect events
// ABOUTME: Registers connections and drives pairing from whichever side connects second

package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/relay-broker/internal/registry"
	"github.com/2389/relay-broker/internal/store"
)

// HandleConnect registers the connection and, if a live counterpart with the
// same name is already registered, pairs with it. Pairing is driven from
// whichever side connects second, so both orders end up paired.
func (b *Broker) HandleConnect(ctx context.Context, ev ConnectEvent) error {
	if !ev.Role.Valid() {
		return fmt.Errorf("connect %s: unknown role %q", ev.ConnectionID, ev.Role)
	}

	err := b.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return b.registry.Register(ctx, ev.Role, ev.ConnectionID, ev.Name, b.opts.ConnectionTTL)
	}, storeRetryable)
	if errors.Is(err, registry.ErrDuplicateConnection) {
		// Invariant violation on the transport's side; the record already
		// exists, so the event is treated as handled.
		b.logger.Warn("duplicate connection registration",
			"role", ev.Role,
			"connection_id", ev.ConnectionID,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", ev.ConnectionID, err)
	}

	b.logger.Info("connected",
		"role", ev.Role,
		"connection_id", ev.ConnectionID,
		"name", ev.Name,
	)

	if ev.Name == "" {
		return nil
	}
	return b.pairWithCounterparts(ctx, ev)
}

// pairWithCounterparts looks up live connections of the opposite role under
// the same name and creates pairings per the configured cardinality.
func (b *Broker) pairWithCounterparts(ctx context.Context, ev ConnectEvent) error {
	var counterparts []*store.ConnectionRecord
	err := b.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		counterparts, lookupErr = b.registry.LookupByName(ctx, ev.Role.Counterpart(), ev.Name)
		return lookupErr
	}, storeRetryable)
	if err != nil {
		return fmt.Errorf("connect %s: counterpart lookup: %w", ev.ConnectionID, err)
	}

	if len(counterparts) == 0 {
		b.logger.Debug("no counterpart yet, pairing deferred",
			"role", ev.Role,
			"connection_id", ev.ConnectionID,
			"name", ev.Name,
		)
		return nil
	}

	// LookupByName returns newest first; one-to-one pairs with that one.
	if b.opts.Cardinality == CardinalityOneToOne {
		counterparts = counterparts[:1]
	}

	for _, counterpart := range counterparts {
		clientID, gatekeeperID := ev.ConnectionID, counterpart.ConnectionID
		if ev.Role == store.RoleGatekeeper {
			clientID, gatekeeperID = counterpart.ConnectionID, ev.ConnectionID
		}

		err := b.opts.Retry.Do(ctx, func(ctx context.Context) error {
			return b.pairings.Pair(ctx, clientID, gatekeeperID, ev.Name, b.opts.PairingTTL)
		}, storeRetryable)
		if err != nil {
			return fmt.Errorf("connect %s: pairing with %s: %w", ev.ConnectionID, counterpart.ConnectionID, err)
		}
	}
	return nil
}

// HandleDisconnect removes every pairing and registry record for the
// connection. A disconnect event does not say which role closed, so cleanup
// runs under both roles; idempotent removal absorbs the miss.
func (b *Broker) HandleDisconnect(ctx context.Context, ev DisconnectEvent) error {
	var errs []error
	for _, role := range []store.Role{store.RoleClient, store.RoleGatekeeper} {
		err := b.opts.Retry.Do(ctx, func(ctx context.Context) error {
			return b.pairings.UnpairAll(ctx, role, ev.ConnectionID)
		}, storeRetryable)
		if err != nil {
			errs = append(errs, err)
		}

		err = b.opts.Retry.Do(ctx, func(ctx context.Context) error {
			return b.registry.Remove(ctx, role, ev.ConnectionID)
		}, storeRetryable)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("disconnect %s: %w", ev.ConnectionID, errors.Join(errs...))
	}

	b.logger.Info("disconnected", "connection_id", ev.ConnectionID)
	return nil
}
