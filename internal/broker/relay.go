// ABOUTME: Message relay handling: resolve the sender's pairing and forward the payload
// ABOUTME: NoRoute is absorbed, Gone triggers reactive cleanup, throttling is retried

package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/relay-broker/internal/store"
	"github.com/2389/relay-broker/internal/transport"
)

// noRouteFrame is echoed to a sender with no live counterpart when
// NotifyNoRoute is enabled. Best effort; delivery failures are ignored.
var noRouteFrame = []byte(`{"error":"no_route"}`)

// HandleMessage relays an inbound payload to the sender's paired
// counterpart(s), unmodified. A missing route is reported to the sender (or
// dropped) and never escalated; a gone counterpart is cleaned up reactively.
// Only transport failures that survive bounded retry surface as errors.
func (b *Broker) HandleMessage(ctx context.Context, ev MessageEvent) error {
	role := ev.Role
	if role == "" {
		var err error
		role, err = b.resolveRole(ctx, ev.ConnectionID)
		if err != nil {
			return fmt.Errorf("message from %s: resolving role: %w", ev.ConnectionID, err)
		}
		if role == "" {
			// Sender is not registered at all: a message racing its own
			// disconnect cleanup. Nothing to route.
			b.logger.Debug("message from unregistered connection", "connection_id", ev.ConnectionID)
			b.reportNoRoute(ctx, ev.ConnectionID)
			return nil
		}
	}

	var counterparts []string
	err := b.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var findErr error
		counterparts, findErr = b.pairings.FindCounterparts(ctx, role, ev.ConnectionID)
		return findErr
	}, storeRetryable)
	if err != nil {
		return fmt.Errorf("message from %s: %w", ev.ConnectionID, err)
	}

	if len(counterparts) == 0 {
		b.logger.Debug("no route for message",
			"role", role,
			"connection_id", ev.ConnectionID,
		)
		b.reportNoRoute(ctx, ev.ConnectionID)
		return nil
	}

	var errs []error
	for _, counterpart := range counterparts {
		err := b.opts.Retry.Do(ctx, func(ctx context.Context) error {
			return b.transport.Send(ctx, counterpart, ev.Payload)
		}, transportRetryable)

		if errors.Is(err, transport.ErrGone) {
			// Stale counterpart: self-heal so the next lookup comes back empty.
			b.logger.Debug("counterpart gone, cleaning up",
				"connection_id", ev.ConnectionID,
				"counterpart", counterpart,
			)
			b.cleanupStale(ctx, counterpart)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("delivering to %s: %w", counterpart, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("message from %s: %w", ev.ConnectionID, errors.Join(errs...))
	}
	return nil
}

// resolveRole looks the sender up under both roles. Returns the empty role
// when the connection is registered under neither.
func (b *Broker) resolveRole(ctx context.Context, connectionID string) (store.Role, error) {
	for _, role := range []store.Role{store.RoleClient, store.RoleGatekeeper} {
		var found bool
		err := b.opts.Retry.Do(ctx, func(ctx context.Context) error {
			_, getErr := b.registry.Get(ctx, role, connectionID)
			if errors.Is(getErr, store.ErrNotFound) {
				return nil
			}
			if getErr == nil {
				found = true
			}
			return getErr
		}, storeRetryable)
		if err != nil {
			return "", err
		}
		if found {
			return role, nil
		}
	}
	return "", nil
}

// reportNoRoute echoes an error frame to the sender when configured to.
// The echo itself is best effort: the sender may be gone too.
func (b *Broker) reportNoRoute(ctx context.Context, connectionID string) {
	if !b.opts.NotifyNoRoute {
		return
	}
	if err := b.transport.Send(ctx, connectionID, noRouteFrame); err != nil {
		b.logger.Debug("no-route echo failed", "connection_id", connectionID, "error", err)
	}
}

// cleanupStale tears down a connection the transport reported gone. Best
// effort under both roles; TTLs catch anything this misses.
func (b *Broker) cleanupStale(ctx context.Context, connectionID string) {
	for _, role := range []store.Role{store.RoleClient, store.RoleGatekeeper} {
		if err := b.pairings.UnpairAll(ctx, role, connectionID); err != nil {
			b.logger.Warn("stale pairing cleanup failed",
				"role", role,
				"connection_id", connectionID,
				"error", err,
			)
		}
		if err := b.registry.Remove(ctx, role, connectionID); err != nil {
			b.logger.Warn("stale registry cleanup failed",
				"role", role,
				"connection_id", connectionID,
				"error", err,
			)
		}
	}
}
