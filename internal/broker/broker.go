// ABOUTME: Broker wiring for the lifecycle and relay handlers
// ABOUTME: Holds the registry, pairing table, transport, and relay policy

package broker

import (
	"log/slog"
	"time"

	"github.com/2389/relay-broker/internal/pairing"
	"github.com/2389/relay-broker/internal/registry"
	"github.com/2389/relay-broker/internal/transport"
)

// Cardinality controls how many counterparts a connect event may pair with.
type Cardinality string

const (
	// CardinalityOneToOne pairs with the most recently registered live
	// counterpart only.
	CardinalityOneToOne Cardinality = "one-to-one"

	// CardinalityOneToMany pairs with every live counterpart sharing the name.
	CardinalityOneToMany Cardinality = "one-to-many"
)

// Options holds the relay policy knobs.
type Options struct {
	// ConnectionTTL and PairingTTL bound how long records outlive a missed
	// cleanup. Both default to 2h in config.
	ConnectionTTL time.Duration
	PairingTTL    time.Duration

	// Cardinality selects one-to-one or one-to-many pairing.
	Cardinality Cardinality

	// NotifyNoRoute echoes an error frame to the sender when a message has
	// no live counterpart. When false the message is dropped with a debug log.
	NotifyNoRoute bool

	// Retry bounds store and transport retries.
	Retry RetryPolicy
}

// Broker implements the three event handlers: connect, disconnect, message.
// It is stateless between invocations; every decision is reconstructed from
// the registry and pairing table, so any number of concurrent instances may
// handle events for the same connections.
type Broker struct {
	registry  *registry.Registry
	pairings  *pairing.Table
	transport transport.Transport
	opts      Options
	logger    *slog.Logger
}

// New creates a Broker.
func New(reg *registry.Registry, pairings *pairing.Table, tr transport.Transport, opts Options, logger *slog.Logger) *Broker {
	if opts.Cardinality == "" {
		opts.Cardinality = CardinalityOneToOne
	}
	return &Broker{
		registry:  reg,
		pairings:  pairings,
		transport: tr,
		opts:      opts,
		logger:    logger.With("component", "broker"),
	}
}
