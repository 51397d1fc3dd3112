// Package broker implements the connection-pairing and message-relay engine.
//
// # Handlers
//
// Three handlers correspond to the dispatcher's events:
//
//   - HandleConnect: register the connection, then pair against live
//     counterparts of the opposite role sharing the correlation name.
//     Whichever side connects second creates the pairing.
//   - HandleDisconnect: unpair and deregister under both roles (disconnect
//     events do not always say which role closed; idempotent removal
//     absorbs the miss).
//   - HandleMessage: resolve counterparts from the pairing table and forward
//     the payload unmodified through the transport.
//
// # Concurrency
//
// Every invocation is independent and stateless; correctness comes from the
// table store's per-key atomicity, not in-process locking. Races between a
// message and a disconnect resolve reactively: delivery to a gone connection
// triggers cleanup, so the next lookup finds no route.
//
// # Error policy
//
// NoRoute, a gone counterpart, and duplicate registration are absorbed here.
// Only transient failures that survive the bounded retry policy propagate to
// the dispatcher as event-handling failures.
package broker
