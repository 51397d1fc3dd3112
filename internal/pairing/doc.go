// Package pairing maps client connections to gatekeeper connections.
//
// A pairing is keyed by the (client, gatekeeper) connection id tuple, so
// Pair is naturally idempotent: re-pairing the same tuple refreshes its
// expiry. Lookups work from either side and filter expired records.
package pairing
