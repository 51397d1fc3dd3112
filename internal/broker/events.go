// ABOUTME: Event types delivered to the broker by the dispatcher
// ABOUTME: Connect, Disconnect, and Message events with declared role and name

package broker

import "github.com/2389/relay-broker/internal/store"

// ConnectEvent is delivered when the transport has accepted a connection.
// Role is required. Name is the correlation key: clients register under it,
// gatekeepers supply the name of the client they pair against.
type ConnectEvent struct {
	ConnectionID string
	Role         store.Role
	Name         string
}

// DisconnectEvent is delivered when a connection closes. The disconnecting
// side's role is not always known, so the handler cleans up under both roles.
type DisconnectEvent struct {
	ConnectionID string
}

// MessageEvent is an inbound payload from a connected peer. Role may be
// empty when the dispatcher does not know it (API Gateway disconnect-style
// events); the handler then resolves it from the registry.
type MessageEvent struct {
	ConnectionID string
	Role         store.Role
	Payload      []byte
}
