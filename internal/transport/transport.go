// ABOUTME: Transport interface for delivering payloads to live connections
// ABOUTME: Sentinel errors classify failures as gone vs. transient

package transport

import (
	"context"
	"errors"
)

// ErrGone indicates the target connection no longer exists. The relay
// handler reacts by cleaning up the stale registry and pairing records; it
// never retries against the same dead connection.
var ErrGone = errors.New("connection gone")

// ErrThrottled indicates a transient delivery failure worth retrying.
var ErrThrottled = errors.New("transport throttled")

// Transport delivers a payload to a live connection. Implementations wrap
// whatever terminates the WebSockets: the API Gateway management API in
// Lambda deployments, or the broker's own listener in self-hosted mode.
type Transport interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}
