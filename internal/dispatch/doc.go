// Package dispatch adapts API Gateway WebSocket proxy events to the
// broker's connect/disconnect/message handlers for Lambda deployments.
package dispatch
