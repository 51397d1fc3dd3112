// Package server runs the broker in self-hosted mode: it terminates
// WebSocket connections on its own listener, assigns connection ids, and
// feeds the broker the same connect/disconnect/message events the Lambda
// dispatcher would. Its connection table implements transport.Transport, so
// delivery to a locally closed socket reports Gone exactly like the
// API Gateway management API does.
package server
