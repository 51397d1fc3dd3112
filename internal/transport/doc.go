// Package transport abstracts payload delivery to a live connection.
//
// The broker never terminates WebSockets itself in Lambda deployments; it
// hands payloads to the API Gateway management API. In self-hosted mode the
// server package implements the same interface over its own connections.
package transport
