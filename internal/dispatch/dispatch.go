// ABOUTME: Lambda adapter mapping API Gateway WebSocket events onto broker handlers
// ABOUTME: $connect/$disconnect route keys drive lifecycle, everything else relays

package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/2389/relay-broker/internal/broker"
	"github.com/2389/relay-broker/internal/store"
)

// EventHandler is the slice of the broker the dispatcher needs.
type EventHandler interface {
	HandleConnect(ctx context.Context, ev broker.ConnectEvent) error
	HandleDisconnect(ctx context.Context, ev broker.DisconnectEvent) error
	HandleMessage(ctx context.Context, ev broker.MessageEvent) error
}

// Handler adapts API Gateway WebSocket proxy events to broker events.
type Handler struct {
	broker EventHandler
	logger *slog.Logger
}

// NewHandler creates a dispatch Handler.
func NewHandler(b EventHandler, logger *slog.Logger) *Handler {
	return &Handler{
		broker: b,
		logger: logger.With("component", "dispatch"),
	}
}

// Handle processes one API Gateway WebSocket event. A returned error marks
// the invocation failed so the platform's own retry policy applies; handled
// conditions (bad connect parameters) get a 4xx response instead.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID

	switch req.RequestContext.RouteKey {
	case "$connect":
		role := store.Role(req.QueryStringParameters["role"])
		if !role.Valid() {
			h.logger.Warn("connect with unknown role",
				"connection_id", connectionID,
				"role", string(role),
			)
			return events.APIGatewayProxyResponse{StatusCode: 400, Body: "unknown role"}, nil
		}

		err := h.broker.HandleConnect(ctx, broker.ConnectEvent{
			ConnectionID: connectionID,
			Role:         role,
			Name:         req.QueryStringParameters["name"],
		})
		if err != nil {
			return events.APIGatewayProxyResponse{StatusCode: 500}, err
		}

	case "$disconnect":
		err := h.broker.HandleDisconnect(ctx, broker.DisconnectEvent{ConnectionID: connectionID})
		if err != nil {
			return events.APIGatewayProxyResponse{StatusCode: 500}, err
		}

	default:
		payload := []byte(req.Body)
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				return events.APIGatewayProxyResponse{StatusCode: 400, Body: "bad payload encoding"},
					fmt.Errorf("decoding message body: %w", err)
			}
			payload = decoded
		}

		// The role is not carried on message frames; the broker resolves it
		// from the registry.
		err := h.broker.HandleMessage(ctx, broker.MessageEvent{
			ConnectionID: connectionID,
			Payload:      payload,
		})
		if err != nil {
			return events.APIGatewayProxyResponse{StatusCode: 500}, err
		}
	}

	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}
