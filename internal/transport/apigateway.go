// ABOUTME: Transport implementation over the API Gateway management API
// ABOUTME: Maps GoneException and LimitExceededException onto the sentinel errors

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
)

// APIGatewayTransport delivers payloads through the API Gateway WebSocket
// management API (PostToConnection).
type APIGatewayTransport struct {
	client *apigatewaymanagementapi.Client
	logger *slog.Logger
}

// NewAPIGateway creates a transport against the given management endpoint,
// e.g. https://{api-id}.execute-api.{region}.amazonaws.com/{stage}.
func NewAPIGateway(cfg aws.Config, endpoint string, logger *slog.Logger) *APIGatewayTransport {
	client := apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &APIGatewayTransport{
		client: client,
		logger: logger.With("component", "transport"),
	}
}

// Send posts the payload to the connection. A GoneException becomes ErrGone,
// throttling becomes ErrThrottled; everything else passes through wrapped.
func (t *APIGatewayTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	_, err := t.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         payload,
	})
	if err == nil {
		return nil
	}

	var gone *types.GoneException
	if errors.As(err, &gone) {
		return fmt.Errorf("%w: %s", ErrGone, connectionID)
	}

	var limit *types.LimitExceededException
	if errors.As(err, &limit) {
		return fmt.Errorf("%w: %s", ErrThrottled, connectionID)
	}

	return fmt.Errorf("posting to connection %s: %w", connectionID, err)
}
