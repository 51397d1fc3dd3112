// ABOUTME: DynamoDB implementation of the Store interface via aws-sdk-go-v2
// ABOUTME: Conditional puts for registration, GSI queries, native TTL on expire_at

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// GSI names expected on the DynamoDB tables. The connection tables index
// records by name for counterpart lookup; the pairings table indexes the
// gatekeeper side (the client side is the partition key).
const (
	nameIndex       = "name-index"
	gatekeeperIndex = "gatekeeper-index"
)

// TableNames holds the three DynamoDB table handles.
type TableNames struct {
	Clients     string
	Gatekeepers string
	Pairings    string
}

// DynamoStore implements the Store interface against DynamoDB. Physical
// expiry is DynamoDB's native TTL on the expire_at attribute; since TTL
// deletion lags, callers still filter expired records out of query results.
type DynamoStore struct {
	client *dynamodb.Client
	tables TableNames
	logger *slog.Logger
}

// NewDynamoStore creates a DynamoDB-backed store over an existing client.
func NewDynamoStore(client *dynamodb.Client, tables TableNames) *DynamoStore {
	return &DynamoStore{
		client: client,
		tables: tables,
		logger: slog.Default().With("component", "store"),
	}
}

// connTableName maps a role to its DynamoDB table.
func (s *DynamoStore) connTableName(role Role) string {
	if role == RoleClient {
		return s.tables.Clients
	}
	return s.tables.Gatekeepers
}

// PutConnection inserts a connection record. With ifAbsent set, an existing
// item with the same connection id fails the conditional write and the call
// returns ErrConditionFailed.
func (s *DynamoStore) PutConnection(ctx context.Context, rec *ConnectionRecord, ifAbsent bool) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling connection record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.connTableName(rec.Role)),
		Item:      item,
	}
	if ifAbsent {
		input.ConditionExpression = aws.String("attribute_not_exists(connection_id)")
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("putting connection: %w", err)
	}
	return nil
}

// GetConnection retrieves a connection record by role and id.
func (s *DynamoStore) GetConnection(ctx context.Context, role Role, connectionID string) (*ConnectionRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.connTableName(role)),
		Key: map[string]types.AttributeValue{
			"connection_id": &types.AttributeValueMemberS{Value: connectionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	rec := &ConnectionRecord{}
	if err := attributevalue.UnmarshalMap(out.Item, rec); err != nil {
		return nil, fmt.Errorf("unmarshaling connection record: %w", err)
	}
	rec.Role = role
	return rec, nil
}

// DeleteConnection removes a connection record. Deleting an absent item is
// a no-op in DynamoDB, which gives the idempotence the registry relies on.
func (s *DynamoStore) DeleteConnection(ctx context.Context, role Role, connectionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.connTableName(role)),
		Key: map[string]types.AttributeValue{
			"connection_id": &types.AttributeValueMemberS{Value: connectionID},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return nil
}

// QueryConnectionsByName returns all connection records for a role with the
// given name via the name GSI.
func (s *DynamoStore) QueryConnectionsByName(ctx context.Context, role Role, name string) ([]*ConnectionRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.connTableName(role)),
		IndexName:              aws.String(nameIndex),
		KeyConditionExpression: aws.String("#n = :name"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name": &types.AttributeValueMemberS{Value: name},
		},
	}

	var recs []*ConnectionRecord
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying connections by name: %w", err)
		}
		var pageRecs []*ConnectionRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageRecs); err != nil {
			return nil, fmt.Errorf("unmarshaling connection records: %w", err)
		}
		for _, rec := range pageRecs {
			rec.Role = role
		}
		recs = append(recs, pageRecs...)
	}
	return recs, nil
}

// PutPairing creates or refreshes a pairing record. PutItem on the composite
// key overwrites in place, so a refresh just carries the new expire_at.
func (s *DynamoStore) PutPairing(ctx context.Context, rec *PairingRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling pairing record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tables.Pairings),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting pairing: %w", err)
	}
	return nil
}

// DeletePairing removes one pairing. Idempotent.
func (s *DynamoStore) DeletePairing(ctx context.Context, clientConnectionID, gatekeeperConnectionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tables.Pairings),
		Key: map[string]types.AttributeValue{
			"client_connection_id":     &types.AttributeValueMemberS{Value: clientConnectionID},
			"gatekeeper_connection_id": &types.AttributeValueMemberS{Value: gatekeeperConnectionID},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting pairing: %w", err)
	}
	return nil
}

// QueryPairingsByClient returns all pairings for a client connection.
func (s *DynamoStore) QueryPairingsByClient(ctx context.Context, clientConnectionID string) ([]*PairingRecord, error) {
	return s.queryPairings(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Pairings),
		KeyConditionExpression: aws.String("client_connection_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: clientConnectionID},
		},
	})
}

// QueryPairingsByGatekeeper returns all pairings for a gatekeeper connection
// via the gatekeeper GSI.
func (s *DynamoStore) QueryPairingsByGatekeeper(ctx context.Context, gatekeeperConnectionID string) ([]*PairingRecord, error) {
	return s.queryPairings(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Pairings),
		IndexName:              aws.String(gatekeeperIndex),
		KeyConditionExpression: aws.String("gatekeeper_connection_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: gatekeeperConnectionID},
		},
	})
}

func (s *DynamoStore) queryPairings(ctx context.Context, input *dynamodb.QueryInput) ([]*PairingRecord, error) {
	var recs []*PairingRecord
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying pairings: %w", err)
		}
		var pageRecs []*PairingRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageRecs); err != nil {
			return nil, fmt.Errorf("unmarshaling pairing records: %w", err)
		}
		recs = append(recs, pageRecs...)
	}
	return recs, nil
}

// Close is a no-op; the underlying client is owned by the caller.
func (s *DynamoStore) Close() error {
	return nil
}
