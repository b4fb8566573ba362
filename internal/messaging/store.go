package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

const providerIDIndex = "message_id-index"

// MessageType distinguishes plain text sends from template sends.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeTemplate MessageType = "template"
)

// MessageStatus tracks the provider delivery lifecycle of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// MessageRecord is one outbound message as persisted to DynamoDB.
type MessageRecord struct {
	ID              string            `dynamodbav:"id" json:"id"`
	ProviderID      string            `dynamodbav:"message_id,omitempty" json:"message_id,omitempty"`
	Customer        string            `dynamodbav:"customer" json:"customer"`
	Type            MessageType       `dynamodbav:"message_type" json:"message_type"`
	Text            string            `dynamodbav:"text,omitempty" json:"text,omitempty"`
	TemplateName    string            `dynamodbav:"template_name,omitempty" json:"template_name,omitempty"`
	Variables       map[string]string `dynamodbav:"variables,omitempty" json:"variables,omitempty"`
	Direction       string            `dynamodbav:"direction" json:"direction"`
	OrderNumber     int64             `dynamodbav:"order_number,omitempty" json:"order_number,omitempty"`
	Status          MessageStatus     `dynamodbav:"status" json:"status"`
	Timestamp       string            `dynamodbav:"timestamp" json:"timestamp"`
	StatusUpdatedAt string            `dynamodbav:"status_updated_at" json:"status_updated_at"`
}

// ErrMessageNotFound indicates no message record matches the provider id.
var ErrMessageNotFound = errors.New("messaging: message not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store persists outbound message records to DynamoDB.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewStore builds a message store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("messaging: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("messaging: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, tableName: tableName, logger: logger}
}

// LogOutbound inserts an outbound message record, filling id and timestamps.
func (s *Store) LogOutbound(ctx context.Context, rec *MessageRecord) error {
	if rec == nil {
		return errors.New("messaging: record cannot be nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Direction = "outbound"
	if rec.Status == "" {
		rec.Status = MessageStatusSent
	}
	rec.Timestamp = now
	rec.StatusUpdatedAt = now

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("messaging: failed to marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("messaging: failed to persist record: %w", err)
	}
	return nil
}

// UpdateStatusByProviderID transitions the record matching the provider
// message id. Unknown ids are a no-op and return ErrMessageNotFound.
func (s *Store) UpdateStatusByProviderID(ctx context.Context, providerID string, status MessageStatus, at time.Time) error {
	if providerID == "" {
		return errors.New("messaging: provider id required")
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(providerIDIndex),
		KeyConditionExpression: aws.String("message_id = :mid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":mid": &types.AttributeValueMemberS{Value: providerID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("messaging: failed to look up message %s: %w", providerID, err)
	}
	if len(out.Items) == 0 {
		return ErrMessageNotFound
	}

	var rec MessageRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return fmt.Errorf("messaging: failed to decode message: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: rec.ID},
		},
		UpdateExpression: aws.String("SET #status = :status, status_updated_at = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":updated": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("messaging: failed to update status for %s: %w", providerID, err)
	}
	return nil
}

// ListRecent scans the table for the operator message view.
func (s *Store) ListRecent(ctx context.Context, limit int32) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
		Limit:     aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to list messages: %w", err)
	}
	records := make([]MessageRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var rec MessageRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("messaging: failed to decode message: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
