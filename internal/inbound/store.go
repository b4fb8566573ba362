package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

// InteractionRecord is the append-only audit trail of customer replies. One
// record per inbound event, never updated.
type InteractionRecord struct {
	ID          string `dynamodbav:"id" json:"id"`
	Customer    string `dynamodbav:"customer" json:"customer"`
	Intent      string `dynamodbav:"intent" json:"intent"`
	Language    string `dynamodbav:"language" json:"language"`
	Payload     string `dynamodbav:"payload" json:"payload"`
	MessageID   string `dynamodbav:"message_id,omitempty" json:"message_id,omitempty"`
	OrderNumber int64  `dynamodbav:"order_number,omitempty" json:"order_number,omitempty"`
	CreatedAt   string `dynamodbav:"created_at" json:"created_at"`
}

type dynamoPutter interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// InteractionStore persists interaction records to DynamoDB.
type InteractionStore struct {
	client    dynamoPutter
	tableName string
	logger    *logging.Logger
}

// NewInteractionStore builds an interaction store.
func NewInteractionStore(client dynamoPutter, tableName string, logger *logging.Logger) *InteractionStore {
	if client == nil {
		panic("inbound: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("inbound: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InteractionStore{client: client, tableName: tableName, logger: logger}
}

// Log appends one interaction. The id and timestamp are assigned here.
func (s *InteractionStore) Log(ctx context.Context, rec *InteractionRecord) error {
	if rec == nil {
		return errors.New("inbound: record cannot be nil")
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("inbound: failed to marshal interaction: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("inbound: failed to persist interaction: %w", err)
	}
	return nil
}
