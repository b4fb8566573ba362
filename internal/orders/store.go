package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/butstore/whatsapp-bridge/pkg/logging"
)

const (
	phoneIndex       = "phone-index"
	orderNumberIndex = "order_number-index"
	messageIDIndex   = "message_id-index"
)

// Status is the confirmation lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusCancelled  Status = "cancelled"
)

var (
	// ErrConfirmationExists indicates a record for the order id already
	// exists; webhook redeliveries hit this.
	ErrConfirmationExists = errors.New("orders: confirmation already exists")
	// ErrAlreadyClaimed indicates another reply claimed the pending record
	// first.
	ErrAlreadyClaimed = errors.New("orders: confirmation already claimed")
	// ErrConfirmationNotFound indicates no record matches the lookup.
	ErrConfirmationNotFound = errors.New("orders: confirmation not found")
)

// ConfirmationRecord tracks whether a customer confirmed, cancelled, or has
// not yet responded to an order. Records are kept for audit after reaching a
// terminal status.
type ConfirmationRecord struct {
	OrderID       int64             `dynamodbav:"order_id" json:"order_id"`
	Phone         string            `dynamodbav:"phone" json:"phone"`
	OrderNumber   int64             `dynamodbav:"order_number" json:"order_number"`
	Name          string            `dynamodbav:"name" json:"name"`
	Address       string            `dynamodbav:"address" json:"address"`
	Price         string            `dynamodbav:"price" json:"price"`
	Status        Status            `dynamodbav:"status" json:"status"`
	Variables     map[string]string `dynamodbav:"variables,omitempty" json:"variables,omitempty"`
	MessageID     string            `dynamodbav:"message_id,omitempty" json:"message_id,omitempty"`
	MessageStatus string            `dynamodbav:"message_status,omitempty" json:"message_status,omitempty"`
	CreatedAt     string            `dynamodbav:"created_at" json:"created_at"`
	ConfirmedAt   string            `dynamodbav:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	CancelledAt   string            `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	LastMessageAt string            `dynamodbav:"last_message_at,omitempty" json:"last_message_at,omitempty"`
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store persists confirmation records to DynamoDB.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewStore builds a confirmation store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("orders: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("orders: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, tableName: tableName, logger: logger}
}

// Create inserts a new pending confirmation. A record keyed by the same order
// id already existing returns ErrConfirmationExists, which makes webhook
// redelivery idempotent.
func (s *Store) Create(ctx context.Context, rec *ConfirmationRecord) error {
	if rec == nil {
		return errors.New("orders: record cannot be nil")
	}
	rec.Status = StatusPending
	rec.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("orders: failed to marshal confirmation: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConfirmationExists
		}
		return fmt.Errorf("orders: failed to persist confirmation: %w", err)
	}
	return nil
}

// Get fetches a confirmation by order id.
func (s *Store) Get(ctx context.Context, orderID int64) (*ConfirmationRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       orderKey(orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("orders: failed to fetch confirmation %d: %w", orderID, err)
	}
	if out.Item == nil {
		return nil, ErrConfirmationNotFound
	}
	var rec ConfirmationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("orders: failed to decode confirmation: %w", err)
	}
	return &rec, nil
}

// LatestPendingByPhone returns the most recent pending confirmation for the
// canonical phone, or ErrConfirmationNotFound.
func (s *Store) LatestPendingByPhone(ctx context.Context, phoneE164 string) (*ConfirmationRecord, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(phoneIndex),
		KeyConditionExpression: aws.String("phone = :phone"),
		FilterExpression:       aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":phone":   &types.AttributeValueMemberS{Value: phoneE164},
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("orders: failed to query confirmations for %s: %w", phoneE164, err)
	}
	if len(out.Items) == 0 {
		return nil, ErrConfirmationNotFound
	}
	var rec ConfirmationRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("orders: failed to decode confirmation: %w", err)
	}
	return &rec, nil
}

// Claim atomically transitions pending -> processing. A record no longer in
// pending returns ErrAlreadyClaimed; this is the only safeguard against two
// concurrent replies double-processing one confirmation.
func (s *Store) Claim(ctx context.Context, orderID int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              orderKey(orderID),
		UpdateExpression: aws.String("SET #status = :processing"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":processing": &types.AttributeValueMemberS{Value: string(StatusProcessing)},
			":pending":    &types.AttributeValueMemberS{Value: string(StatusPending)},
		},
		ConditionExpression: aws.String("#status = :pending"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("orders: failed to claim confirmation %d: %w", orderID, err)
	}
	return nil
}

// SetTerminalStatus records the final state and its timestamp.
func (s *Store) SetTerminalStatus(ctx context.Context, orderID int64, status Status) error {
	timestampField := "confirmed_at"
	if status == StatusCancelled {
		timestampField = "cancelled_at"
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              orderKey(orderID),
		UpdateExpression: aws.String("SET #status = :status, #ts = :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#ts":     timestampField,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(order_id)"),
	})
	if err != nil {
		return fmt.Errorf("orders: failed to finalize confirmation %d: %w", orderID, err)
	}
	return nil
}

// AttachMessage stores the provider message id of the confirmation template
// send, so delivery-status callbacks can find the record later.
func (s *Store) AttachMessage(ctx context.Context, orderID int64, providerMessageID string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              orderKey(orderID),
		UpdateExpression: aws.String("SET message_id = :mid, message_status = :status"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":mid":    &types.AttributeValueMemberS{Value: providerMessageID},
			":status": &types.AttributeValueMemberS{Value: "sent"},
		},
		ConditionExpression: aws.String("attribute_exists(order_id)"),
	})
	if err != nil {
		return fmt.Errorf("orders: failed to attach message to %d: %w", orderID, err)
	}
	return nil
}

// UpdateMessageStatusByProviderID fans a delivery-status update out to the
// confirmation carrying that message id. Unknown ids are a no-op.
func (s *Store) UpdateMessageStatusByProviderID(ctx context.Context, providerMessageID, status string) error {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(messageIDIndex),
		KeyConditionExpression: aws.String("message_id = :mid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":mid": &types.AttributeValueMemberS{Value: providerMessageID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("orders: failed to look up confirmation by message %s: %w", providerMessageID, err)
	}
	if len(out.Items) == 0 {
		return ErrConfirmationNotFound
	}
	var rec ConfirmationRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return fmt.Errorf("orders: failed to decode confirmation: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              orderKey(rec.OrderID),
		UpdateExpression: aws.String("SET message_status = :status"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
		},
	})
	if err != nil {
		return fmt.Errorf("orders: failed to update message status for %d: %w", rec.OrderID, err)
	}
	return nil
}

// Touch updates last_message_at on the confirmation for an order number,
// best-effort; callers ignore the error beyond logging.
func (s *Store) Touch(ctx context.Context, orderNumber int64) error {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(orderNumberIndex),
		KeyConditionExpression: aws.String("order_number = :num"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":num": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", orderNumber)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("orders: failed to look up order %d: %w", orderNumber, err)
	}
	if len(out.Items) == 0 {
		return ErrConfirmationNotFound
	}
	var rec ConfirmationRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return fmt.Errorf("orders: failed to decode confirmation: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              orderKey(rec.OrderID),
		UpdateExpression: aws.String("SET last_message_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("orders: failed to touch order %d: %w", orderNumber, err)
	}
	return nil
}

func orderKey(orderID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", orderID)},
	}
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
