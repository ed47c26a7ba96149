package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/finddoc-chatbot/internal/chat"
	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// sessionRecord is the DynamoDB item. expiresAt is the table's TTL attribute;
// DynamoDB deletes lazily, so Load also checks it.
type sessionRecord struct {
	SessionID string `dynamodbav:"sessionId"`
	State     string `dynamodbav:"state"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore keeps state in a DynamoDB table keyed by sessionId.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	tracer    trace.Tracer
	logger    *logging.Logger
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		tracer:    otel.Tracer("finddoc.internal.session.dynamodb"),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *DynamoStore) Load(ctx context.Context, sessionID string) (*chat.State, error) {
	if sessionID == "" {
		return nil, errors.New("session: sessionID required")
	}
	ctx, span := s.tracer.Start(ctx, "session.dynamodb.load")
	defer span.End()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to fetch state: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode item: %w", err)
	}
	if rec.ExpiresAt > 0 && s.now().Unix() >= rec.ExpiresAt {
		s.logger.Debug("session: ignoring expired dynamodb item", "session_id", sessionID)
		return nil, nil
	}
	return decodeState([]byte(rec.State))
}

func (s *DynamoStore) Save(ctx context.Context, sessionID string, state *chat.State, ttl time.Duration) error {
	if state == nil {
		return s.Delete(ctx, sessionID)
	}
	if sessionID == "" {
		return errors.New("session: sessionID required")
	}
	ctx, span := s.tracer.Start(ctx, "session.dynamodb.save")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}
	now := s.now().UTC()
	rec := sessionRecord{
		SessionID: sessionID,
		State:     string(data),
		UpdatedAt: now.Format(time.RFC3339Nano),
	}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl).Unix()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist state: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session: sessionID required")
	}
	ctx, span := s.tracer.Start(ctx, "session.dynamodb.delete")
	defer span.End()

	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(sessionID),
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete state: %w", err)
	}
	return nil
}

func (s *DynamoStore) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
	}
}
