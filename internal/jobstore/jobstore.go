// Package jobstore persists the lifecycle of asynchronous triage turns in
// DynamoDB so the chat surface can poll for the plan after the worker absorbs
// the LLM latency. Records expire after a day via the table's TTL attribute.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bronn-dev/dentalbridge/internal/orchestrator"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

const jobTTL = 24 * time.Hour

// Status is the lifecycle of a triage job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrJobNotFound indicates the requested job id does not exist.
var ErrJobNotFound = errors.New("jobstore: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Record is the persisted state of one queued turn.
type Record struct {
	JobID        string                           `dynamodbav:"jobId" json:"job_id"`
	TenantID     string                           `dynamodbav:"tenantId,omitempty" json:"tenant_id,omitempty"`
	Status       Status                           `dynamodbav:"status" json:"status"`
	Plan         *orchestrator.OrchestrationPlan  `dynamodbav:"plan,omitempty" json:"plan,omitempty"`
	ErrorMessage string                           `dynamodbav:"errorMessage,omitempty" json:"error_message,omitempty"`
	CreatedAt    string                           `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt    string                           `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt    int64                            `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Store persists job records to DynamoDB.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

// NewStore builds a store over the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("jobstore: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("jobstore: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, tableName: tableName, logger: logger, now: time.Now}
}

// PutPending inserts a new pending record. Duplicate ids are rejected by the
// conditional put, making enqueue idempotent.
func (s *Store) PutPending(ctx context.Context, jobID, tenantID string) error {
	if jobID == "" {
		return errors.New("jobstore: job id required")
	}
	now := s.now().UTC()
	rec := Record{
		JobID:     jobID,
		TenantID:  tenantID,
		Status:    StatusPending,
		CreatedAt: now.Format(time.RFC3339Nano),
		UpdatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: now.Add(jobTTL).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("jobstore: marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("jobstore: put pending: %w", err)
	}
	return nil
}

// MarkCompleted stores the finished plan on the record.
func (s *Store) MarkCompleted(ctx context.Context, jobID string, plan *orchestrator.OrchestrationPlan) error {
	if jobID == "" {
		return errors.New("jobstore: job id required")
	}
	planAttr, err := attributevalue.Marshal(plan)
	if err != nil {
		return fmt.Errorf("jobstore: marshal plan: %w", err)
	}
	return s.update(ctx, jobID, StatusCompleted, map[string]types.AttributeValue{
		":plan": planAttr,
	}, "SET #status = :status, plan = :plan, updatedAt = :updated")
}

// MarkFailed stores the failure reason on the record.
func (s *Store) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	if jobID == "" {
		return errors.New("jobstore: job id required")
	}
	return s.update(ctx, jobID, StatusFailed, map[string]types.AttributeValue{
		":error": &types.AttributeValueMemberS{Value: errMsg},
	}, "SET #status = :status, errorMessage = :error, updatedAt = :updated")
}

func (s *Store) update(ctx context.Context, jobID string, status Status, extra map[string]types.AttributeValue, expr string) error {
	values := map[string]types.AttributeValue{
		":status":  &types.AttributeValueMemberS{Value: string(status)},
		":updated": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
	}
	for k, v := range extra {
		values[k] = v
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("jobstore: update %s: %w", status, err)
	}
	return nil
}

// Get loads one record or ErrJobNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, errors.New("jobstore: job id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrJobNotFound
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("jobstore: unmarshal record: %w", err)
	}
	return &rec, nil
}
