package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bronn-dev/dentalbridge/internal/orchestrator"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

type fakeDynamo struct {
	items      map[string]map[string]types.AttributeValue
	putErr     error
	lastUpdate *dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) string {
	if v, ok := item["jobId"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := itemKey(in.Item)
	if _, exists := f.items[key]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	key := itemKey(in.Key)
	item, exists := f.items[key]
	if !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.lastUpdate = in
	if status, ok := in.ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS); ok {
		item["status"] = status
	}
	if plan, ok := in.ExpressionAttributeValues[":plan"]; ok {
		item["plan"] = plan
	}
	if msg, ok := in.ExpressionAttributeValues[":error"]; ok {
		item["errorMessage"] = msg
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, exists := f.items[itemKey(in.Key)]
	if !exists {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func newTestStore(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	client := newFakeDynamo()
	store := NewStore(client, "triage_jobs", logging.New("error"))
	store.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return store, client
}

func TestPendingThenCompletedLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.PutPending(ctx, "job-1", "tenant-1"); err != nil {
		t.Fatalf("put pending: %v", err)
	}

	rec, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusPending || rec.TenantID != "tenant-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	plan := &orchestrator.OrchestrationPlan{SuggestedAction: orchestrator.PlanClarify}
	if err := store.MarkCompleted(ctx, "job-1", plan); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	rec, err = store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get after complete: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
	if rec.Plan == nil || rec.Plan.SuggestedAction != orchestrator.PlanClarify {
		t.Fatalf("plan not persisted: %+v", rec.Plan)
	}
}

func TestPutPendingRejectsDuplicates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.PutPending(ctx, "job-1", ""); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := store.PutPending(ctx, "job-1", ""); err == nil {
		t.Fatal("expected duplicate put to fail")
	}
}

func TestMarkFailedStoresMessage(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.PutPending(ctx, "job-2", ""); err != nil {
		t.Fatalf("put pending: %v", err)
	}
	if err := store.MarkFailed(ctx, "job-2", "llm unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rec, err := store.Get(ctx, "job-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusFailed || rec.ErrorMessage != "llm unavailable" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestGetUnknownJob(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRecordMarshalRoundTrip(t *testing.T) {
	rec := Record{JobID: "j", Status: StatusPending, CreatedAt: "now", UpdatedAt: "now"}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Record
	if err := attributevalue.UnmarshalMap(item, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.JobID != "j" || back.Status != StatusPending {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}
