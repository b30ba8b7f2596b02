package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// S3API is the subset of the S3 client the exporter uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter copies a day of audit events to S3 as NDJSON, one object per
// tenant per day. An empty bucket disables export.
type Exporter struct {
	audit  *AuditService
	s3     S3API
	bucket string
	logger *logging.Logger
}

// NewExporter wires an audit exporter.
func NewExporter(audit *AuditService, client S3API, bucket string, logger *logging.Logger) *Exporter {
	if audit == nil {
		panic("compliance: audit service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Exporter{audit: audit, s3: client, bucket: bucket, logger: logger}
}

// Enabled reports whether export is configured.
func (e *Exporter) Enabled() bool {
	return e != nil && e.bucket != "" && e.s3 != nil
}

// ExportDay writes every audit event of one tenant-day to S3. Returns the
// number of exported events.
func (e *Exporter) ExportDay(ctx context.Context, tenantID string, day time.Time) (int, error) {
	if !e.Enabled() {
		return 0, nil
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	events, err := e.audit.Query(ctx, Filter{
		TenantID: tenantID,
		Since:    start,
		Until:    start.Add(24 * time.Hour),
	})
	if err != nil {
		return 0, fmt.Errorf("compliance: export query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	for _, event := range events {
		line, err := json.Marshal(event)
		if err != nil {
			return 0, fmt.Errorf("compliance: marshal export line: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	key := fmt.Sprintf("audit/v1/%s/%s.jsonl", tenantID, start.Format("2006-01-02"))
	_, err = e.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("compliance: s3 put %s: %w", key, err)
	}

	e.logger.Info("audit export written", "tenant_id", tenantID, "s3_key", key, "events", len(events))
	return len(events), nil
}
