// notify-lambda delivers booking notifications from an SQS-fed Lambda
// instead of the in-process outbox relay. Each SQS record body is one outbox
// entry; a failed send returns the batch item so SQS redelivers it.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bronn-dev/dentalbridge/cmd/mainconfig"
	"github.com/bronn-dev/dentalbridge/internal/app/bootstrap"
	appconfig "github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/directory"
	"github.com/bronn-dev/dentalbridge/internal/events"
	"github.com/bronn-dev/dentalbridge/internal/notify"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dir := directory.NewStore(pool, logger)
	sender := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	svc := notify.NewService(sender, dir, cfg.OpsAlertEmail, logger)

	lambda.Start(func(ctx context.Context, evt lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
		return handle(ctx, svc, logger, evt)
	})
}

func handle(ctx context.Context, svc *notify.Service, logger *logging.Logger, evt lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var failures []lambdaevents.SQSBatchItemFailure
	for _, record := range evt.Records {
		var entry events.OutboxEntry
		if err := json.Unmarshal([]byte(record.Body), &entry); err != nil {
			// A poison message would loop forever; drop it with a log line.
			logger.Error("undecodable outbox entry dropped", "error", err, "message_id", record.MessageId)
			continue
		}
		if err := svc.Handle(ctx, entry); err != nil {
			logger.Error("notification delivery failed", "error", err, "type", entry.Type, "event_id", entry.ID)
			failures = append(failures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return lambdaevents.SQSEventResponse{BatchItemFailures: failures}, nil
}
