// Package bootstrap assembles the shared runtime pieces the binaries need:
// Redis, email senders, and the triage pipeline. Keeping construction here
// means the API server and the queue worker cannot drift apart in how they
// wire the same dependencies.
package bootstrap

import (
	"context"
	"crypto/tls"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/notify"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// BuildRedisClient connects to Redis. When required is false a failed ping
// returns nil instead of an error so the caller can degrade (rate limiting
// fails open, webchat sessions fall back to stateless turns).
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, required bool) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if required {
			return nil, err
		}
		logger.Warn("redis unreachable, continuing without it", "addr", cfg.RedisAddr, "error", err)
		return nil, nil
	}
	return client, nil
}

// BuildEmailSender picks the email backend from config: "ses", "sendgrid",
// or the logging stub for anything else.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.EmailFromAddress,
			FromName:         cfg.EmailFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)
		if sender != nil {
			logger.Info("email via SES", "from", cfg.EmailFromAddress)
			return sender
		}
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil {
			logger.Info("email via SendGrid", "from", cfg.EmailFromAddress)
			return sender
		}
		logger.Warn("sendgrid selected but no api key, emails will be logged only")
	}
	return notify.NewStubEmailSender(logger)
}
