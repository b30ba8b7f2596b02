package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	appconfig "github.com/bronn-dev/dentalbridge/internal/config"
	triageworker "github.com/bronn-dev/dentalbridge/internal/worker/triage"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dentalbridge triage worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := triageworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("triage worker exited", "error", err)
		os.Exit(1)
	}
}
