package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/bronn-dev/dentalbridge/internal/config"
	"github.com/bronn-dev/dentalbridge/internal/directory"
	"github.com/bronn-dev/dentalbridge/internal/orchestrator"
	"github.com/bronn-dev/dentalbridge/internal/schedule"
	"github.com/bronn-dev/dentalbridge/internal/triage"
	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

// BuildLLMClient picks the extraction backend from config. Gemini is the
// primary, Bedrock the fallback; "auto" uses whichever is configured and
// wraps both when both are.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (triage.LLMClient, error) {
	var gemini triage.LLMClient
	if cfg.GeminiAPIKey != "" && cfg.LLMProvider != "bedrock" {
		client, err := triage.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		gemini = client
	}

	var bedrock triage.LLMClient
	if cfg.BedrockModelID != "" && cfg.LLMProvider != "gemini" {
		bedrock = triage.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	switch {
	case gemini != nil && bedrock != nil:
		logger.Info("llm extraction backend", "primary", "gemini", "fallback", "bedrock")
		return triage.NewFallbackLLMClient(gemini, bedrock, cfg.BedrockModelID, logger), nil
	case gemini != nil:
		logger.Info("llm extraction backend", "primary", "gemini")
		return gemini, nil
	case bedrock != nil:
		logger.Info("llm extraction backend", "primary", "bedrock", "model", cfg.BedrockModelID)
		return bedrock, nil
	default:
		return nil, errors.New("bootstrap: no llm backend configured, set GEMINI_API_KEY or BEDROCK_MODEL_ID")
	}
}

// BuildTriagePipeline assembles the analyzer-to-scheduler pipeline on top of
// a pgx pool and returns the orchestration service with the directory store
// it was built over.
func BuildTriagePipeline(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, awsCfg aws.Config, logger *logging.Logger) (*orchestrator.Service, *directory.Store, error) {
	llmClient, err := BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, nil, err
	}

	model := cfg.GeminiModel
	if cfg.LLMProvider == "bedrock" {
		model = cfg.BedrockModelID
	}
	analyzer := triage.NewAnalyzer(llmClient, logger,
		triage.WithExtractionModel(model),
		triage.WithExtractionTimeout(cfg.LLMTimeout),
	)

	dir := directory.NewStore(pool, logger)
	cal := schedule.NewCalendarStore(pool)
	engine := schedule.NewEngine(dir, cal, logger)
	router := schedule.NewRouter(engine, dir, logger)
	emergency := schedule.NewEmergencyFinder(dir, cal, logger)

	orch := orchestrator.NewOrchestrator(dir, router, emergency, logger)
	return orchestrator.NewService(analyzer, orch), dir, nil
}
