// llmprobe exercises the configured extraction backends with a real dental
// triage exchange so a developer can check API keys, model access, and
// fallback wiring before running the full stack.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bronn-dev/dentalbridge/internal/triage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages := []triage.ChatMessage{
		{Role: triage.ChatRoleUser, Content: "I've had a throbbing pain in my lower left molar for three days."},
		{Role: triage.ChatRoleAssistant, Content: "I'm sorry to hear that. On a scale of 1-10, how severe is the pain, and does anything make it worse?"},
		{Role: triage.ChatRoleUser, Content: "About a 7. Cold water makes it much worse and it wakes me up at night."},
	}

	req := triage.LLMRequest{
		System:      []string{"You are a dental intake assistant. Summarize the patient's complaint in one sentence."},
		Messages:    messages,
		MaxTokens:   200,
		Temperature: 0,
	}

	fmt.Println("LLM backend probe")
	fmt.Println("-----------------")

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		fmt.Println("[gemini] skipped (GEMINI_API_KEY not set)")
	} else {
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			model = "gemini-2.0-flash"
		}
		fmt.Printf("[gemini] testing %s...\n", model)
		client, err := triage.NewGeminiLLMClient(ctx, geminiKey, model)
		if err != nil {
			fmt.Printf("[gemini] client error: %v\n", err)
		} else {
			probe(ctx, client, req)
		}
	}

	if os.Getenv("BEDROCK_MODEL_ID") == "" {
		fmt.Println("[bedrock] skipped (BEDROCK_MODEL_ID not set)")
	} else {
		fmt.Println("[bedrock] probe via the fallback client is exercised by the API process;")
		fmt.Println("[bedrock] watch its logs for \"primary LLM failed, attempting fallback\".")
	}
}

func probe(ctx context.Context, client triage.LLMClient, req triage.LLMRequest) {
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Printf("  error after %v: %v\n", elapsed, err)
		return
	}
	fmt.Printf("  ok in %v\n", elapsed)
	fmt.Printf("  response: %s\n", resp.Text)
	fmt.Printf("  tokens: in=%d out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
}
