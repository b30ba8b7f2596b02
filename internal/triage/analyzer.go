package triage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bronn-dev/dentalbridge/pkg/logging"
)

const (
	defaultExtractionModel   = "gemini-2.0-flash"
	defaultExtractionTimeout = 20 * time.Second
	extractionMaxTokens      = 1500
	extractionHistoryLimit   = 6
	extractionSnippetLimit   = 300
)

const (
	emptyInputPrompt = "Please describe your dental concern so I can assist you."
	safeReasoning    = "Clinical routing criteria met."
)

// defaultClarifications is the generic question set used when extraction is
// unavailable and the gate has no profile to work from.
var defaultClarifications = []string{
	"Could you describe your symptoms in more detail?",
	"Where exactly is the pain or problem located?",
	"On a scale of 1-10, how severe is the pain?",
	"Are you experiencing any swelling or bleeding?",
}

// safeClarifications replaces model output that tripped the forbidden-content
// scan. They carry no clinical content of their own.
var safeClarifications = []string{
	"I'd like to understand your symptoms better so I can connect you with the right specialist.",
	"Could you describe what you're experiencing?",
}

// Analyzer turns a patient message into a gated IntentResult. The LLM only
// extracts features; every routing verdict comes from the deterministic gate.
type Analyzer struct {
	client  LLMClient
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithExtractionModel overrides the model passed to the LLM client.
func WithExtractionModel(model string) AnalyzerOption {
	return func(a *Analyzer) {
		if model != "" {
			a.model = model
		}
	}
}

// WithExtractionTimeout overrides the per-call LLM deadline.
func WithExtractionTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAnalyzer builds an Analyzer. The client is required.
func NewAnalyzer(client LLMClient, logger *logging.Logger, opts ...AnalyzerOption) *Analyzer {
	if client == nil {
		panic("triage: nil llm client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Analyzer{
		client:  client,
		model:   defaultExtractionModel,
		timeout: defaultExtractionTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the tiered intake pipeline for one turn.
//
// Deterministic tiers run first: empty input, red-flag phrases, then short
// greetings. Everything else goes to the extractor, merges with the prior
// issues by position, folds in structured answers, and lets the gate decide
// per issue. An empty message with prior context skips the LLM entirely and
// just re-gates the merged state.
func (a *Analyzer) Analyze(ctx context.Context, text string, history []ChatMessage, answers map[string]any, prior []ClinicalIssue) IntentResult {
	stripped := strings.TrimSpace(text)

	if stripped == "" {
		if len(prior) == 0 && len(answers) == 0 {
			result := newIntentResult()
			result.RequiresClarification = true
			result.ClarificationQuestions = []string{emptyInputPrompt}
			result.OverallUrgency = UrgencyLow
			triageDecisionTotal.WithLabelValues(string(ActionUnknown), "empty").Inc()
			return result
		}
		merged := ApplyAnswersToIssues(cloneIssues(prior), answers)
		return a.resolve(merged, history, SentimentNeutral, false, "merge")
	}

	if HasRedFlag(stripped) {
		issue := ClinicalIssue{
			SymptomCluster:    stripped,
			Urgency:           UrgencyEmergency,
			Reasoning:         "Red flag phrase detected.",
			SuspectedCategory: "Emergency",
		}
		AssessCompleteness(&issue)
		result := newIntentResult()
		result.Issues = []ClinicalIssue{issue}
		result.OverallUrgency = UrgencyEmergency
		result.SafetyFlag = true
		result.ActionType = ActionEscalate
		triageDecisionTotal.WithLabelValues(string(ActionEscalate), "red_flag").Inc()
		return result
	}

	if len(prior) == 0 {
		if action, ok := ClassifyChatter(stripped); ok {
			result := newIntentResult()
			result.ActionType = action
			result.OverallUrgency = UrgencyLow
			triageDecisionTotal.WithLabelValues(string(action), "chatter").Inc()
			return result
		}
	}

	payload, unsafe, err := a.extract(ctx, stripped, history)
	if err != nil {
		a.logger.Error("intent extraction failed", "error", err)
		fallback := newIntentResult()
		fallback.Issues = ApplyAnswersToIssues(cloneIssues(prior), answers)
		for i := range fallback.Issues {
			AssessCompleteness(&fallback.Issues[i])
		}
		fallback.RequiresClarification = true
		fallback.ClarificationQuestions = append([]string{}, defaultClarifications...)
		fallback.ActionType = ActionClarify
		fallback.OverallUrgency = UrgencyLow
		triageDecisionTotal.WithLabelValues(string(ActionClarify), "fallback").Inc()
		return fallback
	}

	extracted := payload.toIssues()
	merged := ApplyAnswersToIssues(MergeIssues(prior, extracted), answers)
	if unsafe {
		for i := range merged {
			merged[i].Reasoning = safeReasoning
		}
	}
	return a.resolve(merged, history, normalizeSentiment(payload.PatientSentiment), unsafe, "llm")
}

// resolve gates every issue and folds the per-issue verdicts into one turn
// result. Escalation beats clarification beats routing; an unsafe extraction
// downgrades anything short of escalation to a safe clarification.
func (a *Analyzer) resolve(issues []ClinicalIssue, history []ChatMessage, sentiment string, unsafe bool, tier string) IntentResult {
	result := newIntentResult()
	result.PatientSentiment = sentiment

	if len(issues) == 0 {
		result.RequiresClarification = true
		result.ClarificationQuestions = append([]string{}, defaultClarifications...)
		result.ActionType = ActionClarify
		result.OverallUrgency = UrgencyLow
		triageDecisionTotal.WithLabelValues(string(ActionClarify), tier).Inc()
		return result
	}

	lastAssistant := lastAssistantContent(history)
	escalate := false
	clarify := false
	questions := []string{}
	urgency := UrgencyLow
	for i := range issues {
		switch Decide(&issues[i]) {
		case ActionEscalate:
			escalate = true
			issues[i].Urgency = UrgencyEmergency
		case ActionClarify:
			clarify = true
			if question := NextQuestion(issues[i], lastAssistant); question != "" {
				questions = appendUnique(questions, question)
			}
		}
		urgency = MaxUrgency(urgency, issues[i].Urgency)
	}
	result.Issues = issues

	switch {
	case escalate:
		result.ActionType = ActionEscalate
		result.SafetyFlag = true
		result.OverallUrgency = UrgencyEmergency
	case unsafe:
		result.ActionType = ActionClarify
		result.RequiresClarification = true
		result.ClarificationQuestions = append([]string{}, safeClarifications...)
		result.OverallUrgency = UrgencyMedium
	case clarify:
		result.ActionType = ActionClarify
		result.RequiresClarification = true
		result.ClarificationQuestions = questions
		result.OverallUrgency = urgency
	default:
		result.ActionType = ActionRoute
		result.CompletionStatus = CompletionComplete
		result.OverallUrgency = urgency
	}
	triageDecisionTotal.WithLabelValues(string(result.ActionType), tier).Inc()
	return result
}

// extract calls the LLM and parses its JSON. The bool reports whether the
// raw output tripped the forbidden-content scan; the payload is still parsed
// in that case so extracted features are not lost.
func (a *Analyzer) extract(ctx context.Context, text string, history []ChatMessage) (*extractionPayload, bool, error) {
	ctx, span := llmTracer.Start(ctx, "triage.extract")
	defer span.End()

	req := LLMRequest{
		Model:        a.model,
		System:       []string{extractorSystemPrompt},
		Messages:     []ChatMessage{{Role: ChatRoleUser, Content: buildExtractionPrompt(text, history)}},
		MaxTokens:    extractionMaxTokens,
		Temperature:  0,
		ResponseMIME: "application/json",
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.Complete(callCtx, req)
	latency := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmLatency.WithLabelValues(a.model, status).Observe(latency.Seconds())
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Float64("dentalbridge.llm.latency_ms", float64(latency.Milliseconds())),
			attribute.String("dentalbridge.llm.model", a.model),
			attribute.Int("dentalbridge.llm.input_tokens", int(resp.Usage.InputTokens)),
			attribute.Int("dentalbridge.llm.output_tokens", int(resp.Usage.OutputTokens)),
			attribute.Int("dentalbridge.llm.total_tokens", int(resp.Usage.TotalTokens)),
			attribute.String("dentalbridge.llm.stop_reason", resp.StopReason),
		)
	}
	if err != nil {
		span.RecordError(err)
		a.logger.Warn("llm extraction failed", "model", a.model, "latency_ms", latency.Milliseconds(), "error", err)
		return nil, false, err
	}
	if resp.Usage.InputTokens > 0 {
		llmTokensTotal.WithLabelValues(a.model, "input").Add(float64(resp.Usage.InputTokens))
	}
	if resp.Usage.OutputTokens > 0 {
		llmTokensTotal.WithLabelValues(a.model, "output").Add(float64(resp.Usage.OutputTokens))
	}
	if resp.Usage.TotalTokens > 0 {
		llmTokensTotal.WithLabelValues(a.model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	raw := strings.TrimSpace(resp.Text)
	unsafe := HasForbiddenContent(raw)
	if unsafe {
		a.logger.Warn("llm output failed safety validation", "model", a.model)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		a.logger.Warn("llm extraction returned malformed json", "model", a.model, "error", err)
		return nil, false, err
	}
	return &payload, unsafe, nil
}

type extractionPayload struct {
	Issues []struct {
		SymptomCluster     string   `json:"symptom_cluster"`
		Urgency            string   `json:"urgency"`
		Reasoning          string   `json:"reasoning"`
		HasPain            bool     `json:"has_pain"`
		Severity           *int     `json:"severity"`
		DurationDays       *int     `json:"duration_days"`
		ThermalSensitivity bool     `json:"thermal_sensitivity"`
		BitingPain         bool     `json:"biting_pain"`
		Swelling           bool     `json:"swelling"`
		VisibleSwelling    bool     `json:"visible_swelling"`
		AirwayCompromise   bool     `json:"airway_compromise"`
		Trauma             bool     `json:"trauma"`
		Bleeding           bool     `json:"bleeding"`
		ImpactedWisdom     bool     `json:"impacted_wisdom"`
		RequiresSedation   bool     `json:"requires_sedation"`
		Location           string   `json:"location"`
		ReportedSymptoms   []string `json:"reported_symptoms"`
		SuspectedCategory  string   `json:"suspected_category"`
	} `json:"issues"`
	PatientSentiment string `json:"patient_sentiment"`
}

func (p *extractionPayload) toIssues() []ClinicalIssue {
	issues := make([]ClinicalIssue, 0, len(p.Issues))
	for _, raw := range p.Issues {
		cluster := strings.TrimSpace(raw.SymptomCluster)
		if cluster == "" {
			cluster = "Unknown symptoms"
		}
		issue := ClinicalIssue{
			SymptomCluster:     cluster,
			Urgency:            normalizeUrgency(raw.Urgency),
			Reasoning:          raw.Reasoning,
			HasPain:            raw.HasPain,
			Severity:           raw.Severity,
			DurationDays:       raw.DurationDays,
			ThermalSensitivity: raw.ThermalSensitivity,
			BitingPain:         raw.BitingPain,
			Swelling:           raw.Swelling,
			VisibleSwelling:    raw.VisibleSwelling,
			AirwayCompromise:   raw.AirwayCompromise,
			Trauma:             raw.Trauma,
			Bleeding:           raw.Bleeding,
			ImpactedWisdom:     raw.ImpactedWisdom,
			RequiresSedation:   raw.RequiresSedation,
			Location:           strings.TrimSpace(raw.Location),
			ReportedSymptoms:   raw.ReportedSymptoms,
			SuspectedCategory:  strings.TrimSpace(raw.SuspectedCategory),
		}
		issues = append(issues, issue.normalized())
	}
	return issues
}

// buildExtractionPrompt prepends recent conversation context to the current
// message. Long turns are truncated to keep token cost bounded.
func buildExtractionPrompt(text string, history []ChatMessage) string {
	if len(history) == 0 {
		return text
	}
	recent := history
	if len(recent) > extractionHistoryLimit {
		recent = recent[len(recent)-extractionHistoryLimit:]
	}
	var b strings.Builder
	b.WriteString("CONVERSATION HISTORY:\n")
	for i, msg := range recent {
		content := msg.Content
		if len(content) > extractionSnippetLimit {
			content = content[:extractionSnippetLimit] + "..."
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(msg.Role))
		b.WriteString(": ")
		b.WriteString(content)
	}
	b.WriteString("\n\nCURRENT USER MESSAGE:\n")
	b.WriteString(text)
	return b.String()
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.Index(raw, "\n"); idx >= 0 {
		raw = raw[idx+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
}

func lastAssistantContent(history []ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == ChatRoleAssistant {
			return history[i].Content
		}
	}
	return ""
}

func cloneIssues(issues []ClinicalIssue) []ClinicalIssue {
	cloned := make([]ClinicalIssue, len(issues))
	for i, issue := range issues {
		cloned[i] = issue.Clone()
	}
	return cloned
}

