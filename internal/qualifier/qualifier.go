// Package qualifier implements the two LLM-mediated classification stages
// of the lead pipeline: cheap batch screening over a whole chat, and
// detailed per-candidate qualification with deterministic score-penalty
// rules on top of the model's raw score.
package qualifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/gemini"
	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/prompts"
)

const scoreCap = 6

// vagueMarkers are phrases in the model's own reasoning that indicate a
// hedged or unsupported score. Matching is case-insensitive.
var vagueMarkers = []string{
	"insufficient information",
	"not enough information",
	"hard to tell",
	"difficult to say",
	"unclear whether",
	"no concrete",
	"no specific",
	"might have",
	"possibly has",
	"seems to",
	"vague",
}

// Qualification is the model's structured answer for one candidate.
type Qualification struct {
	BusinessType    string   `json:"business_type"`
	Scale           string   `json:"scale"`
	Pains           []string `json:"pains"`
	ProductIdea     string   `json:"product_idea"`
	OutreachMessage string   `json:"outreach_message"`
	Score           int      `json:"score"`
	Reasoning       string   `json:"reasoning"`
}

// FreshnessSummary aggregates the recency of a candidate's source messages.
type FreshnessSummary struct {
	TierCounts     map[parser.Tier]int
	CanReplyInChat bool
	FreshestAge    string
}

// Result is a finished qualification: the model's answer plus the
// deterministic post-processing. Score never exceeds LLMScore.
type Result struct {
	Qualification

	LLMScore       int
	PenaltyApplied bool
	Freshness      FreshnessSummary
}

// Qualifier performs detailed qualification of single candidates.
type Qualifier struct {
	llm    gemini.Client
	cfg    config.QualifierConfig
	logger *slog.Logger
}

// New creates a qualifier bound to a language-generation client.
func New(llm gemini.Client, cfg config.QualifierConfig, logger *slog.Logger) *Qualifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Qualifier{
		llm:    llm,
		cfg:    cfg,
		logger: logger.With("component", "qualifier"),
	}
}

// Qualify builds a dossier for one candidate, asks the model for a
// structured qualification, and applies the penalty policy. enrichment is
// optional free text (channel metadata, web mentions). No retries happen
// here; retry policy belongs to the caller.
func (q *Qualifier) Qualify(ctx context.Context, cand parser.Candidate, enrichment string) (*Result, error) {
	if q.llm == nil {
		return nil, gemini.ErrUnavailable
	}

	prompt, err := prompts.Build(prompts.Qualification, map[string]string{
		"niche":                q.cfg.Niche,
		"services_description": q.cfg.ServicesDescription,
		"dossier":              buildDossier(cand),
		"extra_context":        enrichmentOrNone(enrichment),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build qualification prompt: %w", err)
	}

	raw, err := q.llm.Invoke(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("qualification call failed for @%s: %w", cand.Username, err)
	}

	var qual Qualification
	if err := json.Unmarshal([]byte(extractJSONPayload(raw)), &qual); err != nil {
		q.logger.ErrorContext(ctx, "Qualification response is not parseable JSON",
			"username", cand.Username, "raw_response", raw)
		return nil, fmt.Errorf("%w: qualification of @%s", ErrUnparseableResponse, cand.Username)
	}

	result := &Result{
		Qualification: qual,
		LLMScore:      qual.Score,
		Freshness:     summarizeFreshness(cand.MessagesWithMetadata),
	}
	q.applyPenalty(ctx, cand.Username, result)
	return result, nil
}

// applyPenalty caps or zeroes the exposed score when the model's reasoning
// contains vague-claim markers. The raw score survives as LLMScore and the
// exposed score never exceeds it.
func (q *Qualifier) applyPenalty(ctx context.Context, username string, result *Result) {
	reasoning := strings.ToLower(result.Reasoning)
	vague := false
	for _, marker := range vagueMarkers {
		if strings.Contains(reasoning, marker) {
			vague = true
			break
		}
	}
	if !vague {
		return
	}

	switch q.cfg.PenaltyMode {
	case config.PenaltyModeCap:
		if result.Score > scoreCap {
			result.Score = scoreCap
			result.PenaltyApplied = true
		}
	default:
		result.Score = 0
		result.PenaltyApplied = true
	}

	if result.PenaltyApplied {
		q.logger.InfoContext(ctx, "Applied vague-reasoning penalty",
			"username", username, "llm_score", result.LLMScore, "score", result.Score, "mode", q.cfg.PenaltyMode)
	}
}

// buildDossier renders a candidate's profile and sample messages as the
// natural-language block the qualification prompt embeds. Messages with
// freshness metadata are preferred; plain samples are the fallback.
func buildDossier(cand parser.Candidate) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Username: @%s\n", cand.Username)
	if name := strings.TrimSpace(cand.FirstName + " " + cand.LastName); name != "" {
		fmt.Fprintf(&sb, "Name: %s\n", name)
	}
	if cand.Bio != "" {
		fmt.Fprintf(&sb, "Bio: %s\n", cand.Bio)
	}
	if cand.HasChannel {
		fmt.Fprintf(&sb, "Personal channel: %s\n", cand.ChannelUsername)
	}
	fmt.Fprintf(&sb, "Messages in %s: %d\n", cand.SourceChat, cand.MessagesInChat)

	sb.WriteString("Sample messages:\n")
	if len(cand.MessagesWithMetadata) > 0 {
		for _, m := range cand.MessagesWithMetadata {
			fmt.Fprintf(&sb, "- [%s, %s] %s\n", m.Freshness, m.AgeDisplay, m.Text)
		}
	} else {
		for _, text := range cand.SampleMessages {
			fmt.Fprintf(&sb, "- %s\n", text)
		}
	}

	return sb.String()
}

func enrichmentOrNone(enrichment string) string {
	enrichment = strings.TrimSpace(enrichment)
	if enrichment == "" {
		return "none"
	}
	return enrichment
}

// summarizeFreshness counts messages per tier and records whether any
// message carries a reply-capable deep link.
func summarizeFreshness(messages []parser.Message) FreshnessSummary {
	summary := FreshnessSummary{TierCounts: make(map[parser.Tier]int)}

	freshest := parser.TierUnknown
	for _, m := range messages {
		summary.TierCounts[m.Freshness]++
		if m.Link != "" {
			summary.CanReplyInChat = true
		}
		if parser.Hotter(m.Freshness, freshest) {
			freshest = m.Freshness
			summary.FreshestAge = m.AgeDisplay
		}
	}
	return summary
}
