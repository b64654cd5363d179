package qualifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/leadscout/leadscout/internal/gemini"
	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/prompts"
)

// ErrUnparseableResponse signals that a model response could not be parsed
// as the expected JSON shape, even after truncation recovery.
var ErrUnparseableResponse = errors.New("model response is not parseable JSON")

// Lead is one candidate flagged by batch screening.
type Lead struct {
	Username string `json:"username"`
	Priority string `json:"priority"`
	Pain     string `json:"pain"`
}

// ScreenResult is the outcome of one batch-screening call.
type ScreenResult struct {
	PotentialLeads             []Lead
	FilteringStats             map[string]int
	RecoveredFromTruncatedJSON bool
}

// Screener performs the cheap first-pass triage over a whole chat's recent
// messages, shortlisting senders worth detailed qualification.
type Screener struct {
	llm    gemini.Client
	niche  string
	logger *slog.Logger
}

// NewScreener creates a batch screener bound to a language-generation client.
func NewScreener(llm gemini.Client, niche string, logger *slog.Logger) *Screener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Screener{
		llm:    llm,
		niche:  niche,
		logger: logger.With("component", "screener"),
	}
}

// Screen sends the whole message dump to the model in one call and parses
// the shortlist. A truncated response is recovered object by object
// instead of being discarded.
func (s *Screener) Screen(ctx context.Context, chatName string, messages []parser.Message) (*ScreenResult, error) {
	if s.llm == nil {
		return nil, gemini.ErrUnavailable
	}
	if len(messages) == 0 {
		return &ScreenResult{}, nil
	}

	prompt, err := prompts.Build(prompts.BatchAnalysis, map[string]string{
		"chat_name": chatName,
		"niche":     s.niche,
		"messages":  formatMessageDump(messages),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build batch analysis prompt: %w", err)
	}

	raw, err := s.llm.Invoke(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("batch screening call failed: %w", err)
	}

	return s.parseScreenResponse(ctx, raw)
}

func (s *Screener) parseScreenResponse(ctx context.Context, raw string) (*ScreenResult, error) {
	payload := extractJSONPayload(raw)

	var parsed struct {
		PotentialLeads []Lead         `json:"potential_leads"`
		FilteringStats map[string]int `json:"filtering_stats"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
		return &ScreenResult{
			PotentialLeads: parsed.PotentialLeads,
			FilteringStats: parsed.FilteringStats,
		}, nil
	}

	if looksTruncated(payload, "potential_leads") {
		leads := recoverLeads(payload)
		if len(leads) > 0 {
			s.logger.WarnContext(ctx, "Recovered leads from truncated screening response",
				"recovered", len(leads))
			return &ScreenResult{
				PotentialLeads:             leads,
				RecoveredFromTruncatedJSON: true,
			}, nil
		}
	}

	s.logger.ErrorContext(ctx, "Screening response is not parseable JSON", "raw_response", raw)
	return nil, fmt.Errorf("%w: batch screening", ErrUnparseableResponse)
}

// FlaggedUsernames adapts Screen to the shortlist form the member parser
// consumes. The chat name is taken from the messages themselves.
func (s *Screener) FlaggedUsernames(ctx context.Context, messages []parser.Message) ([]string, error) {
	chatName := ""
	if len(messages) > 0 {
		chatName = messages[0].ChatUsername
	}

	result, err := s.Screen(ctx, chatName, messages)
	if err != nil {
		return nil, err
	}

	usernames := make([]string, 0, len(result.PotentialLeads))
	for _, lead := range result.PotentialLeads {
		name := strings.TrimPrefix(strings.TrimSpace(lead.Username), "@")
		if name != "" {
			usernames = append(usernames, name)
		}
	}
	return usernames, nil
}

// recoverLeads extracts every complete lead object found before the
// truncation point.
func recoverLeads(payload string) []Lead {
	var leads []Lead
	for _, obj := range completeObjects(payload, "potential_leads") {
		var lead Lead
		if err := json.Unmarshal([]byte(obj), &lead); err != nil {
			continue
		}
		if lead.Username != "" {
			leads = append(leads, lead)
		}
	}
	return leads
}

// formatMessageDump serializes messages as one line each, with a running
// per-user message count so the model can see who is active.
func formatMessageDump(messages []parser.Message) string {
	counts := make(map[string]int, len(messages))
	for _, m := range messages {
		counts[m.Username]++
	}

	var sb strings.Builder
	for _, m := range messages {
		date := "unknown date"
		if m.Date != nil {
			date = m.Date.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&sb, "@%s (%d messages total) [%s]: %s\n", m.Username, counts[m.Username], date, m.Text)
	}
	return sb.String()
}
