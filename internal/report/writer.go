// Package report writes qualified leads to durable output: an append-only
// JSONL log for machine consumption and per-run markdown reports for
// humans.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadscout/leadscout/internal/config"
)

// Lead is one qualified lead as it appears in reports.
type Lead struct {
	RunID           string    `json:"run_id"`
	GeneratedAt     time.Time `json:"generated_at"`
	Chat            string    `json:"chat"`
	Username        string    `json:"username"`
	BusinessType    string    `json:"business_type,omitempty"`
	Scale           string    `json:"scale,omitempty"`
	Score           int       `json:"score"`
	LLMScore        int       `json:"llm_score"`
	PenaltyApplied  bool      `json:"penalty_applied"`
	Pains           []string  `json:"pains,omitempty"`
	ProductIdea     string    `json:"product_idea,omitempty"`
	OutreachMessage string    `json:"outreach_message,omitempty"`
	Reasoning       string    `json:"reasoning,omitempty"`
	FreshestAge     string    `json:"freshest_age,omitempty"`
	ReplyLink       string    `json:"reply_link,omitempty"`
}

// Writer persists qualified leads in the configured formats.
type Writer struct {
	dir     string
	formats map[string]bool
	logger  *slog.Logger
}

// NewWriter creates a report writer. The output directory is created on
// first write.
func NewWriter(cfg config.ReportConfig, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	formats := make(map[string]bool, len(cfg.Formats))
	for _, f := range cfg.Formats {
		formats[f] = true
	}
	return &Writer{
		dir:     cfg.OutputDir,
		formats: formats,
		logger:  logger.With("component", "report_writer"),
	}
}

// Write persists one run's leads and returns the paths written. An empty
// lead list writes nothing. Each call gets its own run id, stamped into
// every lead.
func (w *Writer) Write(ctx context.Context, chat string, leads []Lead) ([]string, error) {
	if len(leads) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", w.dir, err)
	}

	runID := uuid.NewString()
	now := time.Now().UTC()
	for i := range leads {
		leads[i].RunID = runID
		leads[i].GeneratedAt = now
	}

	var paths []string

	if w.formats["json"] {
		path, err := w.appendJSONL(leads)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if w.formats["md"] {
		path, err := w.writeMarkdown(chat, runID, now, leads)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	w.logger.InfoContext(ctx, "Report written",
		"chat", chat, "run_id", runID, "leads", len(leads), "paths", paths)
	return paths, nil
}

// appendJSONL appends one JSON object per lead to the shared leads log.
func (w *Writer) appendJSONL(leads []Lead) (string, error) {
	path := filepath.Join(w.dir, "leads.jsonl")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	for _, lead := range leads {
		if err := enc.Encode(lead); err != nil {
			return "", fmt.Errorf("failed to append lead to %s: %w", path, err)
		}
	}
	return path, nil
}

// writeMarkdown renders one run's leads as a standalone report file.
func (w *Writer) writeMarkdown(chat, runID string, now time.Time, leads []Lead) (string, error) {
	name := fmt.Sprintf("leads_%s_%s_%s.md",
		sanitizeChatName(chat), now.Format("20060102_150405"), runID[:8])
	path := filepath.Join(w.dir, name)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Leads from %s\n\n", chat)
	fmt.Fprintf(&sb, "Run %s at %s. %d lead(s).\n\n", runID, now.Format(time.RFC3339), len(leads))

	for _, lead := range leads {
		fmt.Fprintf(&sb, "## @%s — score %d/10\n\n", lead.Username, lead.Score)
		if lead.PenaltyApplied {
			fmt.Fprintf(&sb, "Penalty applied (raw model score %d).\n\n", lead.LLMScore)
		}
		if lead.BusinessType != "" {
			fmt.Fprintf(&sb, "- Business: %s (%s)\n", lead.BusinessType, lead.Scale)
		}
		for _, pain := range lead.Pains {
			fmt.Fprintf(&sb, "- Pain: %s\n", pain)
		}
		if lead.ProductIdea != "" {
			fmt.Fprintf(&sb, "- Offer: %s\n", lead.ProductIdea)
		}
		if lead.FreshestAge != "" {
			fmt.Fprintf(&sb, "- Last active: %s\n", lead.FreshestAge)
		}
		if lead.ReplyLink != "" {
			fmt.Fprintf(&sb, "- Reply: %s\n", lead.ReplyLink)
		}
		if lead.OutreachMessage != "" {
			fmt.Fprintf(&sb, "\n> %s\n", lead.OutreachMessage)
		}
		sb.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func sanitizeChatName(chat string) string {
	chat = strings.TrimPrefix(chat, "@")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, chat)
}
