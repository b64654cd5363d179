// Package pains implements pain extraction and incremental clustering:
// atomic problem statements are pulled out of chat messages via the
// language model, persisted with duplicate protection, and grouped into
// persistent topic clusters with running statistics.
package pains

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/database"
	"github.com/leadscout/leadscout/internal/gemini"
	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/prompts"
)

// extractedPain is one element of the model's extraction response.
// source_message_index points into the batch the prompt was built from.
type extractedPain struct {
	SourceMessageIndex int    `json:"source_message_index"`
	Text               string `json:"text"`
	Quote              string `json:"quote"`
	Category           string `json:"category"`
	Intensity          string `json:"intensity"`
	BusinessType       string `json:"business_type"`
}

// Collector extracts pains from message batches and persists them.
type Collector struct {
	llm    gemini.Client
	store  database.Store
	cfg    config.PainsConfig
	delay  parser.DelayFunc
	logger *slog.Logger
}

// NewCollector creates a pain collector.
func NewCollector(llm gemini.Client, store database.Store, cfg config.PainsConfig, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	minDelay, maxDelay := cfg.BatchDelayRange()
	return &Collector{
		llm:    llm,
		store:  store,
		cfg:    cfg,
		delay:  randomBatchDelay(minDelay, maxDelay),
		logger: logger.With("component", "pain_collector"),
	}
}

// WithDelay overrides the inter-batch delay. Tests use this to run
// without sleeping.
func (c *Collector) WithDelay(d parser.DelayFunc) *Collector {
	c.delay = d
	return c
}

// Collect extracts pains from the messages and inserts the new ones,
// returning the count of newly inserted rows. Disabled collection and an
// empty message list are no-ops. The whole run commits once; duplicate
// checks within the run see earlier batches' pending inserts. Batches
// whose model response cannot be parsed are skipped, not fatal.
func (c *Collector) Collect(ctx context.Context, messages []parser.Message, chatName string) (int, error) {
	if !c.cfg.Enabled || len(messages) == 0 {
		return 0, nil
	}
	if c.llm == nil {
		return 0, gemini.ErrUnavailable
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start collection run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	batchSize := c.cfg.BatchSize
	for start := 0; start < len(messages); start += batchSize {
		end := start + batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		n, err := c.collectBatch(ctx, tx, batch, chatName)
		if err != nil {
			return 0, err
		}
		inserted += n

		if end < len(messages) {
			if err := c.delay(ctx); err != nil {
				return 0, fmt.Errorf("collection run interrupted: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit collection run: %w", err)
	}

	c.logger.InfoContext(ctx, "Pain collection complete",
		"chat", chatName, "messages", len(messages), "inserted", inserted)
	return inserted, nil
}

// collectBatch runs extraction for one batch and inserts the non-duplicate
// results. Parse failures skip the batch; only store and template errors
// propagate.
func (c *Collector) collectBatch(ctx context.Context, tx database.RunTx, batch []parser.Message, chatName string) (int, error) {
	prompt, err := prompts.Build(prompts.PainExtraction, map[string]string{
		"chat_name": chatName,
		"messages":  formatBatch(batch),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to build extraction prompt: %w", err)
	}

	raw, err := c.llm.Invoke(ctx, "", prompt)
	if err != nil {
		c.logger.WarnContext(ctx, "Extraction call failed, skipping batch", "chat", chatName, "error", err)
		return 0, nil
	}

	extracted, ok := parseExtractionResponse(raw)
	if !ok {
		c.logger.WarnContext(ctx, "Extraction response unparseable, skipping batch",
			"chat", chatName, "raw_response", raw)
		return 0, nil
	}

	inserted := 0
	for _, ep := range extracted {
		if ep.SourceMessageIndex < 0 || ep.SourceMessageIndex >= len(batch) {
			c.logger.DebugContext(ctx, "Extracted pain references no real message, skipping",
				"index", ep.SourceMessageIndex, "batch_size", len(batch))
			continue
		}
		msg := batch[ep.SourceMessageIndex]

		quote := NormalizeText(ep.Quote)
		existing, err := tx.FindPain(ctx, c.cfg.OwnerID, chatName, int64(msg.MessageID), quote)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			continue
		}

		pain := &database.Pain{
			UserID:          c.cfg.OwnerID,
			ProgramID:       c.cfg.ProgramID,
			Text:            NormalizeText(ep.Text),
			OriginalQuote:   quote,
			Category:        NormalizeCategory(ep.Category),
			Intensity:       NormalizeIntensity(ep.Intensity),
			SourceChat:      chatName,
			SourceMessageID: int64(msg.MessageID),
			MessageDate:     normalizeDate(msg.Date),
		}
		if bt := strings.TrimSpace(ep.BusinessType); bt != "" && !strings.EqualFold(bt, "null") {
			pain.BusinessType = sql.NullString{String: bt, Valid: true}
		}

		if err := tx.InsertPain(ctx, pain); err != nil {
			return 0, err
		}
		inserted++
	}
	return inserted, nil
}

// parseExtractionResponse accepts either a bare JSON array or an object
// wrapping it under a "pains" key.
func parseExtractionResponse(raw string) ([]extractedPain, bool) {
	payload := stripFences(raw)

	var arr []extractedPain
	if err := json.Unmarshal([]byte(payload), &arr); err == nil {
		return arr, true
	}

	var wrapped struct {
		Pains []extractedPain `json:"pains"`
	}
	if err := json.Unmarshal([]byte(payload), &wrapped); err == nil {
		return wrapped.Pains, true
	}
	return nil, false
}

// stripFences removes an optional fenced code block wrapper.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// formatBatch numbers the batch messages for index-based references.
func formatBatch(batch []parser.Message) string {
	var sb strings.Builder
	for i, m := range batch {
		date := "unknown date"
		if m.Date != nil {
			date = m.Date.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&sb, "[%d] @%s [%s]: %s\n", i, m.Username, date, m.Text)
	}
	return sb.String()
}

// randomBatchDelay returns a DelayFunc sleeping a uniform random duration
// in [min, max], interruptible by context cancellation.
func randomBatchDelay(min, max time.Duration) parser.DelayFunc {
	return func(ctx context.Context) error {
		d := min
		if max > min {
			d = min + time.Duration(rand.Int63n(int64(max-min)))
		}
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}
