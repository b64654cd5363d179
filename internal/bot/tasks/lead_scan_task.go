package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leadscout/leadscout/internal/gemini"
	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/prompts"
	"github.com/leadscout/leadscout/internal/qualifier"
	"github.com/leadscout/leadscout/internal/report"
	"github.com/leadscout/leadscout/internal/source"
)

const perChatTimeout = 15 * time.Minute

// newLeadScanTask creates the scheduled task that runs the full discovery
// pipeline over every configured chat: parse, qualify, report, collect
// pains, and send the admin digest.
func newLeadScanTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "lead_scan")

	return func(ctx context.Context) error {
		chats := deps.Config.Scheduler.Tasks["lead_scan"].Chats
		if len(chats) == 0 {
			log.WarnContext(ctx, "Lead scan has no chats configured, nothing to do")
			return nil
		}

		log.InfoContext(ctx, "Starting scheduled lead scan", "chats", len(chats))
		startTime := time.Now()

		var failures []string
		for _, chat := range chats {
			err := scanChat(ctx, deps, log, chat)

			// An unauthenticated session needs an out-of-band fix and
			// affects every chat equally, so stop the whole task.
			if errors.Is(err, source.ErrAuthorizationRequired) {
				msg := "Lead scan stopped: message-source session is not authorized. Reconnect the session and re-run."
				if notifyErr := deps.Notifier.NotifyAdmin(ctx, msg); notifyErr != nil {
					log.ErrorContext(ctx, "Failed to notify admin about authorization", "error", notifyErr)
				}
				return err
			}
			if err != nil {
				log.ErrorContext(ctx, "Chat scan failed", "chat", chat, "error", err)
				failures = append(failures, chat)
			}
		}

		log.InfoContext(ctx, "Scheduled lead scan finished",
			"chats", len(chats), "failed", len(failures), "duration", time.Since(startTime))

		if len(failures) > 0 {
			return fmt.Errorf("lead scan failed for %d of %d chats: %s",
				len(failures), len(chats), strings.Join(failures, ", "))
		}
		return nil
	}
}

// scanChat runs the pipeline for one chat under its own timeout.
func scanChat(ctx context.Context, deps TaskDeps, log *slog.Logger, chat string) error {
	ctx, cancel := context.WithTimeout(ctx, perChatTimeout)
	defer cancel()

	parserCfg := deps.Config.Parser
	candidates, messages, err := deps.Parser.Parse(ctx, chat, parser.Options{
		UseBatchAnalysis: parserCfg.UseBatchAnalysis,
		OnlyWithChannels: parserCfg.OnlyWithChannels,
	})
	if err != nil {
		return err
	}

	leads, skipped := qualifyCandidates(ctx, deps, log, chat, candidates)

	paths, err := deps.Reports.Write(ctx, chat, leads)
	if err != nil {
		return fmt.Errorf("failed to write report for %s: %w", chat, err)
	}

	collected, err := deps.Collector.Collect(ctx, messages, chat)
	if err != nil {
		// Pain collection failing should not discard the qualified leads
		// already reported; surface it in the digest instead.
		log.ErrorContext(ctx, "Pain collection failed", "chat", chat, "error", err)
		collected = -1
	}

	digest := formatScanDigest(chat, len(candidates), len(leads), skipped, collected, paths)
	if err := deps.Notifier.NotifyAdmin(ctx, digest); err != nil {
		log.ErrorContext(ctx, "Failed to send scan digest", "chat", chat, "error", err)
	}
	return nil
}

// qualifyCandidates runs detailed qualification per candidate, isolating
// per-candidate failures, and keeps everyone at or above the configured
// minimum score.
func qualifyCandidates(ctx context.Context, deps TaskDeps, log *slog.Logger, chat string, candidates []parser.Candidate) ([]report.Lead, int) {
	var leads []report.Lead
	skipped := 0

	for _, cand := range candidates {
		result, err := deps.Qualifier.Qualify(ctx, cand, "")

		// No client or no template means every remaining candidate would
		// fail the same way; stop qualifying this chat.
		if errors.Is(err, gemini.ErrUnavailable) || errors.Is(err, prompts.ErrNotFound) {
			log.ErrorContext(ctx, "Qualification unavailable, stopping chat scan early",
				"chat", chat, "error", err)
			break
		}
		if err != nil {
			log.WarnContext(ctx, "Candidate qualification failed, skipping",
				"chat", chat, "username", cand.Username, "error", err)
			skipped++
			continue
		}

		if result.Score < deps.Config.Qualifier.MinScore {
			continue
		}
		leads = append(leads, leadFromResult(chat, cand, result))
	}
	return leads, skipped
}

// leadFromResult flattens a candidate and its qualification into a report
// entry.
func leadFromResult(chat string, cand parser.Candidate, result *qualifier.Result) report.Lead {
	replyLink := ""
	for _, m := range cand.MessagesWithMetadata {
		if m.Link != "" {
			replyLink = m.Link
			break
		}
	}

	return report.Lead{
		Chat:            chat,
		Username:        cand.Username,
		BusinessType:    result.BusinessType,
		Scale:           result.Scale,
		Score:           result.Score,
		LLMScore:        result.LLMScore,
		PenaltyApplied:  result.PenaltyApplied,
		Pains:           result.Pains,
		ProductIdea:     result.ProductIdea,
		OutreachMessage: result.OutreachMessage,
		Reasoning:       result.Reasoning,
		FreshestAge:     result.Freshness.FreshestAge,
		ReplyLink:       replyLink,
	}
}

func formatScanDigest(chat string, candidates, leads, skipped, collected int, paths []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scan of %s finished.\n", chat)
	fmt.Fprintf(&sb, "Candidates: %d, qualified leads: %d, skipped: %d.\n", candidates, leads, skipped)
	if collected >= 0 {
		fmt.Fprintf(&sb, "New pains collected: %d.\n", collected)
	} else {
		sb.WriteString("Pain collection failed, see logs.\n")
	}
	if len(paths) > 0 {
		fmt.Fprintf(&sb, "Report: %s", strings.Join(paths, ", "))
	}
	return sb.String()
}
