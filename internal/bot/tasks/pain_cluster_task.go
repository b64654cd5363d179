package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadscout/leadscout/internal/gemini"
)

const clusteringTimeout = 10 * time.Minute

// newPainClusteringTask creates the scheduled task that assigns every
// unclustered pain to a topic cluster and refreshes cluster statistics.
func newPainClusteringTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "pain_clustering")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled pain clustering task...")
		startTime := time.Now()

		ctx, cancel := context.WithTimeout(ctx, clusteringTimeout)
		defer cancel()

		assigned, err := deps.Clusterer.ClusterNewPains(ctx)
		duration := time.Since(startTime)

		if err != nil {
			if errors.Is(err, gemini.ErrUnavailable) {
				log.ErrorContext(ctx, "Clustering skipped: no language model client", "duration", duration)
			} else {
				log.ErrorContext(ctx, "Pain clustering task failed", "error", err, "duration", duration)
			}
			return fmt.Errorf("pain clustering failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled pain clustering task completed",
			"assigned", assigned, "duration", duration)

		if assigned > 0 {
			msg := fmt.Sprintf("Pain clustering finished: %d pain(s) assigned to clusters.", assigned)
			if notifyErr := deps.Notifier.NotifyAdmin(ctx, msg); notifyErr != nil {
				log.ErrorContext(ctx, "Failed to send clustering digest", "error", notifyErr)
			}
		}
		return nil
	}
}
