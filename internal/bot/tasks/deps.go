// Package tasks implements the scheduled pipeline tasks: chat scanning
// with qualification and reporting, pain clustering, and database
// maintenance.
package tasks

import (
	"context"
	"log/slog"

	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/database"
	"github.com/leadscout/leadscout/internal/pains"
	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/qualifier"
	"github.com/leadscout/leadscout/internal/report"
)

// Notifier delivers short summaries to the admin chat. Implemented by the
// bot package's digest sender.
type Notifier interface {
	NotifyAdmin(ctx context.Context, text string) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Config    *config.Config
	Parser    *parser.Parser
	Qualifier *qualifier.Qualifier
	Collector *pains.Collector
	Clusterer *pains.Clusterer
	Reports   *report.Writer
	Notifier  Notifier
}
