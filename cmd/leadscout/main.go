// Package main contains the entrypoint for the LeadScout application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/leadscout/leadscout/internal/bot"
	"github.com/leadscout/leadscout/internal/bot/tasks"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/database"
	"github.com/leadscout/leadscout/internal/gemini"
	"github.com/leadscout/leadscout/internal/logger"
	"github.com/leadscout/leadscout/internal/pains"
	"github.com/leadscout/leadscout/internal/parser"
	"github.com/leadscout/leadscout/internal/qualifier"
	"github.com/leadscout/leadscout/internal/report"
	"github.com/leadscout/leadscout/internal/source"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// db, ai client, pipeline, bot, scheduler), handles graceful shutdown, and
// returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	tg, err := bot.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	// The MTProto user session is provisioned out of band; until one is
	// wired in, scans surface the re-authorization flow to the admin.
	srcClient := source.Unconfigured()

	screener := qualifier.NewScreener(gemClient, cfg.Qualifier.Niche, log)
	tDeps := tasks.TaskDeps{
		Logger:    log,
		Store:     store,
		Config:    cfg,
		Parser:    parser.New(srcClient, screener, cfg.Parser, log),
		Qualifier: qualifier.New(gemClient, cfg.Qualifier, log),
		Collector: pains.NewCollector(gemClient, store, cfg.Pains, log),
		Clusterer: pains.NewClusterer(gemClient, store, cfg.Pains, log),
		Reports:   report.NewWriter(cfg.Report, log),
		Notifier:  bot.NewDigest(tg, cfg.Telegram.AdminChatID, log),
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, cfg, db, store, gemClient, tg, sched)

	log.Info("Starting LeadScout...")
	runErr := app.Run(ctx)
	log.Info("Run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
