// The dashboard command runs the realtime ticket dashboard: it loads the
// ticket collection from the API, follows the change feed, and logs the
// collection state and statistics as they evolve. Lines typed on stdin are
// submitted as new tickets.
package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soporte-labs/ticket-dashboard/internal/adapters/secondary/webhook"
	"github.com/soporte-labs/ticket-dashboard/internal/config"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/apiclient"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/feed"
	"github.com/soporte-labs/ticket-dashboard/internal/dashboard/store"
	"github.com/soporte-labs/ticket-dashboard/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateDashboard(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name + "-dashboard",
		Environment: cfg.App.Environment,
	})

	logger.Info("starting dashboard",
		"version", cfg.App.Version,
		"api", cfg.Dashboard.APIBaseURL,
	)

	// 3. Wire the API client, notifier, and change feed
	notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout, logger)
	api := apiclient.New(cfg.Dashboard.APIBaseURL, logger, apiclient.WithNotifier(notifier))
	changeFeed := feed.New(cfg.Dashboard.FeedURL, cfg.Dashboard.AccessKey, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Probe the API before subscribing
	healthCtx, healthCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := api.Health(healthCtx); err != nil {
		logger.Warn("ticket API health check failed", "error", err)
	} else {
		logger.Info("ticket API is healthy")
	}
	healthCancel()

	// 5. Start the ticket store
	ticketStore := store.New(api, changeFeed,
		store.WithLogger(logger),
		store.WithMaxRetries(cfg.Dashboard.MaxRetries),
		store.WithRetryBaseDelay(cfg.Dashboard.RetryBaseDelay),
	)
	ticketStore.Start(ctx)
	defer ticketStore.Close()

	// 6. Submit tickets typed on stdin
	go submitFromStdin(ctx, api, logger)

	// 7. Log state changes until interrupted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticketStore.Updates():
			logState(ticketStore, logger)
		case sig := <-quit:
			logger.Info("shutdown signal received", "signal", sig.String())
			return
		}
	}
}

// logState prints the observable store state as a single structured line.
func logState(s *store.Store, logger *slog.Logger) {
	stats := s.Stats()
	logger.Info("dashboard state",
		"status", string(s.ConnectionStatus()),
		"loading", s.Loading(),
		"tickets", stats.Total,
		"processed", stats.Processed,
		"unprocessed", stats.Unprocessed,
		"by_category", stats.ByCategory,
		"by_sentiment", stats.BySentiment,
	)
	if err := s.Err(); err != nil {
		logger.Error("dashboard load error", "error", err)
	}
}

// submitFromStdin treats every non-empty stdin line as a ticket description.
func submitFromStdin(ctx context.Context, api *apiclient.Client, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		description := strings.TrimSpace(scanner.Text())
		if description == "" {
			continue
		}
		ticket, err := api.CreateTicket(ctx, description)
		if err != nil {
			logger.Error("ticket creation failed", "error", err)
			continue
		}
		logger.Info("ticket submitted", "ticket_id", ticket.ID)
	}
}
