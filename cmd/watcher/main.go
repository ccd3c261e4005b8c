package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/eod"
	"github.com/arjunrk/bsewatch/internal/feed"
	"github.com/arjunrk/bsewatch/internal/ingest"
	"github.com/arjunrk/bsewatch/internal/model"
	"github.com/arjunrk/bsewatch/internal/notify"
	"github.com/arjunrk/bsewatch/internal/pipe"
	"github.com/arjunrk/bsewatch/internal/poller"
	"github.com/arjunrk/bsewatch/internal/pricing"
	"github.com/arjunrk/bsewatch/internal/store"
	"github.com/arjunrk/bsewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/watcher.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Credentials usually live in .env rather than the yaml file.
	_ = godotenv.Load()

	logger.Info("starting watcher",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"poll_interval", cfg.Poller.Interval,
		"seed_mode", cfg.Ingest.SeedMode,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Pipes between the ingestion engine and its consumers
	storeBuf := pipe.NewBuffer[model.Announcement](cfg.Store.BufferSize)
	notifyBuf := pipe.NewBuffer[model.Announcement](64)

	// Optional Postgres sink
	var writer *store.Writer
	if cfg.Database.Postgres.Host != "" {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"database", cfg.Database.Postgres.Name,
		)
		pool, err := store.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer = store.NewWriter(cfg.Store, storeBuf, pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start writer", "error", err)
			os.Exit(1)
		}
		defer stopComponent(writer.Stop, logger, "writer")
	} else {
		logger.Info("persistence disabled (no database host configured)")
	}

	// Feed, ledger, pricing
	feedClient := feed.NewClient(cfg.Feed, feed.WithLogger(logger))
	ledger := ingest.NewLedger(cfg.Ingest.SeedMode, logger)
	lookup := pricing.NewHTTPLookup(cfg.Pricing, cfg.Feed.Timeout, logger)
	quotes := pricing.NewCache(cfg.Pricing.TTL, lookup, pricing.WithCacheLogger(logger))

	// EOD closing-price baseline
	baseline := eod.NewBaseline(cfg.EOD, eod.WithLogger(logger))
	if err := baseline.Start(ctx); err != nil {
		logger.Error("failed to start eod baseline", "error", err)
		os.Exit(1)
	}
	defer stopComponent(baseline.Stop, logger, "eod baseline")

	// Websocket notifier
	hub := notify.NewHub(cfg.Notify, notifyBuf, logger)
	if err := hub.Start(ctx); err != nil {
		logger.Error("failed to start notifier", "error", err)
		os.Exit(1)
	}
	defer stopComponent(hub.Stop, logger, "notifier")

	handler := poller.BatchHandlerFunc(func(batch *model.Batch) error {
		res := ledger.Ingest(batch)

		if writer != nil {
			for _, ann := range res.All {
				storeBuf.Send(ann)
			}
		}

		for _, ann := range res.New {
			notifyBuf.Send(ann)
			evaluate(ctx, logger, quotes, baseline, cfg.Pricing.Budget, ann)
		}

		return nil
	})

	sched := poller.New(poller.Config{
		Interval: cfg.Poller.Interval,
		Timeout:  cfg.Poller.Timeout,
	}, feedClient, handler, logger)

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}
	defer stopComponent(sched.Stop, logger, "poller")

	// Health + websocket HTTP server
	mux := http.NewServeMux()
	mux.Handle(cfg.Notify.Path, hub.Handler())
	mux.HandleFunc("/health", healthHandler(sched, ledger, baseline, hub, writer))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port, "ws_path", cfg.Notify.Path)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("watcher running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("watcher stopped")
}

// evaluate resolves a price for a new announcement and logs the trade size
// the fixed budget affords.
func evaluate(ctx context.Context, logger *slog.Logger, quotes *pricing.Cache, baseline *eod.Baseline, budget float64, ann model.Announcement) {
	quote, err := quotes.Price(ctx, ann.ScripCode, ann.Symbol)
	if err != nil {
		logger.Debug("price lookup error", "scrip", ann.ScripCode, "err", err)
	}

	price := 0.0
	source := ""
	if quote != nil && quote.Resolved() {
		price = quote.Price
		source = quote.Source
	} else if ann.Symbol != "" {
		if closing, ok := baseline.Close(ann.Symbol); ok {
			price = closing
			source = "eod"
		}
	}

	if price <= 0 {
		logger.Info("new announcement (price unavailable)",
			"company", ann.CompanyName,
			"amount", ann.Amount,
			"headline", ann.Headline,
		)
		return
	}

	aff, ok := pricing.Afford(budget, price)
	if !ok {
		return
	}
	logger.Info("new announcement",
		"company", ann.CompanyName,
		"amount", ann.Amount,
		"symbol", ann.Symbol,
		"price", price,
		"price_source", source,
		"affordable_units", aff.Units,
		"budget_remainder", aff.Remainder,
	)
}

// stopComponent runs a Stop func with a bounded timeout.
func stopComponent(stop func(context.Context) error, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("component stop failed", "component", name, "error", err)
	}
}

// healthHandler reports component status as JSON.
func healthHandler(sched *poller.Poller, ledger *ingest.Ledger, baseline *eod.Baseline, hub *notify.Hub, writer *store.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["poller"] = map[string]any{
			"polling": sched.Polling(),
			"cycles":  sched.Cycles(),
			"errors":  sched.Errors(),
		}
		if !sched.Polling() {
			health.Status = "degraded"
		}

		health.Components["ledger"] = map[string]any{
			"seen": ledger.SeenCount(),
		}
		health.Components["eod"] = map[string]any{
			"symbols": baseline.Count(),
			"as_of":   baseline.AsOf().Format("2006-01-02"),
		}
		health.Components["notify"] = map[string]any{
			"clients": hub.ClientCount(),
		}
		if writer != nil {
			stats := writer.Stats()
			health.Components["store"] = map[string]any{
				"inserts":   stats.Inserts,
				"conflicts": stats.Conflicts,
				"errors":    stats.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	}
}
