// feedprobe runs one fetch against the announcement feed and prints what
// the extraction rules make of each record. Useful for checking connectivity
// and regex coverage without starting the watcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/extract"
	"github.com/arjunrk/bsewatch/internal/feed"
)

func main() {
	configPath := flag.String("config", "configs/watcher.local.yaml", "path to config file")
	timeout := flag.Duration("timeout", 30*time.Second, "fetch timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	client := feed.NewClient(cfg.Feed, feed.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	batch, err := client.Fetch(ctx)
	if err != nil {
		logger.Error("fetch failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("fetched %d records at %s\n\n", len(batch.Records), batch.PolledAt.Format(time.RFC3339))

	for i, rec := range batch.Records {
		amount := extract.Amount(rec.Headline, rec.More)
		symbol := extract.Symbol(rec.DetailURL)

		fmt.Printf("[%d] %s (%d)\n", i, rec.CompanyName, rec.ScripCode)
		fmt.Printf("    headline: %s\n", rec.Headline)
		if amount != "" {
			fmt.Printf("    amount:   %s\n", amount)
		}
		if symbol != "" {
			fmt.Printf("    symbol:   %s\n", symbol)
		}
		fmt.Printf("    id:       %s\n\n", rec.ID())
	}
}
