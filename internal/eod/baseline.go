// Package eod maintains the end-of-day closing price baseline from the
// exchange's daily bhavcopy file. The baseline gives each announcement a
// reference price even when intraday lookups fail.
package eod

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arjunrk/bsewatch/internal/config"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// Baseline holds the most recent complete closing-price table.
type Baseline struct {
	cfg        config.EODConfig
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	prices map[string]float64
	asOf   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Baseline.
type Option func(*Baseline)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *Baseline) {
		b.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Baseline) {
		b.logger = logger
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Baseline) {
		b.now = now
	}
}

// NewBaseline creates a baseline registry from EOD config.
func NewBaseline(cfg config.EODConfig, opts ...Option) *Baseline {
	b := &Baseline{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
		prices:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start loads the baseline and begins the periodic refresh. A failed initial
// load is logged, not fatal; the refresh loop keeps retrying.
func (b *Baseline) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.Refresh(b.ctx); err != nil {
		b.logger.Warn("initial baseline load failed", "err", err)
	}

	if b.cfg.Refresh > 0 {
		b.wg.Add(1)
		go b.refreshLoop()
	}

	b.logger.Info("eod baseline started", "symbols", b.Count())
	return nil
}

// Stop halts the refresh loop.
func (b *Baseline) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("eod baseline stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close returns the baseline closing price for a symbol.
func (b *Baseline) Close(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	price, ok := b.prices[strings.ToUpper(symbol)]
	return price, ok
}

// Count returns the number of symbols in the current baseline.
func (b *Baseline) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.prices)
}

// AsOf returns the trading date of the current baseline.
func (b *Baseline) AsOf() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asOf
}

func (b *Baseline) refreshLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if err := b.Refresh(b.ctx); err != nil {
				b.logger.Error("baseline refresh failed", "err", err)
			}
		}
	}
}

// Refresh walks back from yesterday looking for the most recent trading
// day's file. Weekends are skipped outright; a missing file means a holiday
// and an undersized table means a partial publish, both of which step back
// another day.
func (b *Baseline) Refresh(ctx context.Context) error {
	today := b.now().In(ist)

	for offset := 1; offset <= b.cfg.MaxDaysBack; offset++ {
		day := today.AddDate(0, 0, -offset)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		prices, err := b.fetchDay(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Debug("no usable bhavcopy", "date", day.Format("2006-01-02"), "err", err)
			continue
		}

		b.mu.Lock()
		b.prices = prices
		b.asOf = day
		b.mu.Unlock()

		b.logger.Info("baseline loaded",
			"date", day.Format("2006-01-02"),
			"symbols", len(prices),
		)
		return nil
	}

	return fmt.Errorf("no valid trading day within %d days", b.cfg.MaxDaysBack)
}

// fetchDay downloads and parses one day's file.
func (b *Baseline) fetchDay(ctx context.Context, day time.Time) (map[string]float64, error) {
	target := fmt.Sprintf("%s/BhavCopy_BSE_CM_0_0_0_%s_F_0000.CSV",
		strings.TrimRight(b.cfg.BaseURL, "/"), day.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	prices, err := parseBhavcopy(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(prices) < b.cfg.MinSymbols {
		return nil, fmt.Errorf("incomplete table: %d symbols", len(prices))
	}
	return prices, nil
}

// parseBhavcopy extracts symbol -> closing price from the CSV. Column
// positions vary across publishes, so they are located by header name.
func parseBhavcopy(r io.Reader) (map[string]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	symCol, closeCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "TckrSymb":
			symCol = i
		case "ClsPric":
			closeCol = i
		}
	}
	if symCol < 0 || closeCol < 0 {
		return nil, fmt.Errorf("unexpected csv format: missing TckrSymb/ClsPric")
	}

	prices := make(map[string]float64)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if symCol >= len(record) || closeCol >= len(record) {
			continue
		}

		symbol := strings.ToUpper(strings.TrimSpace(record[symCol]))
		if symbol == "" {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[closeCol]), 64)
		if err != nil || price <= 0 {
			continue
		}
		prices[symbol] = price
	}
	return prices, nil
}

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
