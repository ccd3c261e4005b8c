package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arjunrk/bsewatch/internal/model"
)

// FeedSource fetches one batch of announcements.
type FeedSource interface {
	Fetch(ctx context.Context) (*model.Batch, error)
}

// BatchHandler receives fetched batches.
type BatchHandler interface {
	HandleBatch(batch *model.Batch) error
}

// BatchHandlerFunc is a function adapter for BatchHandler.
type BatchHandlerFunc func(*model.Batch) error

func (f BatchHandlerFunc) HandleBatch(b *model.Batch) error {
	return f(b)
}

// Scheduler states.
const (
	stateIdle int32 = iota
	statePolling
)

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 10s)
	// Timeout bounds one fetch cycle. Size it for the whole source fallback
	// chain, not a single attempt (default: 40s).
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  40 * time.Second,
	}
}

// Poller periodically fetches the announcement feed and hands each batch to
// the handler. Fetch and handler errors are logged and the loop continues;
// nothing short of Stop halts polling.
type Poller struct {
	cfg     Config
	source  FeedSource
	handler BatchHandler
	logger  *slog.Logger

	state  atomic.Int32
	cycles atomic.Int64
	errs   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source FeedSource, handler BatchHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger,
	}
}

// Polling reports whether the scheduler is running.
func (p *Poller) Polling() bool {
	return p.state.Load() == statePolling
}

// Cycles returns the number of completed poll cycles.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

// Errors returns the number of failed poll cycles.
func (p *Poller) Errors() int64 {
	return p.errs.Load()
}

// Start begins the polling loop. Calling Start on a running poller is a
// no-op.
func (p *Poller) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(stateIdle, statePolling) {
		p.logger.Debug("poller already running")
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop halts the loop. A cycle already in flight finishes but its result is
// discarded.
func (p *Poller) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(statePolling, stateIdle) {
		return nil
	}

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll runs one fetch/handle cycle.
func (p *Poller) poll() {
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	batch, err := p.source.Fetch(ctx)
	if err != nil {
		p.errs.Add(1)
		p.logger.Warn("poll cycle failed", "err", err)
		return
	}

	// A stop during the fetch wins over the fetched data.
	if p.state.Load() != statePolling {
		p.logger.Debug("discarding batch fetched during shutdown")
		return
	}

	if p.handler != nil {
		if err := p.handler.HandleBatch(batch); err != nil {
			p.errs.Add(1)
			p.logger.Warn("batch handler failed", "err", err)
			return
		}
	}

	p.cycles.Add(1)
	p.logger.Debug("poll cycle complete",
		"records", len(batch.Records),
		"duration", time.Since(start),
	)
}
