// Package ingest implements the deduplication ledger: the process-lifetime
// seen set and the newest-first feed of normalized announcements.
package ingest

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/extract"
	"github.com/arjunrk/bsewatch/internal/model"
)

// Result is the outcome of ingesting one batch.
type Result struct {
	// New holds records unseen before this batch, in batch order. Empty for
	// the seeding batch.
	New []model.Announcement

	// All holds every normalized record of the batch, in batch order,
	// including ones that were already known.
	All []model.Announcement

	// Seeded is true when this batch initialized an empty ledger.
	Seeded bool
}

// Ledger owns the seen set and the feed. Ingest processes one batch at a
// time; the mutation runs to completion under the lock, so overlapping polls
// interleave safely and per-id ingestion stays idempotent.
type Ledger struct {
	mu     sync.Mutex
	seen   map[uuid.UUID]struct{}
	feed   []model.Announcement
	seeded bool

	seedMode string
	logger   *slog.Logger
}

// NewLedger creates an empty ledger with the given seed mode
// (config.SeedModeAll or config.SeedModeAmountOnly).
func NewLedger(seedMode string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if seedMode == "" {
		seedMode = config.SeedModeAll
	}
	return &Ledger{
		seen:     make(map[uuid.UUID]struct{}),
		seedMode: seedMode,
		logger:   logger,
	}
}

// Ingest normalizes a batch, filters previously seen records, and prepends
// genuinely new ones to the feed. The first batch after a reset seeds the
// ledger: records populate the feed and seen set but are not reported as
// new, so startup does not flood the notifier.
func (l *Ledger) Ingest(batch *model.Batch) Result {
	if batch == nil || len(batch.Records) == 0 {
		return Result{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seeding := !l.seeded

	var res Result
	res.Seeded = seeding
	res.All = make([]model.Announcement, 0, len(batch.Records))

	// Unseen records, in batch order, to be spliced onto the feed head.
	var fresh []model.Announcement

	for _, raw := range batch.Records {
		a := normalize(raw, batch)
		res.All = append(res.All, a)

		if _, dup := l.seen[a.ID]; dup {
			continue
		}
		l.seen[a.ID] = struct{}{}

		// The amount-only filter keeps a seed record out of the feed, not
		// out of the seen set; the next poll of the same content must stay
		// quiet.
		if seeding && l.seedMode == config.SeedModeAmountOnly && a.Amount == "" {
			continue
		}

		if !seeding {
			a.IsNew = true
		}
		fresh = append(fresh, a)
	}

	if len(fresh) > 0 {
		l.feed = append(fresh, l.feed...)
	}
	l.seeded = true

	if !seeding {
		res.New = fresh
	}
	return res
}

func normalize(raw model.RawAnnouncement, batch *model.Batch) model.Announcement {
	return model.Announcement{
		ID:          raw.ID(),
		ScripCode:   raw.ScripCode,
		CompanyName: raw.CompanyName,
		Subject:     raw.Subject,
		Headline:    raw.Headline,
		More:        raw.More,
		NewsDate:    raw.NewsDate,
		DetailURL:   raw.DetailURL,
		Category:    raw.Category,
		ReceivedAt:  batch.PolledAt,
		Amount:      extract.Amount(raw.Headline, raw.More),
		Symbol:      extract.Symbol(raw.DetailURL),
	}
}

// Feed returns a snapshot of the feed, newest-first.
func (l *Ledger) Feed() []model.Announcement {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Announcement, len(l.feed))
	copy(out, l.feed)
	return out
}

// SeenCount returns the size of the seen set.
func (l *Ledger) SeenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// Reset clears the seen set and the feed. This is the explicit user clear;
// the next ingested batch seeds the ledger again.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = make(map[uuid.UUID]struct{})
	l.feed = nil
	l.seeded = false
	l.logger.Info("ledger reset")
}
