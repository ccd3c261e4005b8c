package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/model"
	"github.com/arjunrk/bsewatch/internal/pipe"
)

// fakeDB records queued batches and replies with canned command tags.
type fakeDB struct {
	mu      sync.Mutex
	batches []int
	tags    []pgconn.CommandTag
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b.Len())
	return &fakeBatchResults{tags: f.tags}
}

type fakeBatchResults struct {
	tags []pgconn.CommandTag
	idx  int
}

func (f *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if f.idx >= len(f.tags) {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	tag := f.tags[f.idx]
	f.idx++
	return tag, nil
}

func (f *fakeBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (f *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (f *fakeBatchResults) Close() error             { return nil }

func testConfig() config.StoreConfig {
	return config.StoreConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 16}
}

func TestWriter_Transform(t *testing.T) {
	receivedAt := time.Date(2025, 6, 3, 10, 15, 0, 0, time.UTC)
	ann := model.Announcement{
		ID:          model.RawAnnouncement{NewsID: "n-1", ScripCode: 500325}.ID(),
		ScripCode:   500325,
		CompanyName: "Acme Industries Ltd",
		Subject:     "Award of Order",
		Headline:    "Order worth Rs. 28.75 Crore received",
		NewsDate:    "2025-06-03T10:12:04",
		Category:    "Company Update",
		DetailURL:   "https://www.bseindia.com/stock-share-price/acme/ACME/500325/",
		Amount:      "Rs. 28.75 Crore",
		Symbol:      "ACME",
		ReceivedAt:  receivedAt,
	}

	r := transform(ann)

	if r.ID != ann.ID.String() {
		t.Errorf("ID = %s, want %s", r.ID, ann.ID)
	}
	if r.ScripCode != 500325 {
		t.Errorf("ScripCode = %d, want 500325", r.ScripCode)
	}
	if r.Company != "Acme Industries Ltd" {
		t.Errorf("Company = %s, want Acme Industries Ltd", r.Company)
	}
	if r.Amount != "Rs. 28.75 Crore" {
		t.Errorf("Amount = %s, want Rs. 28.75 Crore", r.Amount)
	}
	if r.Symbol != "ACME" {
		t.Errorf("Symbol = %s, want ACME", r.Symbol)
	}
	if r.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", r.ReceivedAt, receivedAt.UnixMicro())
	}
}

func TestWriter_Lifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.FlushInterval = 100 * time.Millisecond
	input := pipe.NewBuffer[model.Announcement](16)

	w := NewWriter(cfg, input, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWriter_AddAccumulatesBatch(t *testing.T) {
	input := pipe.NewBuffer[model.Announcement](16)
	w := NewWriter(testConfig(), input, nil, nil)

	w.add(model.Announcement{Headline: "one"})
	w.add(model.Announcement{Headline: "two"})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 2 {
		t.Errorf("batch length = %d, want 2", batchLen)
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	cfg := testConfig()
	cfg.BatchSize = 3
	input := pipe.NewBuffer[model.Announcement](16)
	w := NewWriter(cfg, input, db, nil)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	for i := 0; i < 3; i++ {
		w.add(model.Announcement{ScripCode: int64(i)})
	}

	db.mu.Lock()
	batches := len(db.batches)
	size := 0
	if batches > 0 {
		size = db.batches[0]
	}
	db.mu.Unlock()

	if batches != 1 || size != 3 {
		t.Fatalf("got %d batches (first size %d), want 1 batch of 3", batches, size)
	}

	stats := w.Stats()
	if stats.Inserts != 3 || stats.Flushes != 1 {
		t.Errorf("stats = %+v, want 3 inserts in 1 flush", stats)
	}
}

func TestWriter_ConflictsCounted(t *testing.T) {
	db := &fakeDB{tags: []pgconn.CommandTag{
		pgconn.NewCommandTag("INSERT 0 1"),
		pgconn.NewCommandTag("INSERT 0 0"), // duplicate id
	}}
	cfg := testConfig()
	input := pipe.NewBuffer[model.Announcement](16)
	w := NewWriter(cfg, input, db, nil)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	w.add(model.Announcement{ScripCode: 1})
	w.add(model.Announcement{ScripCode: 2})
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
}

func TestWriter_Stats_InitialZero(t *testing.T) {
	input := pipe.NewBuffer[model.Announcement](16)
	w := NewWriter(testConfig(), input, nil, nil)

	stats := w.Stats()
	if stats.Inserts != 0 || stats.Errors != 0 {
		t.Errorf("initial stats = %+v, want zeros", stats)
	}
}
