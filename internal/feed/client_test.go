package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arjunrk/bsewatch/internal/config"
)

const sampleBatch = `{"Table":[
	{"NEWSID":"n1","SCRIP_CD":500001,"NEWSSUB":"Award of Order","NEWS_DT":"2026-08-28T09:00:00","HEADLINE":"first"},
	{"NEWSID":"n2","SCRIP_CD":500002,"NEWSSUB":"Award of Order","NEWS_DT":"2026-08-28T09:05:00","HEADLINE":"second"},
	{"NEWSID":"n3","SCRIP_CD":500003,"NEWSSUB":"Award of Order","NEWS_DT":"2026-08-28T09:10:00","HEADLINE":"third"}
]}`

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestFetch_ProxyFirst(t *testing.T) {
	proxy := httptest.NewServer(jsonHandler(http.StatusOK, sampleBatch))
	defer proxy.Close()

	var directHits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		directHits.Add(1)
		jsonHandler(http.StatusOK, sampleBatch)(w, r)
	}))
	defer origin.Close()

	c := NewClient(config.FeedConfig{
		ProxyURL:  proxy.URL,
		OriginURL: origin.URL,
		Timeout:   5 * time.Second,
	})

	batch, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3", len(batch.Records))
	}
	if directHits.Load() != 0 {
		t.Error("proxy succeeded but direct source was still attempted")
	}
}

func TestFetch_FallbackToThirdTier(t *testing.T) {
	proxy := httptest.NewServer(jsonHandler(http.StatusBadGateway, `{"error":"down"}`))
	defer proxy.Close()

	origin := httptest.NewServer(jsonHandler(http.StatusForbidden, `{"error":"blocked"}`))
	defer origin.Close()

	var relayHits atomic.Int32
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayHits.Add(1)
		jsonHandler(http.StatusOK, sampleBatch)(w, r)
	}))
	defer relay.Close()

	// A second relay that must never be reached once the first succeeds.
	var lateHits atomic.Int32
	lateRelay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lateHits.Add(1)
		jsonHandler(http.StatusOK, sampleBatch)(w, r)
	}))
	defer lateRelay.Close()

	c := NewClient(config.FeedConfig{
		ProxyURL:  proxy.URL,
		OriginURL: origin.URL,
		Relays: []config.RelayConfig{
			{URL: relay.URL + "/?u=", Unwrap: config.UnwrapPassthrough},
			{URL: lateRelay.URL + "/?u=", Unwrap: config.UnwrapPassthrough},
		},
		Timeout: 5 * time.Second,
	})

	batch, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3", len(batch.Records))
	}
	if relayHits.Load() != 1 {
		t.Errorf("relayHits = %d, want 1", relayHits.Load())
	}
	if lateHits.Load() != 0 {
		t.Error("later relay attempted after an earlier source succeeded")
	}
}

func TestFetch_EscapedRelayUnwrap(t *testing.T) {
	proxy := httptest.NewServer(jsonHandler(http.StatusInternalServerError, ``))
	defer proxy.Close()
	origin := httptest.NewServer(jsonHandler(http.StatusForbidden, ``))
	defer origin.Close()

	wrapped, _ := json.Marshal(map[string]string{"contents": sampleBatch})
	relay := httptest.NewServer(jsonHandler(http.StatusOK, string(wrapped)))
	defer relay.Close()

	c := NewClient(config.FeedConfig{
		ProxyURL:  proxy.URL,
		OriginURL: origin.URL,
		Relays: []config.RelayConfig{
			{URL: relay.URL + "/?u=", Unwrap: config.UnwrapEscaped},
		},
		Timeout: 5 * time.Second,
	})

	batch, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3", len(batch.Records))
	}
}

func TestFetch_HangingTierLeavesBudgetForNextTier(t *testing.T) {
	// The proxy hangs past the per-attempt timeout. With an outer deadline
	// sized for the chain rather than one attempt, the direct tier must
	// still get a full attempt and rescue the fetch.
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		jsonHandler(http.StatusOK, sampleBatch)(w, r)
	}))
	defer proxy.Close()

	origin := httptest.NewServer(jsonHandler(http.StatusOK, sampleBatch))
	defer origin.Close()

	c := NewClient(config.FeedConfig{
		ProxyURL:  proxy.URL,
		OriginURL: origin.URL,
		Timeout:   100 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	batch, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3 from the direct tier", len(batch.Records))
	}
}

func TestFetch_AllSourcesFail(t *testing.T) {
	proxy := httptest.NewServer(jsonHandler(http.StatusBadGateway, ``))
	defer proxy.Close()
	origin := httptest.NewServer(jsonHandler(http.StatusForbidden, ``))
	defer origin.Close()

	c := NewClient(config.FeedConfig{
		ProxyURL:  proxy.URL,
		OriginURL: origin.URL,
		Timeout:   time.Second,
	})

	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected error when every source fails")
	}
}

func TestFetch_ReversesProviderOrder(t *testing.T) {
	origin := httptest.NewServer(jsonHandler(http.StatusOK, sampleBatch))
	defer origin.Close()

	c := NewClient(config.FeedConfig{OriginURL: origin.URL, Timeout: time.Second})

	batch, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// Provider sends oldest-first; the batch must come back newest-first.
	want := []string{"n3", "n2", "n1"}
	for i, w := range want {
		if batch.Records[i].NewsID != w {
			t.Errorf("Records[%d].NewsID = %q, want %q", i, batch.Records[i].NewsID, w)
		}
	}
}

func TestFetch_SingleObjectPayload(t *testing.T) {
	body := `{"Table":{"NEWSID":"only","SCRIP_CD":500001,"NEWSSUB":"Award of Order","NEWS_DT":"2026-08-28T09:00:00"}}`
	origin := httptest.NewServer(jsonHandler(http.StatusOK, body))
	defer origin.Close()

	c := NewClient(config.FeedConfig{OriginURL: origin.URL, Timeout: time.Second})

	batch, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Records) != 1 || batch.Records[0].NewsID != "only" {
		t.Errorf("unexpected records: %+v", batch.Records)
	}
}

func TestFetch_MalformedBodyFallsThrough(t *testing.T) {
	proxy := httptest.NewServer(jsonHandler(http.StatusOK, `<!doctype html><html>blocked</html>`))
	defer proxy.Close()

	origin := httptest.NewServer(jsonHandler(http.StatusOK, sampleBatch))
	defer origin.Close()

	c := NewClient(config.FeedConfig{ProxyURL: proxy.URL, OriginURL: origin.URL, Timeout: time.Second})

	batch, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(batch.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3 from the direct tier", len(batch.Records))
	}
}

func TestFetch_StampsPolledAt(t *testing.T) {
	origin := httptest.NewServer(jsonHandler(http.StatusOK, sampleBatch))
	defer origin.Close()

	fixed := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	c := NewClient(
		config.FeedConfig{OriginURL: origin.URL, Timeout: time.Second},
		WithNow(func() time.Time { return fixed }),
	)

	batch, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !batch.PolledAt.Equal(fixed) {
		t.Errorf("PolledAt = %v, want %v", batch.PolledAt, fixed)
	}
}

func TestDirectSource_BrowserHeaders(t *testing.T) {
	var gotUA, gotOrigin, gotReferer string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotOrigin = r.Header.Get("Origin")
		gotReferer = r.Header.Get("Referer")
		jsonHandler(http.StatusOK, sampleBatch)(w, r)
	}))
	defer origin.Close()

	c := NewClient(config.FeedConfig{OriginURL: origin.URL, Timeout: time.Second})
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotUA != browserUA {
		t.Errorf("User-Agent = %q, want browser UA", gotUA)
	}
	if gotOrigin != originHeader {
		t.Errorf("Origin = %q, want %q", gotOrigin, originHeader)
	}
	if gotReferer != refererHeader {
		t.Errorf("Referer = %q, want %q", gotReferer, refererHeader)
	}
}
