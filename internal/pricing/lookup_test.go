package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arjunrk/bsewatch/internal/config"
)

func newLookup(quoteURL, chartURL string) *HTTPLookup {
	return NewHTTPLookup(config.PricingConfig{
		QuoteURL: quoteURL,
		ChartURL: chartURL,
	}, 5*time.Second, nil)
}

func TestQuote_ShapePriority(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantPrice  float64
		wantSource string
	}{
		{
			name:       "direct price field wins",
			body:       `{"price": 123.45, "WAP": "999"}`,
			wantPrice:  123.45,
			wantSource: "price",
		},
		{
			name:       "wap as string",
			body:       `{"WAP": "456.78"}`,
			wantPrice:  456.78,
			wantSource: "WAP",
		},
		{
			name:       "ltp fallback",
			body:       `{"LTP": 89.5, "Unrelated": "x"}`,
			wantPrice:  89.5,
			wantSource: "LTP",
		},
		{
			name:       "zero wap skipped for ltp",
			body:       `{"WAP": 0, "LTP": "42"}`,
			wantPrice:  42,
			wantSource: "LTP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			l := newLookup(srv.URL, "http://invalid.invalid")
			q, err := l.Quote(context.Background(), 500001, "")
			if err != nil {
				t.Fatalf("Quote failed: %v", err)
			}
			if q == nil {
				t.Fatal("Quote = nil, want a price")
			}
			if q.Price != tt.wantPrice {
				t.Errorf("Price = %v, want %v", q.Price, tt.wantPrice)
			}
			if q.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", q.Source, tt.wantSource)
			}
		})
	}
}

func TestQuote_ChartFallback(t *testing.T) {
	quote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer quote.Close()

	var gotPath string
	chart := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":512.3,"currency":"INR"}}]}}`))
	}))
	defer chart.Close()

	l := newLookup(quote.URL, chart.URL)
	q, err := l.Quote(context.Background(), 500001, "acmeltd")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q == nil || q.Price != 512.3 {
		t.Fatalf("quote = %+v, want chart price 512.3", q)
	}
	if gotPath != "/ACMELTD.BO" {
		t.Errorf("chart path = %q, want /ACMELTD.BO", gotPath)
	}
}

func TestQuote_Unresolvable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Status":"no data"}`))
	}))
	defer srv.Close()

	l := newLookup(srv.URL, srv.URL)
	q, err := l.Quote(context.Background(), 500001, "")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q != nil {
		t.Errorf("quote = %+v, want nil for unrecognized instrument", q)
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{`42.5`, 42.5, true},
		{`"42.5"`, 42.5, true},
		{`" 99 "`, 99, true},
		{`"n/a"`, 0, false},
		{`null`, 0, false},
		{`[1]`, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumeric([]byte(tt.raw))
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("parseNumeric(%s) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}
