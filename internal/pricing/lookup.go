package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/model"
)

// quoteFields are the known top-level price field names, in priority order.
// "price" is the modern shape; the rest are legacy names still seen in the
// exchange's intraday responses.
var quoteFields = []string{"price", "WAP", "LTP", "CurrVal"}

// HTTPLookup resolves prices from the exchange intraday endpoint, falling
// back to a chart-shaped endpoint keyed by symbol.
type HTTPLookup struct {
	quoteURL string
	chartURL string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPLookup creates a lookup from pricing config.
func NewHTTPLookup(cfg config.PricingConfig, timeout time.Duration, logger *slog.Logger) *HTTPLookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPLookup{
		quoteURL: cfg.QuoteURL,
		chartURL: cfg.ChartURL,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Quote tries the intraday endpoint first, then the chart endpoint when a
// symbol is known. A nil quote means no source produced a usable price.
func (l *HTTPLookup) Quote(ctx context.Context, scripCode int64, symbol string) (*model.PriceQuote, error) {
	if q := l.intraday(ctx, scripCode); q != nil {
		return q, nil
	}
	if symbol != "" {
		if q := l.chart(ctx, symbol); q != nil {
			return q, nil
		}
	}
	return nil, nil
}

func (l *HTTPLookup) intraday(ctx context.Context, scripCode int64) *model.PriceQuote {
	target := fmt.Sprintf("%s?scripcode=%d&flag=&seriesid=", l.quoteURL, scripCode)

	body, err := l.get(ctx, target)
	if err != nil {
		l.logger.Debug("intraday quote failed", "scrip", scripCode, "err", err)
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}

	for _, field := range quoteFields {
		v, ok := raw[field]
		if !ok {
			continue
		}
		if price, ok := parseNumeric(v); ok && price > 0 {
			return &model.PriceQuote{Price: price, Source: field}
		}
	}
	return nil
}

// chart parses the Yahoo-style chart response shape:
// chart.result[0].meta.regularMarketPrice.
func (l *HTTPLookup) chart(ctx context.Context, symbol string) *model.PriceQuote {
	// Exchange-listed symbols carry the .BO suffix on the chart endpoint.
	target := fmt.Sprintf("%s/%s.BO?interval=1d&range=1d", l.chartURL, strings.ToUpper(symbol))

	body, err := l.get(ctx, target)
	if err != nil {
		l.logger.Debug("chart quote failed", "symbol", symbol, "err", err)
		return nil
	}

	var resp struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if len(resp.Chart.Result) == 0 {
		return nil
	}
	price := resp.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return nil
	}
	return &model.PriceQuote{Price: price, Source: "regularMarketPrice"}
}

func (l *HTTPLookup) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Referer", "https://www.bseindia.com/")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseNumeric accepts JSON numbers and numeric strings.
func parseNumeric(raw json.RawMessage) (float64, bool) {
	if string(raw) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
