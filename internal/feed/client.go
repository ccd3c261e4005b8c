package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/arjunrk/bsewatch/internal/config"
	"github.com/arjunrk/bsewatch/internal/model"
)

// ErrNoPayload is returned when a response decodes but carries no record
// container.
var ErrNoPayload = errors.New("feed: response has no record container")

// ist is the exchange's local zone; the announcements endpoint is keyed by
// the IST calendar date.
var ist = time.FixedZone("IST", 5*3600+1800)

// Client fetches announcement batches through the source fallback chain.
type Client struct {
	originURL string
	sources   []Source
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithNow overrides the clock used for batch timestamps and date-keyed URLs.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds the fallback chain from config: proxy, then direct,
// then each relay in listed order. An empty proxy URL drops the proxy tier.
func NewClient(cfg config.FeedConfig, opts ...Option) *Client {
	httpClient := newHTTPClient(cfg.Timeout)

	var sources []Source
	if cfg.ProxyURL != "" {
		sources = append(sources, &proxySource{url: cfg.ProxyURL, client: httpClient})
	}
	sources = append(sources, &directSource{client: httpClient})
	for i, r := range cfg.Relays {
		sources = append(sources, &relaySource{
			name:   fmt.Sprintf("relay-%d", i+1),
			prefix: r.URL,
			unwrap: r.Unwrap,
			client: httpClient,
		})
	}

	c := &Client{
		originURL: cfg.OriginURL,
		sources:   sources,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch walks the chain and returns the first successfully decoded batch,
// stamped with the retrieval time. On total failure the last observed error
// is returned.
func (c *Client) Fetch(ctx context.Context) (*model.Batch, error) {
	target := c.announcementsURL()

	var lastErr error
	for _, src := range c.sources {
		body, err := src.Fetch(ctx, target)
		if err != nil {
			c.logger.Debug("feed source failed", "source", src.Name(), "err", err)
			lastErr = err
			continue
		}

		records, err := decodeRecords(body)
		if err != nil {
			c.logger.Debug("feed source returned unparseable body", "source", src.Name(), "err", err)
			lastErr = &SourceError{Source: src.Name(), Err: err}
			continue
		}

		// Provider order is oldest-first; the feed is newest-first.
		reverse(records)

		return &model.Batch{
			PolledAt: c.now(),
			Records:  records,
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("feed: no sources configured")
	}
	return nil, fmt.Errorf("all feed sources failed: %w", lastErr)
}

// announcementsURL builds the origin URL for today's IST date.
func (c *Client) announcementsURL() string {
	today := c.now().In(ist).Format("20060102")

	q := url.Values{}
	q.Set("pageno", "1")
	q.Set("strCat", "Company Update")
	q.Set("strPrevDate", today)
	q.Set("strScrip", "")
	q.Set("strSearch", "P")
	q.Set("strToDate", today)
	q.Set("strType", "C")
	q.Set("subcategory", "Award of Order / Receipt of Order")

	return c.originURL + "?" + q.Encode()
}

// decodeRecords parses the provider container. The payload under "Table"
// may be an array or a single object; both normalize to a list.
func decodeRecords(body []byte) ([]model.RawAnnouncement, error) {
	var container struct {
		Table json.RawMessage `json:"Table"`
	}
	if err := json.Unmarshal(body, &container); err != nil {
		return nil, fmt.Errorf("decode container: %w", err)
	}
	if len(container.Table) == 0 || string(container.Table) == "null" {
		return nil, ErrNoPayload
	}

	var records []model.RawAnnouncement
	if err := json.Unmarshal(container.Table, &records); err == nil {
		return records, nil
	}

	var single model.RawAnnouncement
	if err := json.Unmarshal(container.Table, &single); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return []model.RawAnnouncement{single}, nil
}

func reverse(records []model.RawAnnouncement) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

// Sources returns the names of the configured chain, in order.
func (c *Client) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}
