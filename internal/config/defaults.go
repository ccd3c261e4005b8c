package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultProxyURL  = "http://localhost:8000/api/announcements"
	DefaultOriginURL = "https://api.bseindia.com/BseIndiaAPI/api/AnnSubCategoryGetData/w"
	DefaultTimeout   = 10 * time.Second

	DefaultPollInterval = 10 * time.Second

	DefaultSeedMode = SeedModeAll

	DefaultQuoteURL = "https://api.bseindia.com/BseIndiaAPI/api/StockTrading/w"
	DefaultChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	DefaultQuoteTTL = 30 * time.Second
	DefaultBudget   = 100000

	DefaultEODBaseURL     = "https://www.bseindia.com/download/BhavCopy/Equity"
	DefaultEODMaxDaysBack = 15
	DefaultEODMinSymbols  = 1000
	DefaultEODRefresh     = 6 * time.Hour

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultBatchSize     = 100
	DefaultFlushInterval = 1 * time.Second
	DefaultBufferSize    = 1000

	DefaultNotifyPath = "/ws"

	DefaultBrokerURL = "https://api.kite.trade"

	DefaultHealthPort = 9090
)

// Seed modes for the first successful batch.
const (
	SeedModeAll        = "all"
	SeedModeAmountOnly = "amount-only"
)

// Relay unwrap modes.
const (
	UnwrapPassthrough = "passthrough"
	UnwrapEscaped     = "escaped"
)

// DefaultRelays are the public CORS relays tried after the direct request.
// The allorigins relay wraps the payload as an escaped string under
// "contents"; corsproxy forwards the body unchanged.
func DefaultRelays() []RelayConfig {
	return []RelayConfig{
		{URL: "https://api.allorigins.win/get?url=", Unwrap: UnwrapEscaped},
		{URL: "https://corsproxy.io/?", Unwrap: UnwrapPassthrough},
	}
}

func (c *Config) applyDefaults() {
	if c.Feed.ProxyURL == "" {
		c.Feed.ProxyURL = DefaultProxyURL
	}
	if c.Feed.OriginURL == "" {
		c.Feed.OriginURL = DefaultOriginURL
	}
	if c.Feed.Relays == nil {
		c.Feed.Relays = DefaultRelays()
	}
	for i := range c.Feed.Relays {
		if c.Feed.Relays[i].Unwrap == "" {
			c.Feed.Relays[i].Unwrap = UnwrapPassthrough
		}
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = DefaultTimeout
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		// One per-attempt timeout for each tier of the chain: proxy, direct,
		// and every relay. A hanging tier then burns only its own slot.
		tiers := 2 + len(c.Feed.Relays)
		c.Poller.Timeout = c.Feed.Timeout * time.Duration(tiers)
	}

	if c.Ingest.SeedMode == "" {
		c.Ingest.SeedMode = DefaultSeedMode
	}

	if c.Pricing.QuoteURL == "" {
		c.Pricing.QuoteURL = DefaultQuoteURL
	}
	if c.Pricing.ChartURL == "" {
		c.Pricing.ChartURL = DefaultChartURL
	}
	if c.Pricing.TTL == 0 {
		c.Pricing.TTL = DefaultQuoteTTL
	}
	if c.Pricing.Budget == 0 {
		c.Pricing.Budget = DefaultBudget
	}

	if c.EOD.BaseURL == "" {
		c.EOD.BaseURL = DefaultEODBaseURL
	}
	if c.EOD.MaxDaysBack == 0 {
		c.EOD.MaxDaysBack = DefaultEODMaxDaysBack
	}
	if c.EOD.MinSymbols == 0 {
		c.EOD.MinSymbols = DefaultEODMinSymbols
	}
	if c.EOD.Refresh == 0 {
		c.EOD.Refresh = DefaultEODRefresh
	}

	if c.Database.Postgres.Host != "" {
		applyDBDefaults(&c.Database.Postgres)
	}

	if c.Store.BatchSize == 0 {
		c.Store.BatchSize = DefaultBatchSize
	}
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = DefaultFlushInterval
	}
	if c.Store.BufferSize == 0 {
		c.Store.BufferSize = DefaultBufferSize
	}

	if c.Notify.Path == "" {
		c.Notify.Path = DefaultNotifyPath
	}

	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = DefaultBrokerURL
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
