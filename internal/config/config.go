package config

import "time"

// Config is the root configuration for a watcher instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Poller   PollerConfig   `yaml:"poller"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Pricing  PricingConfig  `yaml:"pricing"`
	EOD      EODConfig      `yaml:"eod"`
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store"`
	Notify   NotifyConfig   `yaml:"notify"`
	Broker   BrokerConfig   `yaml:"broker"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this watcher.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds the announcement feed endpoints and the fallback chain.
type FeedConfig struct {
	// ProxyURL is the local trusted proxy endpoint, tried first.
	ProxyURL string `yaml:"proxy_url"`
	// OriginURL is the upstream announcements endpoint, tried second with
	// browser headers. Date query parameters are appended per poll.
	OriginURL string `yaml:"origin_url"`
	// Relays are public CORS relays, tried last in listed order.
	Relays  []RelayConfig `yaml:"relays"`
	Timeout time.Duration `yaml:"timeout"`
}

// RelayConfig describes one CORS relay endpoint.
type RelayConfig struct {
	// URL is the relay prefix; the encoded origin URL is appended.
	URL string `yaml:"url"`
	// Unwrap selects the response handling: "passthrough" forwards the body
	// as-is, "escaped" expects the payload as a JSON-escaped string that
	// needs a parse step before decoding.
	Unwrap string `yaml:"unwrap"`
}

// PollerConfig holds scheduler settings.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Timeout bounds one whole poll cycle. It must cover the entire fetch
	// fallback chain, not a single attempt; when unset it is derived from
	// feed.timeout and the number of configured sources.
	Timeout time.Duration `yaml:"timeout"`
}

// IngestConfig holds ingestion policy settings.
type IngestConfig struct {
	// SeedMode controls the first successful batch: "all" seeds the ledger
	// with every record, "amount-only" restricts the seed to records with an
	// extracted amount. Neither mode fires new-record side effects.
	SeedMode string `yaml:"seed_mode"`
}

// PricingConfig holds the price lookup and trade sizing settings.
type PricingConfig struct {
	QuoteURL string        `yaml:"quote_url"` // Exchange intraday quote endpoint
	ChartURL string        `yaml:"chart_url"` // Chart-shaped fallback endpoint
	TTL      time.Duration `yaml:"ttl"`       // Cache entry lifetime
	Budget   float64       `yaml:"budget"`    // Fixed investment budget per order
}

// EODConfig holds the end-of-day bhavcopy baseline settings.
type EODConfig struct {
	BaseURL     string        `yaml:"base_url"`
	MaxDaysBack int           `yaml:"max_days_back"`
	MinSymbols  int           `yaml:"min_symbols"` // Below this the file is treated as incomplete
	Refresh     time.Duration `yaml:"refresh"`
}

// DatabaseConfig holds the optional Postgres sink. Leaving postgres.host
// empty disables persistence.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StoreConfig holds batch writer settings.
type StoreConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// NotifyConfig holds websocket notifier settings.
type NotifyConfig struct {
	Path  string `yaml:"path"`
	Sound bool   `yaml:"sound"` // Forwarded to clients in each event
}

// BrokerConfig holds the external order service credentials.
type BrokerConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
	AccessToken string `yaml:"access_token"`
}

// HealthConfig holds the health/status HTTP listener settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
