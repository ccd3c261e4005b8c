package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.OriginURL == "" {
		return errors.New("feed.origin_url is required")
	}
	for i, r := range c.Feed.Relays {
		if r.URL == "" {
			return fmt.Errorf("feed.relays[%d].url is required", i)
		}
		if r.Unwrap != UnwrapPassthrough && r.Unwrap != UnwrapEscaped {
			return fmt.Errorf("feed.relays[%d].unwrap must be %q or %q, got %q",
				i, UnwrapPassthrough, UnwrapEscaped, r.Unwrap)
		}
	}
	if c.Feed.Timeout < 0 {
		return errors.New("feed.timeout must not be negative")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}

	if c.Ingest.SeedMode != SeedModeAll && c.Ingest.SeedMode != SeedModeAmountOnly {
		return fmt.Errorf("ingest.seed_mode must be %q or %q, got %q",
			SeedModeAll, SeedModeAmountOnly, c.Ingest.SeedMode)
	}

	if c.Pricing.TTL <= 0 {
		return errors.New("pricing.ttl must be positive")
	}
	if c.Pricing.Budget <= 0 {
		return errors.New("pricing.budget must be positive")
	}

	if c.EOD.MaxDaysBack < 1 {
		return errors.New("eod.max_days_back must be >= 1")
	}

	if c.Database.Postgres.Host != "" {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Store.BatchSize < 1 {
		return errors.New("store.batch_size must be >= 1")
	}
	if c.Store.BufferSize < 1 {
		return errors.New("store.buffer_size must be >= 1")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
