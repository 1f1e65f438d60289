package config

import (
	"fmt"
	"net/url"
	"time"
)

// EmbeddingConfig points at the image embedding service.
type EmbeddingConfig struct {
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`        // per /embed call; first call may load the model
	HealthTimeout time.Duration `mapstructure:"health_timeout"` // per /health call
	Dimensions    int           `mapstructure:"dimensions"`     // 0 disables the length check
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig controls the circuit breaker around /embed.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"` // consecutive failures before opening
	OpenTimeout time.Duration `mapstructure:"open_timeout"` // time spent open before a trial request
}

// Validate checks that the embedding service is reachable by URL and the
// timeouts are usable.
func (c *EmbeddingConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("embedding: url is required (set EMBEDDING_URL)")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("embedding: invalid url %q", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("embedding: timeout must be positive")
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedding: dimensions must not be negative")
	}
	if c.Breaker.Enabled && c.Breaker.MaxFailures == 0 {
		return fmt.Errorf("embedding: breaker.max_failures must be positive when the breaker is enabled")
	}
	return nil
}
