package uazapi

import (
	"net/http"
)

// Client talks to the UAZAPI WhatsApp gateway. Instance-scoped calls
// authenticate with the per-instance token, admin calls with the
// shared admin token.
type Client struct {
	cfg     Config
	http    *http.Client
	retry   RetryPolicy
	limiter *RateLimiter
	breaker CircuitBreaker
}

func NewFromEnv() *Client {
	return New(LoadFromEnv())
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		retry: RetryPolicy{
			MaxRetries: cfg.RetryCount,
			BaseDelay:  cfg.RetryDelay,
		},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg),
	}
}

// BaseURL returns the configured gateway host.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}
