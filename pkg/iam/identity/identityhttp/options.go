package identityhttp

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/asyncx"
	"github.com/Abraxas-365/facilitydir/pkg/config"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
	maxResponseSize        = 1 << 20
)

// Option configures the Provider.
type Option func(*options)

type options struct {
	apiKey     string
	serviceKey string
	timeout    time.Duration
	httpClient *http.Client
	retry      asyncx.Backoff
}

func defaultOptions() *options {
	return &options{
		timeout: defaultTimeout,
		retry: asyncx.Backoff{
			Attempts:     3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

// FromConfig applies the identity configuration section.
func FromConfig(cfg config.IdentityConfig) Option {
	return func(o *options) {
		o.apiKey = cfg.APIKey
		o.serviceKey = cfg.ServiceKey
		if cfg.Timeout > 0 {
			o.timeout = cfg.Timeout
		}
		if cfg.RetryAttempts > 0 {
			o.retry.Attempts = cfg.RetryAttempts
		}
		if cfg.RetryBackoff > 0 {
			o.retry.InitialDelay = cfg.RetryBackoff
		}
	}
}

// WithAPIKey sets the public key sent as the "apikey" header on every request.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithServiceKey enables admin operations.
func WithServiceKey(key string) Option {
	return func(o *options) { o.serviceKey = key }
}

// WithHTTPClient replaces the default client. The timeout option is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRetry sets the backoff used for idempotent calls.
func WithRetry(attempts int, initial time.Duration) Option {
	return func(o *options) {
		o.retry.Attempts = attempts
		o.retry.InitialDelay = initial
	}
}
