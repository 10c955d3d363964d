package config

import "time"

type GatewayConfig interface {
	GetHTTPTimeout() time.Duration
	GetRetryAttempts() int
	GetRetryDelay() time.Duration
	GetRateLimit() (rps float64, burst int)
}

type Gateway struct {
	Timeout        time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	RetryAttempts  int           `env:"HTTP_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay     time.Duration `env:"HTTP_RETRY_DELAY" envDefault:"1s"`
	RateLimitRPS   float64       `env:"HTTP_RATE_LIMIT_RPS" envDefault:"0"`
	RateLimitBurst int           `env:"HTTP_RATE_LIMIT_BURST" envDefault:"1"`
}

var _ GatewayConfig = Gateway{}

func (g Gateway) GetHTTPTimeout() time.Duration {
	return g.Timeout
}

func (g Gateway) GetRetryAttempts() int {
	return g.RetryAttempts
}

func (g Gateway) GetRetryDelay() time.Duration {
	return g.RetryDelay
}

// GetRateLimit returns zero rps when outbound traffic is unlimited.
func (g Gateway) GetRateLimit() (float64, int) {
	return g.RateLimitRPS, g.RateLimitBurst
}
