package llm

import "time"

// Config carries provider connection settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Headers     map[string]string
}

const (
	defaultTimeout     = 120 * time.Second
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// temperatureOr prefers the request value, then the configured one.
func (c Config) temperatureOr(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	if c.Temperature > 0 {
		return c.Temperature
	}
	return defaultTemperature
}

func (c Config) maxTokensOr(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}
