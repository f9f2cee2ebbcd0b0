// Package httpx builds the resty clients the source checkers share and
// provides retry with exponential backoff for transient network failures.
package httpx

import (
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout applies to page and API fetches. Filing documents are
// larger, so the filings client stretches to DocumentTimeout.
const (
	DefaultTimeout  = 20 * time.Second
	DocumentTimeout = 30 * time.Second
)

// NewClient builds a resty client with the standard timeout and an
// identifying User-Agent.
func NewClient(userAgent string) *resty.Client {
	client := resty.New()
	client.SetTimeout(DefaultTimeout)
	client.SetHeader("User-Agent", userAgent)
	return client
}

// NewDocumentClient is NewClient with the longer document-fetch timeout.
func NewDocumentClient(userAgent string) *resty.Client {
	client := NewClient(userAgent)
	client.SetTimeout(DocumentTimeout)
	return client
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry executes fn with exponential backoff until it succeeds or
// retries are exhausted.
func WithRetry(config *RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(config.BaseDelay) *
				math.Pow(config.Multiplier, float64(attempt-1)))
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
			time.Sleep(delay)
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
