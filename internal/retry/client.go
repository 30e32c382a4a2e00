// Package retry wraps order placement with bounded retries. Only transient
// transport failures are retried; rejections and unsupported assets surface
// immediately.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/models"
)

// Config bounds the retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig keeps retries short: a binary option's entry window is
// seconds wide, so long backoffs would place the trade at the wrong instant.
var DefaultConfig = Config{
	MaxRetries:     2,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Timeout:        15 * time.Second,
}

// Client retries broker order placement.
type Client struct {
	broker broker.Broker
	logger *log.Logger
	config Config
}

// NewClient creates a retry client around the given broker.
func NewClient(b broker.Broker, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	return &Client{
		broker: b,
		logger: logger,
		config: cfg,
	}
}

// PlaceOrderWithRetry places an order, retrying transient failures with
// capped backoff. Permanent failures (rejection, unsupported asset) return
// on the first attempt.
func (c *Client) PlaceOrderWithRetry(ctx context.Context, asset string, direction models.Direction,
	amount decimal.Decimal, durationSeconds int) (*broker.Order, error) {
	placeCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := placeCtx.Err(); err != nil {
			return nil, fmt.Errorf("order placement timed out after %v: %w", c.config.Timeout, err)
		}

		order, err := c.broker.PlaceOrder(placeCtx, asset, direction, amount, durationSeconds)
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("order placed on attempt %d: %s", attempt+1, order.ID)
			}
			return order, nil
		}

		lastErr = err
		c.logger.Printf("place attempt %d/%d for %s failed: %v", attempt+1, c.config.MaxRetries+1, asset, err)

		if !c.isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-placeCtx.Done():
			return nil, fmt.Errorf("order placement timed out during backoff: %w", placeCtx.Err())
		}
	}

	return nil, fmt.Errorf("failed to place order after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, broker.ErrOrderRejected) || errors.Is(err, broker.ErrUnsupportedAsset) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"no acknowledgment",
		"network",
		"dns",
		"tcp",
		"websocket",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
