// Package executor turns a scheduled signal into a settled trade: wait for
// the entry instant, place the order through the broker, poll for
// settlement, and report the outcome. Failures become an indeterminate
// outcome for the caller to judge — never a fabricated win or loss.
package executor

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/metrics"
	"github.com/jenbur242/pocket-option/internal/models"
	"github.com/jenbur242/pocket-option/internal/retry"
)

// Config contains configuration for the executor.
type Config struct {
	PollInterval time.Duration // settlement poll cadence
	CallTimeout  time.Duration // per CheckOutcome call
	SettleGrace  time.Duration // extra wait past the option duration
}

// DefaultConfig is the default configuration for the executor.
var DefaultConfig = Config{
	PollInterval: 2 * time.Second,
	CallTimeout:  5 * time.Second,
	SettleGrace:  30 * time.Second,
}

// Trade is one scheduled order.
type Trade struct {
	Asset     string
	Direction models.Direction
	Stake     decimal.Decimal
	TradeAt   time.Time
}

// Executor waits for trade instants and runs orders to settlement.
type Executor struct {
	broker broker.Broker
	placer *retry.Client
	logger *log.Logger
	config Config
	mode   models.TradeMode
	now    func() time.Time
}

// New creates an executor. mode tags every outcome with the execution path
// that produced it.
func New(b broker.Broker, mode models.TradeMode, logger *log.Logger, config ...Config) *Executor {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	if cfg.SettleGrace <= 0 {
		cfg.SettleGrace = DefaultConfig.SettleGrace
	}
	if logger == nil {
		logger = log.New(os.Stderr, "executor: ", log.LstdFlags)
	}
	if b == nil {
		panic("executor.New: broker must not be nil")
	}

	return &Executor{
		broker: b,
		placer: retry.NewClient(b, logger),
		logger: logger,
		config: cfg,
		mode:   mode,
		now:    time.Now,
	}
}

// Execute waits until the trade instant, places the order, and polls to
// settlement. The returned order is nil when placement never succeeded.
func (e *Executor) Execute(ctx context.Context, trade Trade) (models.Outcome, *broker.Order) {
	if err := e.waitUntil(ctx, trade.TradeAt); err != nil {
		return indeterminate(e.mode, "canceled before entry: "+err.Error()), nil
	}

	now := e.now()
	duration := DurationSeconds(now)
	order, err := e.placer.PlaceOrderWithRetry(ctx, trade.Asset, trade.Direction, trade.Stake, duration)
	if err != nil {
		e.logger.Printf("placement failed for %s %s: %v", trade.Asset, trade.Direction, err)
		return indeterminate(e.mode, "placement failed: "+err.Error()), nil
	}
	e.logger.Printf("order %s: %s %s $%s for %ds", order.ID, trade.Asset, trade.Direction, trade.Stake, duration)
	metrics.ObserveOrder(string(e.mode))

	outcome := e.awaitSettlement(ctx, order)
	return outcome, order
}

// waitUntil spins down to the target instant: coarse 500 ms sleeps far out,
// 100 ms inside ten seconds, 50 ms on final approach. The broker's clock is
// only loosely synchronized, so millisecond precision is not the goal.
func (e *Executor) waitUntil(ctx context.Context, at time.Time) error {
	for {
		remaining := at.Sub(e.now())
		if remaining <= 0 {
			return nil
		}
		var step time.Duration
		switch {
		case remaining > 10*time.Second:
			step = 500 * time.Millisecond
		case remaining > time.Second:
			step = 100 * time.Millisecond
		default:
			step = 50 * time.Millisecond
			if remaining < step {
				step = remaining
			}
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// awaitSettlement polls CheckOutcome until the order settles or the overall
// cap (option duration plus grace) expires.
func (e *Executor) awaitSettlement(ctx context.Context, order *broker.Order) models.Outcome {
	deadline := order.Duration + e.config.SettleGrace
	settleCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-settleCtx.Done():
			e.logger.Printf("order %s: settlement not observed within %s", order.ID, deadline)
			return indeterminate(e.mode, broker.ErrSettlementTimeout.Error())
		case <-ticker.C:
			callCtx, callCancel := context.WithTimeout(settleCtx, e.config.CallTimeout)
			settlement, err := e.broker.CheckOutcome(callCtx, order.ID)
			callCancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					continue
				}
				e.logger.Printf("order %s: outcome check failed: %v", order.ID, err)
				continue
			}
			if settlement == nil || !settlement.Completed {
				continue
			}

			return models.Outcome{
				Result: settlement.Result,
				Profit: settlement.Profit,
				Mode:   e.mode,
			}
		}
	}
}

// DurationSeconds picks the option lifetime so it closes at the next whole
// minute, clamped to [59, 60] seconds.
func DurationSeconds(now time.Time) int {
	targetClose := now.Truncate(time.Minute).Add(time.Minute)
	seconds := int(targetClose.Sub(now).Seconds())
	if seconds < 59 {
		return 59
	}
	if seconds > 60 {
		return 60
	}
	return seconds
}

// NextMinuteDelay is the wait before an immediate follow-up trade (the next
// martingale step after a loss): align to the next minute boundary but never
// stall more than a second.
func NextMinuteDelay(now time.Time) time.Duration {
	delay := now.Truncate(time.Minute).Add(time.Minute).Sub(now)
	if delay > time.Second {
		return time.Second
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// SetClock overrides the executor's clock in tests.
func (e *Executor) SetClock(now func() time.Time) { e.now = now }

func indeterminate(mode models.TradeMode, reason string) models.Outcome {
	return models.Outcome{
		Result: models.ResultIndeterminate,
		Profit: decimal.Decimal{},
		Mode:   mode,
		Reason: reason,
	}
}
