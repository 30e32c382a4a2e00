package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/jenbur242/pocket-option/internal/metrics"
	"github.com/jenbur242/pocket-option/internal/models"
)

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so
// a flapping websocket trips to fast-fail instead of hammering the broker.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	op string,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		metrics.IncBrokerFailure(op)
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Connect wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) Connect(ctx context.Context) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, "connect", func(b Broker) (struct{}, error) {
		return struct{}{}, b.Connect(ctx)
	})
	return err
}

// Balance wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) Balance(ctx context.Context) (decimal.Decimal, error) {
	return execCircuitBreaker(c.breaker, c.broker, "balance", func(b Broker) (decimal.Decimal, error) {
		return b.Balance(ctx)
	})
}

// PlaceOrder wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) PlaceOrder(ctx context.Context, asset string, direction models.Direction,
	amount decimal.Decimal, durationSeconds int) (*Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, "place_order", func(b Broker) (*Order, error) {
		return b.PlaceOrder(ctx, asset, direction, amount, durationSeconds)
	})
}

// CheckOutcome wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) CheckOutcome(ctx context.Context, orderID string) (*Settlement, error) {
	return execCircuitBreaker(c.breaker, c.broker, "check_outcome", func(b Broker) (*Settlement, error) {
		return b.CheckOutcome(ctx, orderID)
	})
}

// Disconnect closes the underlying session without the breaker; shutdown
// must work even when the circuit is open.
func (c *CircuitBreakerBroker) Disconnect() error {
	return c.broker.Disconnect()
}
