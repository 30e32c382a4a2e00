// Package broker defines the broker interface the bot trades through and its
// implementations: the live PocketOption websocket client, a simulated paper
// broker, and a circuit-breaker decorator.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/models"
)

// Sentinel errors callers branch on. The session decides what each failure
// means; nothing in this package ever substitutes a fake outcome.
var (
	// ErrNotConnected is returned when an operation requires an
	// authenticated session and there is none.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrOrderRejected is returned when the broker refuses an order.
	ErrOrderRejected = errors.New("broker: order rejected")
	// ErrSettlementTimeout is returned when an order's outcome could not be
	// established within the allowed window.
	ErrSettlementTimeout = errors.New("broker: settlement timeout")
	// ErrUnsupportedAsset is returned when the broker does not list the
	// requested instrument.
	ErrUnsupportedAsset = errors.New("broker: unsupported asset")
)

// OrderStatus is the broker-side state of a placed order.
type OrderStatus string

const (
	// StatusActive means the order was accepted and the option is running.
	StatusActive OrderStatus = "active"
	// StatusPending means the order was queued but not yet confirmed.
	StatusPending OrderStatus = "pending"
	// StatusRejected means the broker refused the order.
	StatusRejected OrderStatus = "rejected"
)

// Order is a placed binary option as acknowledged by the broker.
type Order struct {
	ID        string
	Asset     string
	Direction models.Direction
	Amount    decimal.Decimal
	Duration  time.Duration
	Status    OrderStatus
	PlacedAt  time.Time
}

// Settlement is the answer to a CheckOutcome poll. Completed is false while
// the option is still running.
type Settlement struct {
	Completed bool
	Result    models.Result
	Profit    decimal.Decimal
}

// Broker is the surface the bot consumes. Implementations must be safe for
// concurrent use; the session places orders for independent symbols in
// parallel.
type Broker interface {
	// Connect establishes and authenticates the broker session.
	Connect(ctx context.Context) error
	// Balance returns the current account balance.
	Balance(ctx context.Context) (decimal.Decimal, error)
	// PlaceOrder opens a binary option. durationSeconds is the option
	// lifetime; PocketOption settles on whole-minute boundaries.
	PlaceOrder(ctx context.Context, asset string, direction models.Direction,
		amount decimal.Decimal, durationSeconds int) (*Order, error)
	// CheckOutcome reports whether the order settled and with what result.
	CheckOutcome(ctx context.Context, orderID string) (*Settlement, error)
	// Disconnect closes the session.
	Disconnect() error
}
