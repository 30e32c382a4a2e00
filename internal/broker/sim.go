package broker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/models"
)

// Paper-mode trade economics: PocketOption's typical payout is 80% of the
// stake, and simulated trades win 60% of the time so paper runs exercise
// both sides of the progression.
var (
	simPayoutRatio  = decimal.NewFromFloat(0.8)
	simStartBalance = decimal.NewFromInt(10000)
)

const simWinProbability = 0.6

// SimulatedBroker is the paper-trading broker. Orders settle after their
// duration with a biased coin flip decided at placement time. It is only
// ever used when configured — never as a silent fallback for a failing live
// session.
type SimulatedBroker struct {
	mu      sync.Mutex
	rng     *rand.Rand
	now     func() time.Time
	balance decimal.Decimal
	orders  map[string]*simOrder
}

type simOrder struct {
	amount  decimal.Decimal
	expires time.Time
	willWin bool
}

// NewSimulatedBroker creates a paper broker seeded for reproducible runs.
func NewSimulatedBroker(seed int64) *SimulatedBroker {
	return &SimulatedBroker{
		rng:     rand.New(rand.NewSource(seed)), // #nosec G404 -- paper-mode coin flip, not crypto
		now:     time.Now,
		balance: simStartBalance,
		orders:  make(map[string]*simOrder),
	}
}

// Ensure SimulatedBroker implements Broker at compile time.
var _ Broker = (*SimulatedBroker)(nil)

// Connect is a no-op; the paper broker has no session.
func (s *SimulatedBroker) Connect(_ context.Context) error { return nil }

// Disconnect is a no-op.
func (s *SimulatedBroker) Disconnect() error { return nil }

// Balance returns the simulated account balance.
func (s *SimulatedBroker) Balance(_ context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

// PlaceOrder opens a simulated option. The outcome is drawn now and revealed
// when the duration elapses.
func (s *SimulatedBroker) PlaceOrder(_ context.Context, asset string, direction models.Direction,
	amount decimal.Decimal, durationSeconds int) (*Order, error) {
	if amount.Sign() <= 0 {
		return nil, ErrOrderRejected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	placedAt := s.now()
	duration := time.Duration(durationSeconds) * time.Second
	s.orders[id] = &simOrder{
		amount:  amount,
		expires: placedAt.Add(duration),
		willWin: s.rng.Float64() < simWinProbability,
	}
	s.balance = s.balance.Sub(amount)

	return &Order{
		ID:        id,
		Asset:     asset,
		Direction: direction,
		Amount:    amount,
		Duration:  duration,
		Status:    StatusActive,
		PlacedAt:  placedAt,
	}, nil
}

// CheckOutcome settles the order once its duration has elapsed.
func (s *SimulatedBroker) CheckOutcome(_ context.Context, orderID string) (*Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderRejected
	}
	if s.now().Before(order.expires) {
		return &Settlement{Completed: false}, nil
	}

	if order.willWin {
		profit := order.amount.Mul(simPayoutRatio)
		s.balance = s.balance.Add(order.amount).Add(profit)
		delete(s.orders, orderID)
		return &Settlement{Completed: true, Result: models.ResultWin, Profit: profit}, nil
	}
	delete(s.orders, orderID)
	return &Settlement{Completed: true, Result: models.ResultLoss, Profit: order.amount.Neg()}, nil
}

// SetClock overrides the broker's clock; tests settle orders instantly.
func (s *SimulatedBroker) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
