package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/models"
)

// Interface defines the contract for trade history persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can safely call these methods from multiple
// goroutines.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize
// access, ensuring all Interface methods are protected for concurrent
// readers and writers.
type Interface interface {
	// Trade history
	AddTrade(trade models.TradeRecord) error
	GetTrades() []models.TradeRecord
	HasTrade(id string) bool

	// ResolveTrade settles a previously indeterminate trade once its real
	// outcome becomes known, e.g. after a restart reconciliation.
	ResolveTrade(id string, result models.Result, profit decimal.Decimal) error

	// Data persistence
	Save() error
	Load() error

	// Analytics
	GetStatistics() Statistics
	GetDailyPnL(day time.Time) decimal.Decimal
}

// Statistics summarizes the recorded trade history. Win rate is computed
// over wins and losses only; draws and indeterminate outcomes never blend
// into it.
type Statistics struct {
	TotalTrades   int             `json:"total_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	Draws         int             `json:"draws"`
	Indeterminate int             `json:"indeterminate"`
	WinRate       float64         `json:"win_rate"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	AverageWin    decimal.Decimal `json:"average_win"`
	AverageLoss   decimal.Decimal `json:"average_loss"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	PeakPnL       decimal.Decimal `json:"peak_pnl"`
	CurrentStreak int             `json:"current_streak"`
}

// NewStorage creates a new storage implementation (currently JSON-based)
// In the future, this can be extended to support different storage backends
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
