package storage

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/models"
)

// MockStorage implements Interface for testing
type MockStorage struct {
	mu            sync.Mutex
	saveError     error
	addError      error
	trades        []models.TradeRecord
	dailyPnL      map[string]decimal.Decimal
	statistics    Statistics
	saveCallCount int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{
		dailyPnL: make(map[string]decimal.Decimal),
	}
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)

// SetSaveError makes subsequent Save calls fail.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// SetAddError makes subsequent AddTrade calls fail.
func (m *MockStorage) SetAddError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addError = err
}

// AddTrade records the trade in memory.
func (m *MockStorage) AddTrade(trade models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addError != nil {
		return m.addError
	}
	m.trades = append(m.trades, trade)

	m.statistics.TotalTrades++
	switch trade.Result {
	case models.ResultWin:
		m.statistics.Wins++
	case models.ResultLoss:
		m.statistics.Losses++
	case models.ResultDraw:
		m.statistics.Draws++
	default:
		m.statistics.Indeterminate++
		return nil
	}
	m.statistics.TotalPnL = m.statistics.TotalPnL.Add(trade.Profit)
	if determinate := m.statistics.Wins + m.statistics.Losses; determinate > 0 {
		m.statistics.WinRate = float64(m.statistics.Wins) / float64(determinate)
	}
	day := trade.ExecutedAt.Format("2006-01-02")
	m.dailyPnL[day] = m.dailyPnL[day].Add(trade.Profit)
	return nil
}

// ResolveTrade settles a previously indeterminate trade in memory.
func (m *MockStorage) ResolveTrade(id string, result models.Result, profit decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trades {
		if m.trades[i].ID != id {
			continue
		}
		m.trades[i].Result = result
		m.trades[i].Profit = profit
		m.trades[i].SettledAt = time.Now()
		return nil
	}
	return ErrTradeNotFound
}

// GetTrades returns the recorded trades.
func (m *MockStorage) GetTrades() []models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	trades := make([]models.TradeRecord, len(m.trades))
	copy(trades, m.trades)
	return trades
}

// HasTrade reports whether a trade with the given ID was recorded.
func (m *MockStorage) HasTrade(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trades {
		if m.trades[i].ID == id {
			return true
		}
	}
	return false
}

// Save counts calls and returns the injected error, if any.
func (m *MockStorage) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	return m.saveError
}

// Load is a no-op for the in-memory mock.
func (m *MockStorage) Load() error { return nil }

// GetStatistics returns the running statistics.
func (m *MockStorage) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statistics
}

// GetDailyPnL returns the realized P&L for the given day.
func (m *MockStorage) GetDailyPnL(day time.Time) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL[day.Format("2006-01-02")]
}

// SaveCallCount reports how many times Save was invoked.
func (m *MockStorage) SaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCallCount
}
