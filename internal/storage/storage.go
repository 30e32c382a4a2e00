// Package storage persists trade history and running statistics to a JSON
// file with atomic writes.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/models"
)

// JSONStorage is the file-backed Interface implementation.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
}

type storageData struct {
	Trades      []models.TradeRecord       `json:"trades"`
	DailyPnL    map[string]decimal.Decimal `json:"daily_pnl"`
	Statistics  Statistics                 `json:"statistics"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// NewJSONStorage opens (or creates) the storage file at filepath.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data: &storageData{
			DailyPnL: make(map[string]decimal.Decimal),
		},
	}

	// Load existing data if file exists
	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the storage file into memory.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	loaded := &storageData{}
	if err := json.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if loaded.DailyPnL == nil {
		loaded.DailyPnL = make(map[string]decimal.Decimal)
	}
	s.data = loaded
	return nil
}

// Save writes the storage file atomically via a temp file and rename.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// AddTrade appends a settled trade, updates statistics and daily P&L, and
// persists.
func (s *JSONStorage) AddTrade(trade models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Trades = append(s.data.Trades, trade)
	s.updateStatistics(trade)

	day := trade.ExecutedAt.Format("2006-01-02")
	s.data.DailyPnL[day] = s.data.DailyPnL[day].Add(trade.Profit)

	return s.saveLocked()
}

func (s *JSONStorage) updateStatistics(trade models.TradeRecord) {
	stats := &s.data.Statistics
	stats.TotalTrades++

	switch trade.Result {
	case models.ResultWin:
		stats.Wins++
		if stats.CurrentStreak >= 0 {
			stats.CurrentStreak++
		} else {
			stats.CurrentStreak = 1
		}
		// Running average over all winning trades.
		total := stats.AverageWin.Mul(decimal.NewFromInt(int64(stats.Wins - 1))).Add(trade.Profit)
		stats.AverageWin = total.Div(decimal.NewFromInt(int64(stats.Wins)))
	case models.ResultLoss:
		stats.Losses++
		if stats.CurrentStreak <= 0 {
			stats.CurrentStreak--
		} else {
			stats.CurrentStreak = -1
		}
		total := stats.AverageLoss.Mul(decimal.NewFromInt(int64(stats.Losses - 1))).Add(trade.Profit)
		stats.AverageLoss = total.Div(decimal.NewFromInt(int64(stats.Losses)))
	case models.ResultDraw:
		stats.Draws++
	default:
		// Indeterminate: counted separately, no P&L, no streak change.
		stats.Indeterminate++
		return
	}

	stats.TotalPnL = stats.TotalPnL.Add(trade.Profit)

	// Win rate over determinate win/loss trades only.
	if determinate := stats.Wins + stats.Losses; determinate > 0 {
		stats.WinRate = float64(stats.Wins) / float64(determinate)
	}

	// Drawdown measured from the running P&L peak.
	if stats.TotalPnL.GreaterThan(stats.PeakPnL) {
		stats.PeakPnL = stats.TotalPnL
	}
	if dd := stats.PeakPnL.Sub(stats.TotalPnL); dd.GreaterThan(stats.MaxDrawdown) {
		stats.MaxDrawdown = dd
	}
}

// ResolveTrade settles a previously indeterminate trade with its real
// outcome and rebuilds the derived statistics.
func (s *JSONStorage) ResolveTrade(id string, result models.Result, profit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Trades {
		trade := &s.data.Trades[i]
		if trade.ID != id {
			continue
		}
		if trade.Result != models.ResultIndeterminate {
			return fmt.Errorf("trade %s already settled as %s", id, trade.Result)
		}
		trade.Result = result
		trade.Profit = profit
		trade.SettledAt = time.Now()

		day := trade.ExecutedAt.Format("2006-01-02")
		s.data.DailyPnL[day] = s.data.DailyPnL[day].Add(profit)

		s.rebuildStatistics()
		return s.saveLocked()
	}
	return fmt.Errorf("%w: %s", ErrTradeNotFound, id)
}

// rebuildStatistics replays the full history; streaks and drawdown cannot be
// patched incrementally once a past trade changes.
func (s *JSONStorage) rebuildStatistics() {
	s.data.Statistics = Statistics{}
	for i := range s.data.Trades {
		s.updateStatistics(s.data.Trades[i])
	}
}

// GetTrades returns a copy of the recorded trade history.
func (s *JSONStorage) GetTrades() []models.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trades := make([]models.TradeRecord, len(s.data.Trades))
	copy(trades, s.data.Trades)
	return trades
}

// HasTrade reports whether a trade with the given ID was recorded.
func (s *JSONStorage) HasTrade(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.data.Trades {
		if s.data.Trades[i].ID == id {
			return true
		}
	}
	return false
}

// GetStatistics returns a snapshot of the running statistics.
func (s *JSONStorage) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Statistics
}

// GetDailyPnL returns the realized P&L for the given day.
func (s *JSONStorage) GetDailyPnL(day time.Time) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.DailyPnL[day.Format("2006-01-02")]
}
