package session

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/executor"
	"github.com/jenbur242/pocket-option/internal/martingale"
	"github.com/jenbur242/pocket-option/internal/models"
	"github.com/jenbur242/pocket-option/internal/storage"
)

// scriptedExecutor settles trades instantly from a per-asset outcome queue.
type scriptedExecutor struct {
	mu       sync.Mutex
	outcomes map[string][]models.Outcome
	placed   []executor.Trade
}

func (f *scriptedExecutor) Execute(_ context.Context, trade executor.Trade) (models.Outcome, *broker.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, trade)

	queue := f.outcomes[trade.Asset]
	if len(queue) == 0 {
		return models.Outcome{Result: models.ResultIndeterminate, Mode: models.ModePaper, Reason: "script exhausted"}, nil
	}
	outcome := queue[0]
	f.outcomes[trade.Asset] = queue[1:]
	return outcome, &broker.Order{ID: "deal", Asset: trade.Asset, PlacedAt: time.Now()}
}

func (f *scriptedExecutor) placedTrades() []executor.Trade {
	f.mu.Lock()
	defer f.mu.Unlock()
	trades := make([]executor.Trade, len(f.placed))
	copy(trades, f.placed)
	return trades
}

// queueSource returns each batch once, then empties.
type queueSource struct {
	mu      sync.Mutex
	batches [][]models.Signal
}

func (q *queueSource) Poll() ([]models.Signal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) == 0 {
		return nil, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

func outcome(result models.Result, profit string) models.Outcome {
	p, _ := decimal.NewFromString(profit)
	return models.Outcome{Result: result, Profit: p, Mode: models.ModeLive}
}

func signal(asset string) models.Signal {
	return models.Signal{
		MessageID: "m-" + asset,
		Asset:     asset,
		Direction: models.DirectionCall,
		TradeAt:   time.Now(),
	}
}

func testConfig() Config {
	desc, _ := martingale.Lookup("two-cycle-reset")
	return Config{
		Variant:      desc,
		BaseAmount:   decimal.NewFromInt(1),
		Multiplier:   decimal.RequireFromString("2.5"),
		Scope:        ScopePerSymbol,
		MaxParallel:  2,
		PollInterval: 10 * time.Millisecond,
	}
}

func runSession(t *testing.T, s *Session, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Run(ctx)
}

func TestRunRecordsWinningTrade(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"EURUSD": {outcome(models.ResultWin, "0.8")},
	}}
	store := storage.NewMockStorage()
	source := &queueSource{batches: [][]models.Signal{{signal("EURUSD")}}}
	s := New(testConfig(), source, exec, store, log.New(io.Discard, "", 0))

	err := runSession(t, s, 150*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	trades := store.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ResultWin, trades[0].Result)
	assert.Equal(t, 1, trades[0].Cycle)
	assert.Equal(t, 1, trades[0].Step)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Wins)
	assert.True(t, snap.Profit.Equal(decimal.NewFromFloat(0.8)))
	require.Len(t, snap.Progressions, 1)
	assert.Equal(t, 1, snap.Progressions[0].Cycle)
	assert.Equal(t, 1, snap.Progressions[0].Step)
}

func TestLossChainsImmediateFollowUps(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"EURUSD": {
			outcome(models.ResultLoss, "-1"),
			outcome(models.ResultLoss, "-2.5"),
			outcome(models.ResultWin, "5"),
		},
	}}
	store := storage.NewMockStorage()
	source := &queueSource{batches: [][]models.Signal{{signal("EURUSD")}}}
	s := New(testConfig(), source, exec, store, log.New(io.Discard, "", 0))

	_ = runSession(t, s, 200*time.Millisecond)

	trades := store.GetTrades()
	require.Len(t, trades, 3)

	wantStakes := []string{"1", "2.5", "6.25"}
	for i, trade := range trades {
		assert.Equal(t, i+1, trade.Step, "trade %d step", i)
		assert.True(t, trade.Stake.Equal(decimal.RequireFromString(wantStakes[i])),
			"trade %d stake = %s, want %s", i, trade.Stake, wantStakes[i])
	}

	snap := s.Snapshot()
	assert.True(t, snap.Profit.Equal(decimal.NewFromFloat(1.5)), "profit = %s", snap.Profit)
	require.Len(t, snap.Progressions, 1)
	assert.Equal(t, 1, snap.Progressions[0].Step, "win should reset the progression")
}

func TestStakesClampedToBrokerBounds(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"EURUSD": {
			outcome(models.ResultLoss, "-1"),
			outcome(models.ResultLoss, "-2.5"),
			outcome(models.ResultWin, "4"),
		},
	}}
	cfg := testConfig()
	cfg.BaseAmount = decimal.RequireFromString("0.5") // below the broker minimum
	cfg.MinStake = decimal.NewFromInt(1)
	cfg.MaxStake = decimal.NewFromInt(5)
	store := storage.NewMockStorage()
	source := &queueSource{batches: [][]models.Signal{{signal("EURUSD")}}}
	s := New(cfg, source, exec, store, log.New(io.Discard, "", 0))

	_ = runSession(t, s, 200*time.Millisecond)

	trades := store.GetTrades()
	require.Len(t, trades, 3)

	// 0.5 snaps up to the $1 minimum; the escalation to 6.25 snaps down to
	// the $5 maximum. The progression sees the stakes actually placed.
	wantStakes := []string{"1", "2.5", "5"}
	for i, trade := range trades {
		assert.True(t, trade.Stake.Equal(decimal.RequireFromString(wantStakes[i])),
			"trade %d stake = %s, want %s", i, trade.Stake, wantStakes[i])
	}
}

func TestIndeterminateHoldsProgression(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"EURUSD": {
			outcome(models.ResultLoss, "-1"),
			{Result: models.ResultIndeterminate, Mode: models.ModeLive, Reason: "settlement timeout"},
		},
	}}
	store := storage.NewMockStorage()
	source := &queueSource{batches: [][]models.Signal{{signal("EURUSD")}}}
	s := New(testConfig(), source, exec, store, log.New(io.Discard, "", 0))

	_ = runSession(t, s, 150*time.Millisecond)

	trades := store.GetTrades()
	require.Len(t, trades, 2)
	assert.Equal(t, models.ResultIndeterminate, trades[1].Result)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Indeterminate)
	assert.True(t, snap.Profit.Equal(decimal.NewFromInt(-1)), "indeterminate must not change profit")
	require.Len(t, snap.Progressions, 1)
	// Held at C1S2: the unknown outcome neither advanced nor reset anything.
	assert.Equal(t, 1, snap.Progressions[0].Cycle)
	assert.Equal(t, 2, snap.Progressions[0].Step)
}

func TestStopLossEndsSession(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"EURUSD": {
			outcome(models.ResultLoss, "-1"),
			outcome(models.ResultLoss, "-2.5"),
			outcome(models.ResultLoss, "-6.25"),
		},
	}}
	cfg := testConfig()
	cfg.StopLoss = decimal.NewFromInt(3)
	store := storage.NewMockStorage()
	source := &queueSource{batches: [][]models.Signal{{signal("EURUSD")}}}
	s := New(cfg, source, exec, store, log.New(io.Discard, "", 0))

	err := runSession(t, s, 500*time.Millisecond)
	require.ErrorIs(t, err, ErrStopLoss)

	// The chain stopped at the breach, not at the script's end.
	assert.Len(t, store.GetTrades(), 2)
}

func TestTakeProfitEndsSession(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"EURUSD": {outcome(models.ResultWin, "10")},
	}}
	cfg := testConfig()
	cfg.TakeProfit = decimal.NewFromInt(5)
	store := storage.NewMockStorage()
	source := &queueSource{batches: [][]models.Signal{{signal("EURUSD")}}}
	s := New(cfg, source, exec, store, log.New(io.Discard, "", 0))

	err := runSession(t, s, 500*time.Millisecond)
	require.ErrorIs(t, err, ErrTakeProfit)
}

func TestMidSequenceSymbolsBlockNewOnes(t *testing.T) {
	// EURUSD ends its sequence parked mid-recovery (indeterminate at step 2),
	// so GBPUSD signals arriving later must be held.
	exec := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"EURUSD": {
			outcome(models.ResultLoss, "-1"),
			{Result: models.ResultIndeterminate, Mode: models.ModeLive},
		},
		"GBPUSD": {outcome(models.ResultWin, "0.8")},
	}}
	store := storage.NewMockStorage()
	source := &queueSource{batches: [][]models.Signal{
		{signal("EURUSD")},
		{}, // give the first sequence a tick to finish
		{signal("GBPUSD")},
	}}
	s := New(testConfig(), source, exec, store, log.New(io.Discard, "", 0))

	_ = runSession(t, s, 200*time.Millisecond)

	for _, trade := range exec.placedTrades() {
		assert.NotEqual(t, "GBPUSD", trade.Asset,
			"new symbol must not start while another is mid-sequence")
	}
}

func TestUnsupportedAssetRunsOnPaper(t *testing.T) {
	live := &scriptedExecutor{outcomes: map[string][]models.Outcome{}}
	paper := &scriptedExecutor{outcomes: map[string][]models.Outcome{
		"XAUUSD": {{Result: models.ResultWin, Profit: decimal.NewFromFloat(0.8), Mode: models.ModePaper}},
	}}
	store := storage.NewMockStorage()

	sig := signal("XAUUSD")
	sig.Unsupported = true
	source := &queueSource{batches: [][]models.Signal{{sig}}}
	s := New(testConfig(), source, live, store, log.New(io.Discard, "", 0))
	s.SetPaperExecutor(paper)

	_ = runSession(t, s, 150*time.Millisecond)

	assert.Empty(t, live.placedTrades(), "live executor must not see unsupported assets")
	require.Len(t, paper.placedTrades(), 1)
	trades := store.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ModePaper, trades[0].Mode)
}

func TestGlobalScopeSharesOneProgression(t *testing.T) {
	cfg := testConfig()
	cfg.Scope = ScopeGlobal
	s := New(cfg, &queueSource{}, &scriptedExecutor{outcomes: map[string][]models.Outcome{}},
		storage.NewMockStorage(), log.New(io.Discard, "", 0))

	assert.Equal(t, "", s.slotFor("EURUSD"))
	assert.Equal(t, "", s.slotFor("GBPUSD"))

	s.mu.Lock()
	p1 := s.progressionLocked("EURUSD")
	p2 := s.progressionLocked("GBPUSD")
	s.mu.Unlock()
	assert.Same(t, p1, p2)
}

func TestPollErrorDoesNotKillLoop(t *testing.T) {
	s := New(testConfig(), failingSource{}, &scriptedExecutor{outcomes: map[string][]models.Outcome{}},
		storage.NewMockStorage(), log.New(io.Discard, "", 0))
	err := runSession(t, s, 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingSource struct{}

func (failingSource) Poll() ([]models.Signal, error) {
	return nil, errors.New("csv unreadable")
}
