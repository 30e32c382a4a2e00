// Package session drives the trading loop: poll the signal reader, size the
// stake with the martingale progression, execute through the broker, and
// keep the books. Progressions are owned here, in an explicit per-symbol
// map, and every settled trade flows to storage and metrics.
package session

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/executor"
	"github.com/jenbur242/pocket-option/internal/martingale"
	"github.com/jenbur242/pocket-option/internal/metrics"
	"github.com/jenbur242/pocket-option/internal/models"
	"github.com/jenbur242/pocket-option/internal/storage"
	"github.com/jenbur242/pocket-option/internal/util"
)

// Scope selects progression ownership.
const (
	// ScopePerSymbol gives every traded symbol its own progression.
	ScopePerSymbol = "per_symbol"
	// ScopeGlobal shares one progression across all symbols; trades run
	// strictly one at a time.
	ScopeGlobal = "global"
)

// ErrStopLoss ends the session when cumulative loss breaches the limit.
var ErrStopLoss = errors.New("session: stop-loss reached")

// ErrTakeProfit ends the session when cumulative profit reaches the target.
var ErrTakeProfit = errors.New("session: take-profit reached")

// SignalSource yields due signals; satisfied by signals.Reader.
type SignalSource interface {
	Poll() ([]models.Signal, error)
}

// TradeExecutor runs one scheduled trade to settlement.
type TradeExecutor interface {
	Execute(ctx context.Context, trade executor.Trade) (models.Outcome, *broker.Order)
}

// Config parameterizes a Session.
type Config struct {
	Variant      martingale.Descriptor
	BaseAmount   decimal.Decimal
	Multiplier   decimal.Decimal
	Scope        string
	StopLoss     decimal.Decimal // 0 disables
	TakeProfit   decimal.Decimal // 0 disables
	MinStake     decimal.Decimal // broker order minimum
	MaxStake     decimal.Decimal // broker order maximum, 0 = unbounded
	MaxParallel  int
	PollInterval time.Duration
}

// Session owns the trading loop state.
type Session struct {
	cfg    Config
	source SignalSource
	exec   TradeExecutor
	store  storage.Interface
	logger *log.Logger

	// paperExec, when set, executes signals whose asset the live broker
	// does not list. Nil means such signals run through exec like any other.
	paperExec TradeExecutor

	mu           sync.Mutex
	progressions map[string]*martingale.Progression
	active       map[string]bool
	profit       decimal.Decimal
	counts       map[models.Result]int
	stop         error // threshold breach, checked by the loop
}

// ProgressionState is a dashboard-facing snapshot of one progression.
type ProgressionState struct {
	Symbol string `json:"symbol"`
	Cycle  int    `json:"cycle"`
	Step   int    `json:"step"`
}

// Snapshot is the session's externally visible state.
type Snapshot struct {
	Profit        decimal.Decimal    `json:"profit"`
	Trades        int                `json:"trades"`
	Wins          int                `json:"wins"`
	Losses        int                `json:"losses"`
	Draws         int                `json:"draws"`
	Indeterminate int                `json:"indeterminate"`
	Progressions  []ProgressionState `json:"progressions"`
}

// New creates a Session.
func New(cfg Config, source SignalSource, exec TradeExecutor, store storage.Interface, logger *log.Logger) *Session {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopePerSymbol
	}
	if logger == nil {
		logger = log.New(os.Stderr, "session: ", log.LstdFlags)
	}
	return &Session{
		cfg:          cfg,
		source:       source,
		exec:         exec,
		store:        store,
		logger:       logger,
		progressions: make(map[string]*martingale.Progression),
		active:       make(map[string]bool),
		counts:       make(map[models.Result]int),
	}
}

// SetPaperExecutor routes unsupported-asset signals through the given
// executor instead of the live one.
func (s *Session) SetPaperExecutor(exec TradeExecutor) { s.paperExec = exec }

// Run polls for signals and dispatches them until the context is canceled
// or a profit threshold ends the session.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case <-ticker.C:
			if err := s.stopCause(); err != nil {
				_ = g.Wait()
				return err
			}
			batch, err := s.source.Poll()
			if err != nil {
				s.logger.Printf("signal poll: %v", err)
				continue
			}
			s.dispatch(gctx, g, batch)
		}
	}
}

// dispatch launches sequence tasks for due signals. Symbols mid-recovery
// have priority: while any progression is past its first step, no new
// symbol may start a sequence.
func (s *Session) dispatch(ctx context.Context, g *errgroup.Group, batch []models.Signal) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	recovering := false
	for _, p := range s.progressions {
		if p.InSequence() {
			recovering = true
			break
		}
	}
	var runnable []models.Signal
	for _, sig := range batch {
		slot := s.slotFor(sig.Asset)
		if s.active[slot] {
			continue
		}
		prog := s.progressionLocked(sig.Asset)
		if recovering && !prog.InSequence() {
			s.logger.Printf("holding %s: symbols mid-sequence have priority", sig.Asset)
			continue
		}
		s.active[slot] = true
		runnable = append(runnable, sig)
	}
	s.mu.Unlock()

	for _, sig := range runnable {
		sig := sig
		g.Go(func() error {
			defer func() {
				s.mu.Lock()
				delete(s.active, s.slotFor(sig.Asset))
				s.mu.Unlock()
			}()
			s.runSequence(ctx, sig)
			return nil
		})
	}
}

// slotFor is the concurrency key: per-symbol scope runs symbols in
// parallel; global scope serializes everything on one slot.
func (s *Session) slotFor(symbol string) string {
	if s.cfg.Scope == ScopeGlobal {
		return ""
	}
	return symbol
}

func (s *Session) progressionLocked(symbol string) *martingale.Progression {
	key := s.slotFor(symbol)
	p, ok := s.progressions[key]
	if !ok {
		p = martingale.New(s.cfg.Variant, s.cfg.BaseAmount, s.cfg.Multiplier)
		s.progressions[key] = p
	}
	return p
}

// runSequence executes one symbol's martingale sequence, strictly
// sequentially: each trade settles before the next step is placed.
func (s *Session) runSequence(ctx context.Context, sig models.Signal) {
	s.mu.Lock()
	prog := s.progressionLocked(sig.Asset)
	s.mu.Unlock()

	exec := s.exec
	if sig.Unsupported && s.paperExec != nil {
		s.logger.Printf("%s is not listed by the broker; trading on paper", sig.Asset)
		exec = s.paperExec
	}

	tradeAt := sig.TradeAt
	for {
		if ctx.Err() != nil || s.stopCause() != nil {
			return
		}

		s.mu.Lock()
		stake := util.ClampStake(util.RoundToCent(prog.NextStake()), s.cfg.MinStake, s.cfg.MaxStake)
		cycle, step := prog.Cycle(), prog.Step()
		s.mu.Unlock()

		s.logger.Printf("%s %s C%dS%d stake $%s at %s",
			sig.Asset, sig.Direction, cycle, step, stake, tradeAt.Format("15:04:05"))

		outcome, order := exec.Execute(ctx, executor.Trade{
			Asset:     sig.Asset,
			Direction: sig.Direction,
			Stake:     stake,
			TradeAt:   tradeAt,
		})

		s.mu.Lock()
		action := prog.Record(stake, outcome.Result)
		s.counts[outcome.Result]++
		s.profit = s.profit.Add(outcome.Profit)
		profit := s.profit
		nextCycle, nextStep := prog.Cycle(), prog.Step()
		s.mu.Unlock()

		s.persistTrade(sig, stake, cycle, step, outcome, order)
		metrics.ObserveTrade(string(outcome.Result), string(outcome.Mode))
		metrics.SetSessionProfit(profit.InexactFloat64())
		metrics.SetProgressionPosition(sig.Asset, nextCycle, nextStep)

		s.logger.Printf("%s settled %s (%s): profit %s, session %s",
			sig.Asset, outcome.Result, action, outcome.Profit, profit)

		if s.checkThresholds(profit) {
			return
		}

		// Only a loss with steps remaining chains an immediate follow-up.
		if outcome.Result != models.ResultLoss {
			return
		}
		if action != martingale.ActionContinue && action != martingale.ActionAdvanceCycle {
			return
		}
		tradeAt = time.Now().Add(executor.NextMinuteDelay(time.Now()))
	}
}

func (s *Session) persistTrade(sig models.Signal, stake decimal.Decimal, cycle, step int,
	outcome models.Outcome, order *broker.Order) {
	record := models.TradeRecord{
		ID:         uuid.NewString(),
		Asset:      sig.Asset,
		Direction:  sig.Direction,
		Stake:      stake,
		Cycle:      cycle,
		Step:       step,
		Result:     outcome.Result,
		Profit:     outcome.Profit,
		Mode:       outcome.Mode,
		SignalTime: sig.SignalTime,
		ExecutedAt: time.Now(),
	}
	if order != nil {
		record.OrderID = order.ID
		record.ExecutedAt = order.PlacedAt
		record.SettledAt = time.Now()
	}
	if err := s.store.AddTrade(record); err != nil {
		s.logger.Printf("recording trade %s: %v", record.ID, err)
	}
}

// checkThresholds flags the session for termination when cumulative profit
// breaches the stop-loss or take-profit limit.
func (s *Session) checkThresholds(profit decimal.Decimal) bool {
	var cause error
	if s.cfg.StopLoss.Sign() > 0 && profit.LessThanOrEqual(s.cfg.StopLoss.Neg()) {
		cause = ErrStopLoss
	}
	if s.cfg.TakeProfit.Sign() > 0 && profit.GreaterThanOrEqual(s.cfg.TakeProfit) {
		cause = ErrTakeProfit
	}
	if cause == nil {
		return false
	}
	s.mu.Lock()
	if s.stop == nil {
		s.stop = cause
		s.logger.Printf("session ending: %v (profit %s)", cause, profit)
	}
	s.mu.Unlock()
	return true
}

func (s *Session) stopCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

// Snapshot returns the current session state for the dashboard.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Profit:        s.profit,
		Wins:          s.counts[models.ResultWin],
		Losses:        s.counts[models.ResultLoss],
		Draws:         s.counts[models.ResultDraw],
		Indeterminate: s.counts[models.ResultIndeterminate],
	}
	snap.Trades = snap.Wins + snap.Losses + snap.Draws + snap.Indeterminate
	for symbol, p := range s.progressions {
		if symbol == "" {
			symbol = "global"
		}
		snap.Progressions = append(snap.Progressions, ProgressionState{
			Symbol: symbol,
			Cycle:  p.Cycle(),
			Step:   p.Step(),
		})
	}
	return snap
}
