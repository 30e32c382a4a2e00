// Package martingale implements the bet-sizing progression engine. A
// Progression tracks a (cycle, step) position inside a bounded martingale
// schedule and computes the next stake from the stakes actually placed so
// far. One parameterized engine replaces the strategy-specific loops: each
// strategy is a Descriptor, not its own control flow.
package martingale

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/models"
)

// Action is what the progression did in response to a recorded outcome.
type Action string

const (
	// ActionReset — a win; the progression returned to its starting position.
	ActionReset Action = "reset"
	// ActionContinue — a loss with steps remaining; step advanced by one.
	ActionContinue Action = "continue"
	// ActionAdvanceCycle — a loss exhausted the cycle's steps; moved to the
	// next cycle at step 1.
	ActionAdvanceCycle Action = "advance_cycle"
	// ActionResetAfterMaxLoss — a loss at the top cycle's last step under the
	// reset exhaust policy; progression returned to (1, 1).
	ActionResetAfterMaxLoss Action = "reset_after_max_loss"
	// ActionParkAtMax — a loss at the top cycle's last step under the park
	// exhaust policy; progression stays at the top cycle, step 1.
	ActionParkAtMax Action = "park_at_max"
	// ActionHold — a draw or indeterminate outcome; state unchanged. An
	// outcome we could not establish never advances the schedule.
	ActionHold Action = "hold"
)

// ExhaustPolicy decides what happens after losing the last step of the last
// cycle.
type ExhaustPolicy string

const (
	// ExhaustReset returns the progression to (cycle 1, step 1).
	ExhaustReset ExhaustPolicy = "reset"
	// ExhaustPark keeps the progression at the top cycle, step 1.
	ExhaustPark ExhaustPolicy = "park"
)

// BaseRule decides the stake at step 1 of a cycle.
type BaseRule string

const (
	// BaseFresh starts every cycle from the configured base amount.
	BaseFresh BaseRule = "fresh"
	// BaseCarry multiplies the exhausted previous cycle's final stake, but
	// only from CarryFromCycle onward; earlier cycles start fresh.
	BaseCarry BaseRule = "carry"
	// BaseContinuous treats the whole schedule as one geometric run:
	// stake = base × multiplier^(n-1) where n counts trades across cycles.
	BaseContinuous BaseRule = "continuous"
)

// Descriptor parameterizes one martingale variant.
type Descriptor struct {
	Name           string
	MaxCycles      int
	MaxSteps       int
	Base           BaseRule
	CarryFromCycle int // first cycle whose base carries; only for BaseCarry
	WinResetsCycle bool
	Exhaust        ExhaustPolicy
}

// Variants are the progression schedules supported by the bot, keyed by the
// name used in configuration.
var Variants = map[string]Descriptor{
	"single-cycle": {
		Name: "single-cycle", MaxCycles: 1, MaxSteps: 3,
		Base: BaseFresh, WinResetsCycle: true, Exhaust: ExhaustReset,
	},
	"two-cycle-reset": {
		Name: "two-cycle-reset", MaxCycles: 2, MaxSteps: 3,
		Base: BaseFresh, WinResetsCycle: true, Exhaust: ExhaustPark,
	},
	"three-cycle-cumulative": {
		Name: "three-cycle-cumulative", MaxCycles: 3, MaxSteps: 3,
		Base: BaseCarry, CarryFromCycle: 3, WinResetsCycle: true, Exhaust: ExhaustPark,
	},
	"three-cycle-continuous": {
		Name: "three-cycle-continuous", MaxCycles: 3, MaxSteps: 3,
		Base: BaseContinuous, WinResetsCycle: true, Exhaust: ExhaustPark,
	},
	"manual": {
		Name: "manual", MaxCycles: 2, MaxSteps: 2,
		Base: BaseCarry, CarryFromCycle: 2, WinResetsCycle: true, Exhaust: ExhaustReset,
	},
}

// Lookup returns the descriptor for a variant name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := Variants[name]
	return d, ok
}

// Progression is the mutable state of one martingale sequence. It is not
// safe for concurrent use; the session serializes access per symbol.
type Progression struct {
	desc       Descriptor
	base       decimal.Decimal
	multiplier decimal.Decimal

	cycle        int
	step         int
	stakeHistory []decimal.Decimal // stakes placed in the current cycle
	carried      decimal.Decimal   // final stake of the last exhausted cycle
	hasCarried   bool
}

// New creates a progression at (cycle 1, step 1).
func New(desc Descriptor, baseAmount, multiplier decimal.Decimal) *Progression {
	return &Progression{
		desc:       desc,
		base:       baseAmount,
		multiplier: multiplier,
		cycle:      1,
		step:       1,
	}
}

// Cycle returns the current cycle, 1-based.
func (p *Progression) Cycle() int { return p.cycle }

// Step returns the current step within the cycle, 1-based.
func (p *Progression) Step() int { return p.step }

// Variant returns the descriptor the progression was built with.
func (p *Progression) Variant() Descriptor { return p.desc }

// InSequence reports whether the progression is mid-recovery, i.e. past the
// very first trade of the schedule. The session gives such symbols priority.
func (p *Progression) InSequence() bool {
	return p.cycle > 1 || p.step > 1
}

// cycleBase is the stake at step 1 of the given cycle.
func (p *Progression) cycleBase(cycle int) decimal.Decimal {
	switch p.desc.Base {
	case BaseContinuous:
		n := (cycle-1)*p.desc.MaxSteps + 1
		return p.base.Mul(p.multiplier.Pow(decimal.NewFromInt(int64(n - 1))))
	case BaseCarry:
		if cycle >= p.desc.CarryFromCycle && p.hasCarried {
			return p.carried.Mul(p.multiplier)
		}
		return p.base
	default:
		return p.base
	}
}

// NextStake computes the stake for the current (cycle, step) position.
// Step 1 uses the cycle base; later steps multiply the recorded stake of the
// previous step, falling back to the closed-form cycleBase × multiplier^(s-1)
// when no stake was recorded.
func (p *Progression) NextStake() decimal.Decimal {
	if p.step == 1 {
		return p.cycleBase(p.cycle)
	}
	if len(p.stakeHistory) >= p.step-1 {
		return p.stakeHistory[p.step-2].Mul(p.multiplier)
	}
	exp := decimal.NewFromInt(int64(p.step - 1))
	return p.cycleBase(p.cycle).Mul(p.multiplier.Pow(exp))
}

// Record applies a settled outcome for a trade placed at the current
// position with the given stake, mutates the state, and returns the action
// taken. Draw and indeterminate outcomes hold the state exactly as it was.
func (p *Progression) Record(stake decimal.Decimal, result models.Result) Action {
	switch result {
	case models.ResultWin:
		p.reset(p.desc.WinResetsCycle)
		return ActionReset
	case models.ResultLoss:
		return p.recordLoss(stake)
	default:
		return ActionHold
	}
}

func (p *Progression) recordLoss(stake decimal.Decimal) Action {
	p.stakeHistory = append(p.stakeHistory, stake)

	if p.step < p.desc.MaxSteps {
		p.step++
		return ActionContinue
	}

	// Cycle exhausted. Remember its final stake for carry-based bases.
	p.carried = stake
	p.hasCarried = true
	p.stakeHistory = p.stakeHistory[:0]
	p.step = 1

	if p.cycle < p.desc.MaxCycles {
		p.cycle++
		return ActionAdvanceCycle
	}

	if p.desc.Exhaust == ExhaustPark {
		return ActionParkAtMax
	}
	p.reset(true)
	return ActionResetAfterMaxLoss
}

func (p *Progression) reset(resetCycle bool) {
	p.step = 1
	if resetCycle {
		p.cycle = 1
	}
	p.stakeHistory = p.stakeHistory[:0]
	p.carried = decimal.Decimal{}
	p.hasCarried = false
}

// String renders the position for log lines, e.g. "two-cycle-reset C2S3".
func (p *Progression) String() string {
	return fmt.Sprintf("%s C%dS%d", p.desc.Name, p.cycle, p.step)
}
