// Command replay runs a recorded signal CSV through the martingale engine
// against the simulated broker, with a virtual clock instead of real waits.
// Useful for sizing a variant before risking a live session.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/martingale"
	"github.com/jenbur242/pocket-option/internal/models"
	"github.com/jenbur242/pocket-option/internal/signals"
	"github.com/jenbur242/pocket-option/internal/util"
)

// wideWindow accepts every signal in the file regardless of its age.
const wideWindow = 10 * 365 * 24 * time.Hour

func main() {
	var (
		file    = flag.String("file", "", "Signal CSV file to replay (required)")
		variant = flag.String("variant", "two-cycle-reset", "Martingale variant")
		base    = flag.String("base", "1", "Base stake in USD")
		mult    = flag.String("mult", "2.5", "Loss multiplier")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "Simulation seed")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	desc, ok := martingale.Lookup(*variant)
	if !ok {
		log.Fatalf("Unknown variant %q", *variant)
	}
	baseAmount, err := decimal.NewFromString(*base)
	if err != nil || baseAmount.Sign() <= 0 {
		log.Fatalf("Invalid base stake %q", *base)
	}
	multiplier, err := decimal.NewFromString(*mult)
	if err != nil || multiplier.LessThanOrEqual(decimal.NewFromInt(1)) {
		log.Fatalf("Invalid multiplier %q", *mult)
	}

	logger := log.New(io.Discard, "", 0)
	reader := signals.NewReader(signals.Options{
		File:    *file,
		MaxLag:  wideWindow,
		MaxLead: wideWindow,
		Logger:  logger,
	})
	batch, err := reader.Poll()
	if err != nil {
		log.Fatalf("Reading %s: %v", *file, err)
	}
	if len(batch) == 0 {
		log.Fatalf("No tradable signals in %s", *file)
	}

	fmt.Printf("Replaying %d signals from %s (variant %s, base $%s, mult %s, seed %d)\n\n",
		len(batch), *file, desc.Name, baseAmount, multiplier, *seed)

	result := replay(batch, desc, baseAmount, multiplier, *seed)
	result.print()
}

type replayResult struct {
	trades        int
	wins          int
	losses        int
	draws         int
	indeterminate int
	profit        decimal.Decimal
	maxStake      decimal.Decimal
	peak          decimal.Decimal
	maxDrawdown   decimal.Decimal
}

// replay runs every signal sequentially on a virtual clock. Losses chain an
// immediate follow-up step on the next minute, exactly like the live session.
func replay(batch []models.Signal, desc martingale.Descriptor, base, mult decimal.Decimal, seed int64) *replayResult {
	sim := broker.NewSimulatedBroker(seed)
	clock := batch[0].TradeAt
	sim.SetClock(func() time.Time { return clock })

	ctx := context.Background()
	if err := sim.Connect(ctx); err != nil {
		log.Fatalf("Simulated broker: %v", err)
	}

	progressions := make(map[string]*martingale.Progression)
	res := &replayResult{}

	for _, sig := range batch {
		if sig.TradeAt.After(clock) {
			clock = sig.TradeAt
		}
		prog, ok := progressions[sig.Asset]
		if !ok {
			prog = martingale.New(desc, base, mult)
			progressions[sig.Asset] = prog
		}

		for {
			stake := util.RoundToCent(prog.NextStake())
			if stake.GreaterThan(res.maxStake) {
				res.maxStake = stake
			}

			order, err := sim.PlaceOrder(ctx, sig.Asset, sig.Direction, stake, 60)
			if err != nil {
				log.Fatalf("Placing order: %v", err)
			}

			// Jump the virtual clock past expiry and collect the outcome.
			clock = clock.Add(order.Duration + time.Second)
			settlement, err := sim.CheckOutcome(ctx, order.ID)
			if err != nil {
				log.Fatalf("Checking outcome: %v", err)
			}

			action := prog.Record(stake, settlement.Result)
			res.record(settlement)

			if settlement.Result != models.ResultLoss {
				break
			}
			if action != martingale.ActionContinue && action != martingale.ActionAdvanceCycle {
				break
			}
			clock = clock.Add(time.Minute)
		}
	}

	return res
}

func (r *replayResult) record(s *broker.Settlement) {
	r.trades++
	switch s.Result {
	case models.ResultWin:
		r.wins++
	case models.ResultLoss:
		r.losses++
	case models.ResultDraw:
		r.draws++
	default:
		r.indeterminate++
	}
	r.profit = r.profit.Add(s.Profit)
	if r.profit.GreaterThan(r.peak) {
		r.peak = r.profit
	}
	if dd := r.peak.Sub(r.profit); dd.GreaterThan(r.maxDrawdown) {
		r.maxDrawdown = dd
	}
}

func (r *replayResult) print() {
	rows := []struct {
		label string
		value string
	}{
		{"Trades", fmt.Sprintf("%d", r.trades)},
		{"Wins", fmt.Sprintf("%d", r.wins)},
		{"Losses", fmt.Sprintf("%d", r.losses)},
		{"Draws", fmt.Sprintf("%d", r.draws)},
		{"Indeterminate", fmt.Sprintf("%d", r.indeterminate)},
		{"Net profit", "$" + r.profit.StringFixed(2)},
		{"Max stake", "$" + r.maxStake.StringFixed(2)},
		{"Max drawdown", "$" + r.maxDrawdown.StringFixed(2)},
	}
	if determinate := r.wins + r.losses; determinate > 0 {
		rows = append(rows, struct {
			label string
			value string
		}{"Win rate", fmt.Sprintf("%.1f%%", 100*float64(r.wins)/float64(determinate))})
	}
	for _, row := range rows {
		fmt.Printf("%-14s %s\n", row.label, row.value)
	}
}
