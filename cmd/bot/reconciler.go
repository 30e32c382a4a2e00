package main

import (
	"context"
	"log"
	"time"

	"github.com/jenbur242/pocket-option/internal/broker"
	"github.com/jenbur242/pocket-option/internal/models"
	"github.com/jenbur242/pocket-option/internal/storage"
)

const outcomeFetchTimeout = 8 * time.Second

// Reconciler resolves trades left indeterminate by a crash or settlement
// timeout: on startup it re-asks the broker for each unresolved order's
// outcome and settles the record when the broker still knows the answer.
type Reconciler struct {
	broker  broker.Broker
	storage storage.Interface
	logger  *log.Logger
	// maxAge bounds how far back reconciliation reaches; the broker only
	// keeps recent deal history.
	maxAge time.Duration
}

// NewReconciler creates a reconciler for unresolved trade records.
func NewReconciler(brk broker.Broker, store storage.Interface, logger *log.Logger, maxAge time.Duration) *Reconciler {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Reconciler{
		broker:  brk,
		storage: store,
		logger:  logger,
		maxAge:  maxAge,
	}
}

// ReconcileTrades scans stored history for indeterminate trades and tries to
// settle each against the broker. It returns how many trades were resolved.
func (r *Reconciler) ReconcileTrades(ctx context.Context) int {
	resolved := 0
	for _, trade := range r.storage.GetTrades() {
		if trade.Result != models.ResultIndeterminate {
			continue
		}
		if trade.OrderID == "" {
			// Placement never succeeded; there is nothing to ask the
			// broker about.
			continue
		}
		if age := time.Since(trade.ExecutedAt); age > r.maxAge {
			r.logger.Printf("Skipping stale unresolved trade %s (%s old)", trade.ID, age.Round(time.Minute))
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, outcomeFetchTimeout)
		settlement, err := r.broker.CheckOutcome(callCtx, trade.OrderID)
		cancel()
		if err != nil {
			r.logger.Printf("Reconciliation: outcome check for order %s: %v", trade.OrderID, err)
			continue
		}
		if settlement == nil || !settlement.Completed {
			continue
		}

		if err := r.storage.ResolveTrade(trade.ID, settlement.Result, settlement.Profit); err != nil {
			r.logger.Printf("Reconciliation: resolving trade %s: %v", trade.ID, err)
			continue
		}
		r.logger.Printf("Reconciled trade %s: %s, profit %s", trade.ID, settlement.Result, settlement.Profit)
		resolved++

		if ctx.Err() != nil {
			break
		}
	}
	return resolved
}
