// Package models provides the domain types shared across the trading bot:
// signals scraped from Telegram channels, trade outcomes, and settled trade
// records.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a binary option trade.
type Direction string

const (
	// DirectionCall bets the price closes above the entry price.
	DirectionCall Direction = "call"
	// DirectionPut bets the price closes below the entry price.
	DirectionPut Direction = "put"
)

// Valid returns true if the Direction is one of the defined constants.
func (d Direction) Valid() bool {
	return d == DirectionCall || d == DirectionPut
}

// Result classifies a settled (or unsettled) trade outcome.
type Result string

const (
	// ResultWin means the option expired in the money.
	ResultWin Result = "win"
	// ResultLoss means the option expired out of the money.
	ResultLoss Result = "loss"
	// ResultDraw means the option expired at the entry price; the stake is returned.
	ResultDraw Result = "draw"
	// ResultIndeterminate means the outcome could not be established (broker
	// unreachable, settlement timeout). It must never be counted as a win or
	// a loss and must never advance a martingale progression.
	ResultIndeterminate Result = "indeterminate"
)

// Determinate reports whether the result represents a real settlement.
func (r Result) Determinate() bool {
	return r == ResultWin || r == ResultLoss || r == ResultDraw
}

// TradeMode records which execution path produced an outcome.
type TradeMode string

const (
	// ModeLive means the trade went through the real broker session.
	ModeLive TradeMode = "live"
	// ModePaper means the trade was settled by the simulated broker.
	ModePaper TradeMode = "paper"
)

// Signal is one trade recommendation scraped from a Telegram channel and
// scheduled for execution.
type Signal struct {
	MessageID   string    `json:"message_id"`
	Channel     string    `json:"channel"`
	Asset       string    `json:"asset"`       // normalized broker asset name, e.g. GBPJPY_otc
	Direction   Direction `json:"direction"`
	SignalTime  string    `json:"signal_time"` // raw clock time from the message, e.g. "00:38:00"
	SignalAt    time.Time `json:"signal_at"`   // resolved instant (today or tomorrow)
	TradeAt     time.Time `json:"trade_at"`    // SignalAt minus the configured offset
	MessageText string    `json:"message_text,omitempty"`
	// Unsupported marks an asset the broker does not list; such signals are
	// routed to paper execution instead of being dropped.
	Unsupported bool `json:"unsupported,omitempty"`
}

// Key identifies a signal for duplicate suppression across CSV re-reads.
func (s *Signal) Key() string {
	return s.MessageID + "|" + s.SignalTime
}

// String implements fmt.Stringer for log lines.
func (s *Signal) String() string {
	return fmt.Sprintf("%s %s @ %s", s.Asset, s.Direction, s.SignalTime)
}

// Outcome is the settlement of a single placed trade.
type Outcome struct {
	Result Result          `json:"result"`
	Profit decimal.Decimal `json:"profit"` // signed; zero for draw and indeterminate
	Mode   TradeMode       `json:"mode"`
	Reason string          `json:"reason,omitempty"` // populated for indeterminate outcomes
}

// TradeRecord is one executed trade as persisted to storage.
type TradeRecord struct {
	ID         string          `json:"id"`
	Asset      string          `json:"asset"`
	Direction  Direction       `json:"direction"`
	Stake      decimal.Decimal `json:"stake"`
	Cycle      int             `json:"cycle"`
	Step       int             `json:"step"`
	Result     Result          `json:"result"`
	Profit     decimal.Decimal `json:"profit"`
	Mode       TradeMode       `json:"mode"`
	OrderID    string          `json:"order_id,omitempty"`
	SignalTime string          `json:"signal_time,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
	SettledAt  time.Time       `json:"settled_at,omitempty"`
}
