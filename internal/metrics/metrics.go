// Package metrics exposes the bot's Prometheus collectors:
//   - bot_trades_total{result,mode}      – settled trades by result and execution mode
//   - bot_orders_total{mode}             – orders placed
//   - bot_session_profit_usd             – cumulative session profit (gauge)
//   - bot_progression_cycle{symbol}      – current martingale cycle per symbol
//   - bot_progression_step{symbol}       – current martingale step per symbol
//   - bot_broker_failures_total{op}      – broker call failures by operation
//
// These are registered in init() and served by the dashboard at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trades_total",
			Help: "Settled trades by result (win|loss|draw|indeterminate) and mode (live|paper)",
		},
		[]string{"result", "mode"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed",
		},
		[]string{"mode"},
	)

	sessionProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_session_profit_usd",
			Help: "Cumulative session profit in USD",
		},
	)

	progressionCycle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_progression_cycle",
			Help: "Current martingale cycle per symbol",
		},
		[]string{"symbol"},
	)

	progressionStep = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_progression_step",
			Help: "Current martingale step per symbol",
		},
		[]string{"symbol"},
	)

	brokerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_broker_failures_total",
			Help: "Broker call failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(mtxTrades, mtxOrders, sessionProfit)
	prometheus.MustRegister(progressionCycle, progressionStep)
	prometheus.MustRegister(brokerFailures)
}

// ObserveTrade counts one settled trade.
func ObserveTrade(result, mode string) { mtxTrades.WithLabelValues(result, mode).Inc() }

// ObserveOrder counts one placed order.
func ObserveOrder(mode string) { mtxOrders.WithLabelValues(mode).Inc() }

// SetSessionProfit updates the cumulative profit gauge.
func SetSessionProfit(v float64) { sessionProfit.Set(v) }

// SetProgressionPosition updates the per-symbol cycle/step gauges.
func SetProgressionPosition(symbol string, cycle, step int) {
	progressionCycle.WithLabelValues(symbol).Set(float64(cycle))
	progressionStep.WithLabelValues(symbol).Set(float64(step))
}

// IncBrokerFailure counts one failed broker call.
func IncBrokerFailure(op string) { brokerFailures.WithLabelValues(op).Inc() }
