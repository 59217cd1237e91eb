// Package metrics exposes strategy health to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
)

// Metrics holds the Prometheus collectors updated each monitor cycle.
type Metrics struct {
	pnl         prometheus.Gauge
	pnlPct      prometheus.Gauge
	openLegs    prometheus.Gauge
	closedLegs  prometheus.Gauge
	state       *prometheus.GaugeVec
	adjustments *prometheus.CounterVec
	cycles      prometheus.Counter
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pnl: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sandwich_pnl_points",
			Help: "Aggregate open-leg P&L in index points times quantity",
		}),
		pnlPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sandwich_pnl_pct_capital",
			Help: "Aggregate P&L as a percentage of configured capital",
		}),
		openLegs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sandwich_open_legs",
			Help: "Number of open legs",
		}),
		closedLegs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sandwich_closed_legs",
			Help: "Number of closed legs",
		}),
		// One labeled series per lifecycle state, flipped between 0/1 so
		// dashboards stay simple.
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sandwich_state",
			Help: "Lifecycle state indicator",
		}, []string{"state"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandwich_adjustments_total",
			Help: "Adjustments applied, split by stage",
		}, []string{"stage"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandwich_monitor_cycles_total",
			Help: "Monitor cycles executed",
		}),
	}
	reg.MustRegister(m.pnl, m.pnlPct, m.openLegs, m.closedLegs, m.state, m.adjustments, m.cycles)
	return m
}

// Observe updates the gauges from a monitor-cycle snapshot.
func (m *Metrics) Observe(state models.StrategyState, totalPnL, pnlPct float64, open, closed int) {
	m.pnl.Set(totalPnL)
	m.pnlPct.Set(pnlPct)
	m.openLegs.Set(float64(open))
	m.closedLegs.Set(float64(closed))
	for _, s := range models.AllStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
	m.cycles.Inc()
}

// RecordAdjustment counts one applied adjustment stage.
func (m *Metrics) RecordAdjustment(stage string) {
	m.adjustments.WithLabelValues(stage).Inc()
}
