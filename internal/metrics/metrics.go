package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maintenance"

// Gate holds the collectors updated by the maintenance gate.
type Gate struct {
	mode               prometheus.Gauge
	blocked            prometheus.Counter
	refreshes          *prometheus.CounterVec
	stateWrites        *prometheus.CounterVec
	managementRequests *prometheus.CounterVec
}

// NewGate registers the gate collectors on reg.
func NewGate(reg prometheus.Registerer) *Gate {
	g := &Gate{
		mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 while the server is in maintenance mode, 0 otherwise",
		}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_requests_total",
			Help:      "Requests answered with the maintenance response",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Reads of the shared maintenance state by result",
		}, []string{"result"}),
		stateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_writes_total",
			Help:      "Writes of the shared maintenance state by result",
		}, []string{"result"}),
		managementRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "management_requests_total",
			Help:      "Requests to the management endpoint by method and status",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(g.mode, g.blocked, g.refreshes, g.stateWrites, g.managementRequests)
	return g
}

func (g *Gate) SetMaintenance(on bool) {
	if g == nil {
		return
	}
	if on {
		g.mode.Set(1)
		return
	}
	g.mode.Set(0)
}

func (g *Gate) Blocked() {
	if g == nil {
		return
	}
	g.blocked.Inc()
}

// Refresh records a refresh attempt; result is one of updated, empty,
// superseded or error.
func (g *Gate) Refresh(result string) {
	if g == nil {
		return
	}
	g.refreshes.WithLabelValues(result).Inc()
}

func (g *Gate) StateWrite(err error) {
	if g == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	g.stateWrites.WithLabelValues(result).Inc()
}

func (g *Gate) ManagementRequest(method string, status int) {
	if g == nil {
		return
	}
	g.managementRequests.WithLabelValues(method, statusLabel(status)).Inc()
}
