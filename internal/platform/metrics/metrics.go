package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	CommandsTotal     *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	RateLimited       prometheus.Counter
	UsagePenalties    prometheus.Counter
	DomainsReleased   prometheus.Counter
	WhoisQueriesTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tshreg_epp_commands_total",
			Help: "EPP commands processed, labeled by command and result code.",
		}, []string{"command", "code"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tshreg_active_sessions",
			Help: "Number of live registrar sessions.",
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tshreg_rate_limited_total",
			Help: "Requests rejected by the per-source rate limiter.",
		}),
		UsagePenalties: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tshreg_usage_penalties_total",
			Help: "Soft-ban penalties applied by the usage throttle.",
		}),
		DomainsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tshreg_domains_released_total",
			Help: "Domains transitioned to inactive by the expiry scheduler.",
		}),
		WhoisQueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tshreg_whois_queries_total",
			Help: "WHOIS queries served.",
		}),
	}
}

// RecordCommand increments the command counter for one dispatch outcome.
func (m *Metrics) RecordCommand(command, code string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, code).Inc()
}
