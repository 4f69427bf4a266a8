package observability

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Authorization metrics
	CapabilityChecksTotal   *prometheus.CounterVec
	CapabilityCheckDuration *prometheus.HistogramVec

	// Decision cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// commands mirrors CommandsTotal into the OTel meter provider
	commands otelmetric.Int64Counter

	// Ledger metrics
	GrantMutationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CapabilityChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quartermaster_capability_checks_total",
				Help: "Total number of capability checks",
			},
			[]string{"capability", "decision"},
		),
		CapabilityCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quartermaster_capability_check_duration_seconds",
				Help:    "Capability check duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"capability"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quartermaster_decision_cache_hits_total",
				Help: "Total number of decision cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quartermaster_decision_cache_misses_total",
				Help: "Total number of decision cache misses",
			},
			[]string{"layer"},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quartermaster_commands_total",
				Help: "Total number of executed commands",
			},
			[]string{"command", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quartermaster_command_duration_seconds",
				Help:    "Command duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		GrantMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quartermaster_grant_mutations_total",
				Help: "Total number of role and permission grant mutations",
			},
			[]string{"grant", "operation"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quartermaster_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quartermaster_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quartermaster_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quartermaster_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),
	}

	registry.MustRegister(
		m.CapabilityChecksTotal,
		m.CapabilityCheckDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CommandsTotal,
		m.CommandDuration,
		m.GrantMutationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
	)

	// the global meter is a no-op until InitOTel installs a provider
	if counter, err := Meter().Int64Counter("quartermaster.commands",
		otelmetric.WithDescription("Commands handled, by command and status"),
	); err == nil {
		m.commands = counter
	}

	return m
}

// RecordCapabilityCheck records the outcome and latency of a capability check
func (m *Metrics) RecordCapabilityCheck(capability string, allowed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.CapabilityChecksTotal.WithLabelValues(capability, decision).Inc()
	m.CapabilityCheckDuration.WithLabelValues(capability).Observe(elapsed.Seconds())
}

// RecordCacheLookup records a decision cache hit or miss for a layer
func (m *Metrics) RecordCacheLookup(layer string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(layer).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(layer).Inc()
}

// RecordCommand records the outcome and latency of a command handler
func (m *Metrics) RecordCommand(command string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
	if m.commands != nil {
		m.commands.Add(context.Background(), 1, otelmetric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		))
	}
}

// RecordGrantMutation counts a ledger mutation, e.g. ("role", "add")
func (m *Metrics) RecordGrantMutation(grant, operation string) {
	if m == nil {
		return
	}
	m.GrantMutationsTotal.WithLabelValues(grant, operation).Inc()
}

// UpdateDBStats copies connection pool statistics into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}
