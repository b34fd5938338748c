// Package telemetry wires structured logging and Prometheus metrics for the
// three LifeBank cores.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// UnitsRegisteredTotal counts successful register_unit calls.
var UnitsRegisteredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "units",
		Name:      "registered_total",
		Help:      "Total number of blood units registered.",
	},
)

// UnitsExpiredTotal counts units transitioned to Expired, whether by
// expire_unit or check_and_expire_batch.
var UnitsExpiredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "units",
		Name:      "expired_total",
		Help:      "Total number of blood units transitioned to Expired.",
	},
)

// StatusTransitionsTotal counts every recorded status change, labeled by the
// old and new status.
var StatusTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "status",
		Name:      "transitions_total",
		Help:      "Total number of blood unit status transitions.",
	},
	[]string{"from", "to"},
)

// TemperatureReadingsTotal counts every logged temperature reading.
var TemperatureReadingsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "temperature",
		Name:      "readings_total",
		Help:      "Total number of temperature readings logged.",
	},
)

// TemperatureViolationsTotal counts logged readings outside threshold.
var TemperatureViolationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "temperature",
		Name:      "violations_total",
		Help:      "Total number of temperature readings outside the configured threshold.",
	},
)

// UnitsCompromisedTotal counts the number of times a unit crossed the
// consecutive-violation compromise threshold.
var UnitsCompromisedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "units",
		Name:      "compromised_total",
		Help:      "Total number of times a unit was flagged compromised due to consecutive temperature violations.",
	},
)

// RolesGrantedTotal counts grant_role calls, labeled by role.
var RolesGrantedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "roles",
		Name:      "granted_total",
		Help:      "Total number of role grants issued.",
	},
	[]string{"role"},
)

// RolesRevokedTotal counts revoke_role calls, labeled by role.
var RolesRevokedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "roles",
		Name:      "revoked_total",
		Help:      "Total number of explicit role revocations.",
	},
	[]string{"role"},
)

// RolesExpiredTotal counts grants removed by lazy deletion or
// cleanup_expired_roles.
var RolesExpiredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "roles",
		Name:      "expired_total",
		Help:      "Total number of role grants removed because they had expired.",
	},
)

// HTTPRequestsTotal counts HTTP requests handled, labeled by route and status.
var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lifebank",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	},
	[]string{"method", "route", "status"},
)

// HTTPRequestDuration tracks HTTP handler latency in seconds.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "lifebank",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request handling duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"method", "route"},
)

// All returns every LifeBank-specific metric collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		UnitsRegisteredTotal,
		UnitsExpiredTotal,
		StatusTransitionsTotal,
		TemperatureReadingsTotal,
		TemperatureViolationsTotal,
		UnitsCompromisedTotal,
		RolesGrantedTotal,
		RolesRevokedTotal,
		RolesExpiredTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	}
}
