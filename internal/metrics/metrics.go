// Package metrics holds the Prometheus collectors of the chat cache layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MirrorLookups counts cache mirror reads by mirror kind and result
	// (hit, miss, malformed, stale).
	MirrorLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investocrafy_mirror_lookups_total",
			Help: "Cache mirror reads by kind and result",
		},
		[]string{"kind", "result"},
	)

	// MirrorWriteFailures counts best-effort cache writes that failed.
	MirrorWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investocrafy_mirror_write_failures_total",
			Help: "Failed cache mirror writes by kind",
		},
		[]string{"kind"},
	)

	// ChatResolutions counts active-chat resolutions by outcome.
	ChatResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investocrafy_chat_resolutions_total",
			Help: "Active chat resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// RateLimited counts requests rejected by the fixed window limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "investocrafy_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"prefix"},
	)
)
