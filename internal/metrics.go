package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_sync_cycles_total",
			Help: "Total sync cycles completed per device",
		},
		[]string{"serial"},
	)

	metricSyncAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_sync_records_appended_total",
			Help: "Records appended to the log per device",
		},
		[]string{"serial"},
	)

	metricSyncDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_sync_duplicates_skipped_total",
			Help: "Snapshot records skipped as already stored",
		},
		[]string{"serial"},
	)

	metricSyncWraparounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_sync_wraparounds_total",
			Help: "Sync cycles where the source ring buffer had wrapped over the stored tail",
		},
		[]string{"serial"},
	)

	metricSyncAmbiguous = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_sync_ambiguous_skips_total",
			Help: "Sync cycles skipped because the stored tail position was ambiguous",
		},
		[]string{"serial"},
	)

	metricSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batlog_sync_duration_seconds",
			Help:    "Duration of one sync cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	metricPollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batlog_poll_cycles_total",
			Help: "Total poll cycles across all devices",
		},
	)

	metricPollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_poll_errors_total",
			Help: "Poll failures per device",
		},
		[]string{"serial"},
	)

	metricPollBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batlog_poll_breaker_open",
			Help: "Per-device circuit breaker state (1 = open, 0 = closed)",
		},
		[]string{"serial"},
	)

	metricStreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batlog_stream_subscribers",
			Help: "Currently connected stream subscribers",
		},
	)

	metricStoreBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batlog_store_bytes",
			Help: "Total bytes across all device log files",
		},
	)

	metricNandOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_nand_ops_total",
			Help: "Flash operations issued, by kind",
		},
		[]string{"op"},
	)

	metricNandFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batlog_nand_failures_total",
			Help: "Flash operations that failed, by kind",
		},
		[]string{"op"},
	)

	metricNandOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batlog_nand_op_duration_seconds",
			Help:    "Duration of one flash operation, by kind",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"op"},
	)
)
