// Package metrics holds the Prometheus collectors of the sheet service and
// the handler that exposes them.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinicops"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	editBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "edit_batches_total",
			Help:      "Edit batches applied, by outcome",
		},
		[]string{"outcome"},
	)

	rejectedEdits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "rejected_edits_total",
			Help:      "Cell edits refused by the reconciler, by reason",
		},
		[]string{"reason"},
	)

	saves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "saves_total",
			Help:      "Row sequence saves, by outcome",
		},
		[]string{"outcome"},
	)

	saveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "save_duration_seconds",
			Help:      "Time spent writing a row sequence to the store",
			Buckets:   prometheus.DefBuckets,
		},
	)

	unmatchedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "unmatched_rows_total",
			Help:      "Local rows left without a server id after a successful save",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sheet",
			Name:      "active_sessions",
			Help:      "Open sheet sessions",
		},
	)

	annotationWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "annotation",
			Name:      "writes_total",
			Help:      "Annotation writes, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	lockToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "toggles_total",
			Help:      "Column lock toggles, by outcome",
		},
		[]string{"outcome"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Directory cache lookups, by cache and result",
		},
		[]string{"cache", "result"},
	)
)

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func ObserveEditBatch(err error) { editBatches.WithLabelValues(outcome(err)).Inc() }

func IncRejectedEdit(reason string) { rejectedEdits.WithLabelValues(reason).Inc() }

// ObserveSave records one save attempt and its duration.
func ObserveSave(d time.Duration, err error) {
	saves.WithLabelValues(outcome(err)).Inc()
	saveDuration.Observe(d.Seconds())
}

func AddUnmatchedRows(n int) { unmatchedRows.Add(float64(n)) }

func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }

func ObserveAnnotationWrite(kind string, err error) {
	annotationWrites.WithLabelValues(kind, outcome(err)).Inc()
}

func ObserveLockToggle(err error) { lockToggles.WithLabelValues(outcome(err)).Inc() }

// ObserveCache records a cache hit or miss.
func ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
