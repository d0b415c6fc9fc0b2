// Package metrics holds the Prometheus collectors for the extraction pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Parse sources.
const (
	SourceDeterministic = "deterministic"
	SourceOracle        = "oracle"
	SourceEmpty         = "empty"
)

// Oracle outcomes.
const (
	OracleOK          = "ok"
	OracleUnavailable = "unavailable"
	OracleError       = "error"
	OracleMalformed   = "malformed"
)

// Merge outcomes.
const (
	MergeCreated  = "created"
	MergeAppended = "appended"
	MergeConflict = "conflict_retry"
	MergeError    = "error"
)

var (
	blocksParsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity",
		Subsystem: "parser",
		Name:      "blocks_total",
		Help:      "Raw blocks parsed, by the source that produced the items.",
	}, []string{"source"})

	itemsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity",
		Subsystem: "parser",
		Name:      "items_total",
		Help:      "Parsed items emitted, by source.",
	}, []string{"source"})

	oracleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity",
		Subsystem: "oracle",
		Name:      "calls_total",
		Help:      "Fallback oracle invocations by outcome.",
	}, []string{"outcome"})

	merges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity",
		Subsystem: "merge",
		Name:      "items_total",
		Help:      "Merge attempts by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(blocksParsed, itemsEmitted, oracleCalls, merges)
}

// RecordParse counts one parsed block and its items.
func RecordParse(source string, items int) {
	blocksParsed.WithLabelValues(source).Inc()
	if items > 0 {
		itemsEmitted.WithLabelValues(source).Add(float64(items))
	}
}

// RecordOracle counts one oracle call.
func RecordOracle(outcome string) {
	oracleCalls.WithLabelValues(outcome).Inc()
}

// RecordMerge counts one merge attempt.
func RecordMerge(outcome string) {
	merges.WithLabelValues(outcome).Inc()
}
