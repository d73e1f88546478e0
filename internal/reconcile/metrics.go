package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeebox_reconciliations_total",
			Help: "Aggregate reconciliations by outcome state",
		},
		[]string{"state"},
	)

	aggregateWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeebox_aggregate_writes_total",
			Help: "Aggregate writes issued, by path (corrective or incremental)",
		},
		[]string{"path"},
	)

	aggregateWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeebox_aggregate_write_failures_total",
			Help: "Aggregate writes that failed and were dropped, by path",
		},
		[]string{"path"},
	)
)

const (
	pathCorrective  = "corrective"
	pathIncremental = "incremental"
)
