package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "learnsync_sync_attempts_total",
		Help: "Attempts processed by the sync coordinator by result",
	}, []string{"result"})

	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "learnsync_sync_passes_total",
		Help: "Sync passes by outcome",
	}, []string{"outcome"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "learnsync_sync_pass_duration_seconds",
		Help:    "Duration of a full sync pass",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
)

const (
	resultSynced       = "synced"
	resultFailed       = "failed"
	resultDeadLettered = "dead_lettered"

	outcomeCompleted   = "completed"
	outcomeSkipped     = "skipped"
	outcomeInterrupted = "interrupted"
)
