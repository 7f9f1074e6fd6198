package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type ShortsAPIMetrics struct {
	JobsSubmitted prometheus.Counter
	JobsCompleted *prometheus.CounterVec
	JobsRunning   prometheus.Gauge
	QueueDepth    prometheus.Gauge

	StageDurationSec *prometheus.HistogramVec
	ClipsRendered    *prometheus.CounterVec
	ClipsUploaded    *prometheus.CounterVec
	LLMRequests      *prometheus.CounterVec

	SourceFetchClient ClientMetrics
	DriveClient       ClientMetrics
}

func NewMetrics() *ShortsAPIMetrics {
	m := &ShortsAPIMetrics{
		JobsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "The total number of accepted job submissions",
		}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "The total number of jobs that reached a terminal state, by status",
		}, []string{"status"}),
		JobsRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "The number of jobs currently held by a worker",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "The number of jobs waiting for a worker slot",
		}),

		StageDurationSec: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"stage"}),
		ClipsRendered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clips_rendered_total",
			Help: "The total number of clip render attempts, by result",
		}, []string{"result"}),
		ClipsUploaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "clips_uploaded_total",
			Help: "The total number of clip upload attempts, by result",
		}, []string{"result"}),
		LLMRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "The total number of segment ranking requests to the LLM, by result",
		}, []string{"result"}),

		SourceFetchClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "source_fetch_retry_count",
				Help: "The number of retries of the last successful source download",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "source_fetch_failure_count",
				Help: "The total number of failed source downloads",
			}, []string{"host", "status_code"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "source_fetch_duration_seconds",
				Help:    "Time taken to download a source video",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			}, []string{"host"}),
		},
		DriveClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "drive_retry_count",
				Help: "The number of retries of the last successful storage operation",
			}, []string{"host", "operation"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "drive_failure_count",
				Help: "The total number of failed storage operations",
			}, []string{"host", "operation"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "drive_request_duration_seconds",
				Help:    "Time taken by storage operations",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"host", "operation"}),
		},
	}

	return m
}

var Metrics = NewMetrics()
