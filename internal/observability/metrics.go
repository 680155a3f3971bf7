package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueDepth   *prometheus.GaugeVec
	queueFlushes *prometheus.CounterVec
	queueDropped *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	directiveTotal *prometheus.CounterVec

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentAbortTotal  prometheus.Counter

	reconnectDelay prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_depth",
					Help: "Buffered inbound messages by queue mode.",
				},
				[]string{"mode"},
			),
			queueFlushes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "queue_flush_total",
					Help: "Batch flushes by queue mode and trigger.",
				},
				[]string{"mode", "trigger"},
			),
			queueDropped: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "queue_dropped_total",
					Help: "Messages dropped on cap overflow by drop policy.",
				},
				[]string{"policy"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "lane_task_duration_seconds",
					Help:    "Lane task execution duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current stored session count.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session entry load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session entry save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			directiveTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "directive_total",
					Help: "Executed directives by command and status.",
				},
				[]string{"command", "status"},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Agent invocations by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent invocation duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			agentAbortTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "agent_abort_total",
					Help: "Aborted agent invocations.",
				},
			),
			reconnectDelay: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "reconnect_delay_seconds",
					Help:    "Suggested reconnect delay in seconds.",
					Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
				},
			),
		}

		prometheus.MustRegister(
			m.queueDepth,
			m.queueFlushes,
			m.queueDropped,
			m.taskDuration,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.directiveTotal,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentAbortTotal,
			m.reconnectDelay,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns an http.Handler exposing the default registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetQueueDepth(mode string, depth int) {
	getMetrics().queueDepth.WithLabelValues(mode).Set(float64(depth))
}

func RecordQueueFlush(mode, trigger string) {
	getMetrics().queueFlushes.WithLabelValues(mode, trigger).Inc()
}

func RecordQueueDrop(policy string) {
	getMetrics().queueDropped.WithLabelValues(policy).Inc()
}

func RecordLaneTask(lane string, duration time.Duration) {
	getMetrics().taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

func RecordDirective(command string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().directiveTotal.WithLabelValues(command, status).Inc()
}

func RecordAgentRun(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(provider, status).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordAgentAbort() {
	getMetrics().agentAbortTotal.Inc()
}

func RecordReconnectDelay(delay time.Duration) {
	getMetrics().reconnectDelay.Observe(delay.Seconds())
}
