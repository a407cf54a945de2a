// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMCallDuration tracks model invocation duration.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "LLM call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"model", "mode", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// LLMRetriesTotal counts retried model calls.
	LLMRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_retries_total",
			Help: "Model calls retried after a transient failure",
		},
		[]string{"model"},
	)

	// ToolCallsTotal counts dispatched tool calls by outcome.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// ToolCallDuration tracks tool handler duration.
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tool_call_duration_seconds",
			Help:    "Tool handler duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
		},
		[]string{"tool"},
	)

	// PreconditionRejections counts tool calls refused by the workflow check.
	PreconditionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_precondition_rejections_total",
			Help: "Tool calls rejected because a workflow step was missing",
		},
		[]string{"tool", "required"},
	)

	// TurnsTotal counts completed turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	// TurnRounds tracks how many model rounds a turn needed.
	TurnRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turn_rounds",
			Help:    "Model rounds per turn",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8},
		},
	)

	// SessionsActive tracks live chat sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of live chat sessions",
		},
	)

	// SessionsEndedTotal counts ended sessions by reason.
	SessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_ended_total",
			Help: "Ended sessions by reason",
		},
		[]string{"reason"},
	)

	// StreamConnectionsActive tracks open SSE and WebSocket connections.
	StreamConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_connections_active",
			Help: "Number of active streaming connections",
		},
		[]string{"transport"},
	)

	// LeadsScoredTotal counts persisted lead revisions by priority.
	LeadsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_scored_total",
			Help: "Persisted lead revisions by priority",
		},
		[]string{"priority"},
	)

	// NATSStreamMessages tracks messages in NATS stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSStreamBytes tracks bytes in NATS stream.
	NATSStreamBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_bytes",
			Help: "Bytes in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for one model invocation. mode is
// "complete" or "stream".
func RecordLLMCall(model, mode, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(model, mode, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordToolCall records a dispatched tool call.
func RecordToolCall(tool, outcome string, duration float64) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(duration)
}

// RecordTurn records a finished turn.
func RecordTurn(outcome string, rounds int) {
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnRounds.Observe(float64(rounds))
}

// SessionStarted increments the live session gauge.
func SessionStarted() {
	SessionsActive.Inc()
}

// SessionEnded decrements the live session gauge.
func SessionEnded(reason string) {
	SessionsActive.Dec()
	SessionsEndedTotal.WithLabelValues(reason).Inc()
}

// IncrementStreamConnections increments the active connection count.
func IncrementStreamConnections(transport string) {
	StreamConnectionsActive.WithLabelValues(transport).Inc()
}

// DecrementStreamConnections decrements the active connection count.
func DecrementStreamConnections(transport string) {
	StreamConnectionsActive.WithLabelValues(transport).Dec()
}
