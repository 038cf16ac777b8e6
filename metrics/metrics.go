// Package metrics exposes Prometheus instrumentation for the agent runtime
// (SPEC_FULL domain stack). Grounded on the teacher's pkg/observability
// metrics.go: a nil-safe *Metrics receiver (so callers never need to guard
// with "if metrics != nil"), one registry, vecs keyed by the labels that
// matter for this domain (agent_name, peer_agent_name, error code).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram the Agent Core, Checkpoint
// Store, and Timeout Sweeper record against. A nil *Metrics is valid and
// every method is a no-op against it, so call sites can construct it once
// at startup and pass it down without an enabled/disabled branch.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	activeTasks      *prometheus.GaugeVec
	terminalsTotal   *prometheus.CounterVec
	llmInvocations   *prometheus.CounterVec
	llmErrorsTotal   *prometheus.CounterVec
	llmTokensInput   *prometheus.CounterVec
	llmTokensOutput  *prometheus.CounterVec
	peerDelegations  *prometheus.CounterVec
	peerTimeouts     *prometheus.CounterVec
	peerClaimsTotal  *prometheus.CounterVec
	aggregatorsOpen  *prometheus.GaugeVec
	checkpointWrites *prometheus.CounterVec
	checkpointErrors *prometheus.CounterVec
	sweeperSweeps    *prometheus.CounterVec
	sweeperExpired   *prometheus.CounterVec
	workerPoolBusy   *prometheus.GaugeVec
	toolErrorsTotal  *prometheus.CounterVec
}

// New creates a Metrics instance registered under namespace "sam".
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.turnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "agent", Name: "turns_total",
		Help: "Total number of agent turns executed.",
	}, []string{"agent_name"})

	m.turnDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sam", Subsystem: "agent", Name: "turn_duration_seconds",
		Help:    "Duration of one agent turn (LLM call through result integration).",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"agent_name"})

	m.activeTasks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sam", Subsystem: "agent", Name: "active_tasks",
		Help: "Number of tasks currently resident in memory (not TERMINAL).",
	}, []string{"agent_name"})

	m.terminalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "agent", Name: "terminal_responses_total",
		Help: "Total terminal responses emitted, by final state.",
	}, []string{"agent_name", "state"})

	m.llmInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "llm", Name: "invocations_total",
		Help: "Total LLM client invocations.",
	}, []string{"agent_name"})

	m.llmErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "llm", Name: "errors_total",
		Help: "Total LLM invocation failures, after retry exhaustion.",
	}, []string{"agent_name"})

	m.llmTokensInput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "llm", Name: "tokens_input_total",
		Help: "Total input tokens billed.",
	}, []string{"agent_name", "model"})

	m.llmTokensOutput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "llm", Name: "tokens_output_total",
		Help: "Total output tokens billed.",
	}, []string{"agent_name", "model"})

	m.peerDelegations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "peer", Name: "delegations_total",
		Help: "Total peer sub-task delegations published.",
	}, []string{"agent_name", "peer_agent_name"})

	m.peerTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "peer", Name: "timeouts_total",
		Help: "Total peer sub-tasks claimed away by the timeout sweeper.",
	}, []string{"agent_name"})

	m.peerClaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "peer", Name: "claims_total",
		Help: "Total successful destructive claims, by outcome.",
	}, []string{"agent_name", "outcome"})

	m.aggregatorsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sam", Subsystem: "peer", Name: "aggregators_open",
		Help: "Number of parallel-invocation aggregators awaiting completion.",
	}, []string{"agent_name"})

	m.checkpointWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "checkpoint", Name: "writes_total",
		Help: "Total checkpoint writes.",
	}, []string{"agent_name"})

	m.checkpointErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "checkpoint", Name: "errors_total",
		Help: "Total checkpoint backend errors (CHECKPOINT_UNAVAILABLE causes).",
	}, []string{"agent_name"})

	m.sweeperSweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "sweeper", Name: "runs_total",
		Help: "Total timeout sweeper loop iterations.",
	}, []string{"agent_name"})

	m.sweeperExpired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "sweeper", Name: "expired_total",
		Help: "Total peer sub-tasks expired by the timeout sweeper.",
	}, []string{"agent_name"})

	m.workerPoolBusy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sam", Subsystem: "worker_pool", Name: "busy_workers",
		Help: "Number of worker pool slots currently processing a turn.",
	}, []string{"agent_name"})

	m.toolErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sam", Subsystem: "tool", Name: "errors_total",
		Help: "Total local tool invocation failures.",
	}, []string{"agent_name", "tool_name"})

	m.registry.MustRegister(
		m.turnsTotal, m.turnDuration, m.activeTasks, m.terminalsTotal,
		m.llmInvocations, m.llmErrorsTotal, m.llmTokensInput, m.llmTokensOutput,
		m.peerDelegations, m.peerTimeouts, m.peerClaimsTotal, m.aggregatorsOpen,
		m.checkpointWrites, m.checkpointErrors, m.sweeperSweeps, m.sweeperExpired,
		m.workerPoolBusy, m.toolErrorsTotal,
	)
	return m
}

func (m *Metrics) RecordToolError(agentName, toolName string) {
	if m == nil {
		return
	}
	m.toolErrorsTotal.WithLabelValues(agentName, toolName).Inc()
}

func (m *Metrics) RecordTurn(agentName string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(agentName).Inc()
	m.turnDuration.WithLabelValues(agentName).Observe(d.Seconds())
}

func (m *Metrics) SetActiveTasks(agentName string, n int) {
	if m == nil {
		return
	}
	m.activeTasks.WithLabelValues(agentName).Set(float64(n))
}

func (m *Metrics) RecordTerminal(agentName, state string) {
	if m == nil {
		return
	}
	m.terminalsTotal.WithLabelValues(agentName, state).Inc()
}

func (m *Metrics) RecordLLMInvocation(agentName string) {
	if m == nil {
		return
	}
	m.llmInvocations.WithLabelValues(agentName).Inc()
}

func (m *Metrics) RecordLLMError(agentName string) {
	if m == nil {
		return
	}
	m.llmErrorsTotal.WithLabelValues(agentName).Inc()
}

func (m *Metrics) RecordLLMTokens(agentName, model string, input, output int) {
	if m == nil {
		return
	}
	m.llmTokensInput.WithLabelValues(agentName, model).Add(float64(input))
	m.llmTokensOutput.WithLabelValues(agentName, model).Add(float64(output))
}

func (m *Metrics) RecordPeerDelegation(agentName, peerAgentName string) {
	if m == nil {
		return
	}
	m.peerDelegations.WithLabelValues(agentName, peerAgentName).Inc()
}

func (m *Metrics) RecordPeerTimeout(agentName string) {
	if m == nil {
		return
	}
	m.peerTimeouts.WithLabelValues(agentName).Inc()
}

// RecordPeerClaim records the outcome of a destructive-claim attempt:
// outcome is "won" or "lost" (already claimed / absent).
func (m *Metrics) RecordPeerClaim(agentName, outcome string) {
	if m == nil {
		return
	}
	m.peerClaimsTotal.WithLabelValues(agentName, outcome).Inc()
}

func (m *Metrics) SetAggregatorsOpen(agentName string, n int) {
	if m == nil {
		return
	}
	m.aggregatorsOpen.WithLabelValues(agentName).Set(float64(n))
}

func (m *Metrics) RecordCheckpointWrite(agentName string) {
	if m == nil {
		return
	}
	m.checkpointWrites.WithLabelValues(agentName).Inc()
}

func (m *Metrics) RecordCheckpointError(agentName string) {
	if m == nil {
		return
	}
	m.checkpointErrors.WithLabelValues(agentName).Inc()
}

func (m *Metrics) RecordSweep(agentName string, expiredCount int) {
	if m == nil {
		return
	}
	m.sweeperSweeps.WithLabelValues(agentName).Inc()
	m.sweeperExpired.WithLabelValues(agentName).Add(float64(expiredCount))
}

func (m *Metrics) SetWorkerPoolBusy(agentName string, n int) {
	if m == nil {
		return
	}
	m.workerPoolBusy.WithLabelValues(agentName).Set(float64(n))
}

// Handler serves the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
