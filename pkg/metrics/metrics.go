package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	CallsStarted       *prometheus.CounterVec
	CallsCompleted     *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	FinalizeFailures   *prometheus.CounterVec
	BilledMinutes      prometheus.Counter
	BillingConflicts   prometheus.Counter
	StaffAuthOutcomes  *prometheus.CounterVec
	ToolCalls          *prometheus.CounterVec
	TenantResolution   *prometheus.CounterVec
	RecordingFailures  *prometheus.CounterVec
	FinalizeDuration   prometheus.Histogram
	EnrichmentEnqueued *prometheus.CounterVec
}

// New registers collectors on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_calls_started_total",
			Help: "Calls accepted by the orchestrator, by line kind",
		}, []string{"line"}),
		CallsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_calls_completed_total",
			Help: "Calls finalized, by terminal status",
		}, []string{"status"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "axles_voice_active_sessions",
			Help: "Sessions currently open in this instance",
		}),
		FinalizeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_finalize_step_failures_total",
			Help: "Failed finalization sub-steps, by step",
		}, []string{"step"}),
		BilledMinutes: f.NewCounter(prometheus.CounterOpts{
			Name: "axles_voice_billed_minutes_total",
			Help: "Minutes accrued onto dealer lines",
		}),
		BillingConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "axles_voice_billing_cas_conflicts_total",
			Help: "Compare-and-set retries on minutes_used",
		}),
		StaffAuthOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_staff_auth_total",
			Help: "Staff PIN verifications, by outcome",
		}, []string{"outcome"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_tool_calls_total",
			Help: "Tool invocations from the conversational engine",
		}, []string{"tool", "result"}),
		TenantResolution: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_tenant_resolution_total",
			Help: "Dialed number resolutions, by match kind",
		}, []string{"match"}),
		RecordingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_recording_failures_total",
			Help: "Egress start/stop failures",
		}, []string{"op"}),
		FinalizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "axles_voice_finalize_duration_seconds",
			Help:    "Time spent finalizing a call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EnrichmentEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "axles_voice_enrichment_enqueued_total",
			Help: "Enrichment jobs handed to the queue, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncCallStarted(global bool) {
	if m == nil {
		return
	}
	line := "dealer"
	if global {
		line = "global"
	}
	m.CallsStarted.WithLabelValues(line).Inc()
}

func (m *Metrics) IncCallCompleted(status string) {
	if m == nil {
		return
	}
	m.CallsCompleted.WithLabelValues(status).Inc()
}

// SetActiveSessions records the number of sessions open on this instance.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) IncFinalizeFailure(step string) {
	if m == nil {
		return
	}
	m.FinalizeFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) AddBilledMinutes(minutes int) {
	if m == nil {
		return
	}
	m.BilledMinutes.Add(float64(minutes))
}

func (m *Metrics) IncBillingConflict() {
	if m == nil {
		return
	}
	m.BillingConflicts.Inc()
}

func (m *Metrics) IncStaffAuth(outcome string) {
	if m == nil {
		return
	}
	m.StaffAuthOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.ToolCalls.WithLabelValues(tool, result).Inc()
}

func (m *Metrics) IncTenantResolution(match string) {
	if m == nil {
		return
	}
	m.TenantResolution.WithLabelValues(match).Inc()
}

func (m *Metrics) IncRecordingFailure(op string) {
	if m == nil {
		return
	}
	m.RecordingFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveFinalize(start time.Time) {
	if m == nil {
		return
	}
	m.FinalizeDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncEnrichment(result string) {
	if m == nil {
		return
	}
	m.EnrichmentEnqueued.WithLabelValues(result).Inc()
}
