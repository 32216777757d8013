package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the notice module.
// All methods are safe on a nil receiver so services can run without metrics.
type Metrics struct {
	PaymentOutcomes   *prometheus.CounterVec
	ReductionRequests *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	MirrorWrites      *prometheus.CounterVec
	SyncWarnings      prometheus.Counter
	ResyncedNotices   *prometheus.CounterVec
	PassNotices       *prometheus.CounterVec
	PassDuration      prometheus.Histogram
	PassSkipped       prometheus.Counter
	ValidationLookups *prometheus.CounterVec
	OperationLatency  *prometheus.HistogramVec
}

// New registers the notice metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the notice metrics with reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PaymentOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noticeops_payment_outcomes_total",
			Help: "Classified payments by outcome",
		}, []string{"outcome"}),

		ReductionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noticeops_reduction_requests_total",
			Help: "Reduction requests by status (applied, already_applied, rejected)",
		}, []string{"status"}),

		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noticeops_rejections_total",
			Help: "Rejected operations by operation and reason",
		}, []string{"operation", "reason"}),

		MirrorWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noticeops_mirror_writes_total",
			Help: "Mirror store writes by result (ok, failed, skipped)",
		}, []string{"result"}),

		SyncWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "noticeops_sync_warnings_total",
			Help: "Primary commits whose mirror push failed and were left for resync",
		}),

		ResyncedNotices: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noticeops_resync_notices_total",
			Help: "Notices handled by the resync sweep by result",
		}, []string{"result"}),

		PassNotices: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noticeops_looping_pass_notices_total",
			Help: "Notices touched by looping suspension passes by action",
		}, []string{"action"}), // action: suspended, reapplied, released, error

		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "noticeops_looping_pass_duration_seconds",
			Help:    "Duration of a full looping suspension pass",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		PassSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "noticeops_looping_pass_skipped_total",
			Help: "Passes skipped because another pass held the lock",
		}),

		ValidationLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "noticeops_address_validation_lookups_total",
			Help: "Address validation lookups by result (valid, invalid, unknown, timeout, error)",
		}, []string{"result"}),

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "noticeops_operation_duration_seconds",
			Help:    "Duration of coordinator operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementPaymentOutcome(outcome string) {
	if m != nil {
		m.PaymentOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementReduction(status string) {
	if m != nil {
		m.ReductionRequests.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementRejection(operation, reason string) {
	if m != nil {
		m.Rejections.WithLabelValues(operation, reason).Inc()
	}
}

func (m *Metrics) IncrementMirrorWrite(result string) {
	if m != nil {
		m.MirrorWrites.WithLabelValues(result).Inc()
	}
}

// IncrementSyncWarning records a mirror push that failed after the primary commit.
func (m *Metrics) IncrementSyncWarning() {
	if m != nil {
		m.SyncWarnings.Inc()
	}
}

func (m *Metrics) IncrementResync(result string) {
	if m != nil {
		m.ResyncedNotices.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AddPassNotices(action string, n int) {
	if m != nil && n > 0 {
		m.PassNotices.WithLabelValues(action).Add(float64(n))
	}
}

// ObservePass records the duration of a pass. Call with time.Now() at the start.
func (m *Metrics) ObservePass(start time.Time) {
	if m != nil {
		m.PassDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IncrementPassSkipped() {
	if m != nil {
		m.PassSkipped.Inc()
	}
}

func (m *Metrics) IncrementValidationLookup(result string) {
	if m != nil {
		m.ValidationLookups.WithLabelValues(result).Inc()
	}
}

// ObserveOperation records the duration of a coordinator operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
