package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PromMetrics struct {
	candidates    prometheus.Counter
	sent          prometheus.Counter
	skipped       *prometheus.CounterVec
	failed        prometheus.Counter
	sweepDuration prometheus.Histogram
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskwise_reminders_candidates_total",
			Help: "Number of tasks found due inside the lookahead window",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskwise_reminders_sent_total",
			Help: "Number of reminder pushes dispatched",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskwise_reminders_skipped_total",
			Help: "Number of candidates skipped, by reason",
		}, []string{"reason"}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskwise_reminders_failed_total",
			Help: "Number of candidates whose delivery or bookkeeping failed",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskwise_reminder_sweep_duration_seconds",
			Help:    "Wall time of one reminder sweep",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.candidates, m.sent, m.skipped, m.failed, m.sweepDuration)
	return m
}

func (m *PromMetrics) CandidatesFound(n int) {
	m.candidates.Add(float64(n))
}
func (m *PromMetrics) ReminderSent() {
	m.sent.Inc()
}
func (m *PromMetrics) ReminderSkipped(reason string) {
	m.skipped.WithLabelValues(reason).Inc()
}
func (m *PromMetrics) ReminderFailed() {
	m.failed.Inc()
}
func (m *PromMetrics) SweepDuration(d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
}
