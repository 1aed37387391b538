package metrics

import "github.com/prometheus/client_golang/prometheus"

// Probe modes.
const (
	ModeDay  = "day"
	ModeSlot = "slot"
)

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	probesTotal      *prometheus.CounterVec
	probeLatency     *prometheus.HistogramVec
	staleTotal       *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	bookingsCreated  prometheus.Counter
	otpTotal         *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "probes_total",
			Help:      "Availability probes by mode and outcome",
		}, []string{"mode", "outcome"}),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "probe_latency_seconds",
			Help:      "Latency of availability probes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		staleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "stale_results_total",
			Help:      "Probe results discarded because a newer resolution superseded them",
		}, []string{"mode"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking batch submissions by outcome",
		}, []string{"outcome"}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "bookings_created_total",
			Help:      "Bookings created on the backend, including those from partially failed batches",
		}),
		otpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "otp_redemptions_total",
			Help:      "OTP redemption attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.probesTotal, m.probeLatency, m.staleTotal, m.submissionsTotal, m.bookingsCreated, m.otpTotal)
	return m
}

// ObserveProbe records one availability probe.
func (m *BookingMetrics) ObserveProbe(mode string, available bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "unavailable"
	if available {
		outcome = "available"
	}
	m.probesTotal.WithLabelValues(mode, outcome).Inc()
	m.probeLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *BookingMetrics) ObserveStale(mode string) {
	if m == nil {
		return
	}
	m.staleTotal.WithLabelValues(mode).Inc()
}

// ObserveSubmission records a batch outcome and how many bookings it created.
func (m *BookingMetrics) ObserveSubmission(success bool, created int) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
	if created > 0 {
		m.bookingsCreated.Add(float64(created))
	}
}

func (m *BookingMetrics) ObserveOTP(outcome string) {
	if m == nil {
		return
	}
	m.otpTotal.WithLabelValues(outcome).Inc()
}
