package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "appointment_created_total",
			Help:      "Count of appointments created, by encaixe flag.",
		},
		[]string{"encaixe"},
	)

	appointmentTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "appointment_transition_total",
			Help:      "Count of status transitions, by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	conflictDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "conflict_detected_total",
			Help:      "Count of scheduling conflicts reported, by type.",
		},
		[]string{"type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinicbook",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests, by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(appointmentCreated, appointmentTransition, conflictDetected, httpRequests)
	})
}

func IncAppointmentCreated(encaixe bool) {
	label := "false"
	if encaixe {
		label = "true"
	}
	appointmentCreated.WithLabelValues(label).Inc()
}

func IncTransition(event, outcome string) {
	appointmentTransition.WithLabelValues(event, outcome).Inc()
}

func IncConflict(conflictType string) {
	conflictDetected.WithLabelValues(conflictType).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
