package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labreserve",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created, by kind (single, overnight).",
		},
		[]string{"kind"},
	)

	reservationRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labreserve",
			Name:      "reservation_rejected_total",
			Help:      "Count of rejected mutations, by reason.",
		},
		[]string{"reason"},
	)

	reservationDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "labreserve",
			Name:      "reservation_deleted_total",
			Help:      "Count of reservations deleted.",
		},
	)

	registryRenamed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labreserve",
			Name:      "registry_renamed_total",
			Help:      "Count of registry renames propagated, by kind.",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labreserve",
			Name:      "http_requests_total",
			Help:      "Count of API requests, by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationCreated,
			reservationRejected,
			reservationDeleted,
			registryRenamed,
			httpRequests,
		)
	})
}

func IncReservationCreated(kind string) {
	reservationCreated.WithLabelValues(kind).Inc()
}

func IncReservationRejected(reason string) {
	reservationRejected.WithLabelValues(reason).Inc()
}

func IncReservationDeleted() {
	reservationDeleted.Inc()
}

func IncRegistryRenamed(kind string) {
	registryRenamed.WithLabelValues(kind).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
