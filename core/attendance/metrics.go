package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "asistencia"

var (
	gateScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "gate_scans_total",
		Help:      "Gate scans by action (entrada|salida) and result (registered|duplicate).",
	}, []string{"action", "result"})

	statusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "status_changes_total",
		Help:      "Classroom record status changes by new status.",
	}, []string{"status"})

	evasionIncidents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "evasion_incidents_total",
		Help:      "Evasion incidents raised by classroom confirmation.",
	})
)
