package cascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsdrill"

var cascadedServices = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cascade",
		Name:      "services_affected_total",
		Help:      "Services whose status was raised by cascade application",
	},
)

// recordCascade records the number of services changed by one apply call.
func recordCascade(applied int) {
	cascadedServices.Add(float64(applied))
}
