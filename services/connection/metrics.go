package connection

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registryHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_connection_cache_hits_total",
		Help: "Acquire calls served by a healthy cached handle.",
	})
	registryMiss = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_connection_cache_miss_total",
		Help: "Acquire calls with no cached handle.",
	})
	registryRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_connection_rebuilds_total",
		Help: "Cached handles replaced after a failed liveness probe.",
	})
	registryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenant_connection_failures_total",
		Help: "Failed handle creations by stage.",
	}, []string{"stage"})
)

// RegisterMetrics registers the registry collectors. Already-registered
// collectors are not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{registryHits, registryMiss, registryRebuilds, registryFailures} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}
