// Package metrics exposes prometheus instrumentation for pool operations.
package metrics

import (
	"fmt"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ammpool"

// Recorder holds the pool collectors. A nil *Recorder is a no-op.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	reserves   *prometheus.GaugeVec
	shares     prometheus.Gauge
}

// NewRecorder registers the pool collectors on registry, or on a fresh
// registry when registry is nil.
func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := &Recorder{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pool operations by name and result.",
		}, []string{"op", "result"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reserve",
			Help:      "Current pool reserve per asset.",
		}, []string{"asset"}),
		shares: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_shares",
			Help:      "Outstanding liquidity shares.",
		}),
	}

	for _, c := range []prometheus.Collector{r.operations, r.reserves, r.shares} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// ObserveOperation counts one operation outcome.
func (r *Recorder) ObserveOperation(op, result string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, result).Inc()
}

// SetPoolState publishes the committed reserves and share supply.
func (r *Recorder) SetPoolState(assetA, assetB string, reserveA, reserveB, totalShares *big.Int) {
	if r == nil {
		return
	}
	r.reserves.WithLabelValues(assetA).Set(toFloat(reserveA))
	r.reserves.WithLabelValues(assetB).Set(toFloat(reserveB))
	r.shares.Set(toFloat(totalShares))
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes all gathered metrics in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
