package deform

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshmotion_deform_updates_total",
		Help: "Total deformation passes by algorithm",
	}, []string{"algorithm"})

	linearIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meshmotion_deform_linear_iterations",
		Help:    "Linear solver iterations per solver-based deformation pass",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	deformSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meshmotion_deform_duration_seconds",
		Help:    "Wall time of a deformation pass",
		Buckets: prometheus.DefBuckets,
	}, []string{"algorithm"})

	minQuality = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meshmotion_deform_min_quality",
		Help: "Smallest element quality after the last deformation pass",
	}, []string{"zone"})
)

func observe(zone int, rep *Report) {
	alg := rep.Algorithm.String()
	updatesTotal.WithLabelValues(alg).Inc()
	deformSeconds.WithLabelValues(alg).Observe(rep.Duration.Seconds())
	if rep.Algorithm == SolverBased {
		linearIterations.Observe(float64(rep.Iterations))
	}
	minQuality.WithLabelValues(strconv.Itoa(zone)).Set(rep.Quality.MinQuality)
}
