package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rom_fits_total",
		Help: "The total number of surrogate model fits, by outcome",
	}, []string{"status"}) // status: success, failure

	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rom_predictions_total",
		Help: "The total number of prediction requests served, by outcome",
	}, []string{"status"})

	TrainingSnapshots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rom_training_snapshots",
		Help: "The number of snapshots in the current training database",
	})

	LatentRank = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rom_latent_rank",
		Help: "The number of reduction modes retained by the current model",
	})
)
