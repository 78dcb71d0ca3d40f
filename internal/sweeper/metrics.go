package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	PredictionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_sweeper_predictions_expired_total",
		Help: "Total number of searching predictions expired by the sweeper",
	})

	SweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_sweeper_errors_total",
		Help: "Total number of failed sweep passes",
	})
)
