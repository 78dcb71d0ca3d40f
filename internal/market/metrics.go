package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StakesAcceptedTotal tracks accepted stakes by side.
	StakesAcceptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btc_battle_market_stakes_accepted_total",
			Help: "Total number of accepted stakes",
		},
		[]string{"side"},
	)

	// StakesRejectedTotal tracks rejected stakes by reason.
	StakesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btc_battle_market_stakes_rejected_total",
			Help: "Total number of rejected stakes",
		},
		[]string{"reason"},
	)

	// StakeAmountCents tracks accepted stake sizes.
	StakeAmountCents = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "btc_battle_market_stake_amount_cents",
		Help:    "Accepted stake amount in cents",
		Buckets: prometheus.ExponentialBuckets(1000, 2, 12), // $10 .. ~$20k
	})

	// AbovePoolCents tracks the above pool total.
	AbovePoolCents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btc_battle_market_above_pool_cents",
		Help: "Current above pool total in cents",
	})

	// BelowPoolCents tracks the below pool total.
	BelowPoolCents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btc_battle_market_below_pool_cents",
		Help: "Current below pool total in cents",
	})
)
