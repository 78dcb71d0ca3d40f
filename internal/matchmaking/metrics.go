package matchmaking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	PredictionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_predictions_created_total",
		Help: "Total number of predictions created",
	}, []string{"direction"})

	PredictionsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_predictions_cancelled_total",
		Help: "Total number of predictions cancelled by their owner",
	})

	MatchesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_matches_created_total",
		Help: "Total number of prediction pairs claimed into battles",
	})

	MatchConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_match_conflicts_total",
		Help: "Total number of match claims lost to a racing attempt",
	})

	BattlesAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_battles_accepted_total",
		Help: "Total number of battle acceptances recorded",
	})

	BattlesActivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_battles_activated_total",
		Help: "Total number of battles activated by mutual acceptance",
	})

	BattlesDeclinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_battles_declined_total",
		Help: "Total number of battles declined",
	})

	BattlesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btc_battle_matchmaking_battles_resolved_total",
		Help: "Total number of battles resolved",
	}, []string{"result"})
)
