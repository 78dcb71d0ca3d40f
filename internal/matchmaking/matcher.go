package matchmaking

import "github.com/pvpbtc/btcbattle/pkg/types"

// FindCandidate returns the first candidate the prediction can pair with, or
// nil. Candidates must already be in tie-break order (created_at ascending,
// id ascending), so the earliest-created opponent wins.
func FindCandidate(p *types.Prediction, candidates []*types.Prediction) *types.Prediction {
	for _, c := range candidates {
		if p.Matchable(c) {
			return c
		}
	}
	return nil
}
