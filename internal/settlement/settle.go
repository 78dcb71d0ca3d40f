// Package settlement computes battle outcomes. It is pure: no store access,
// no clock reads, so the rule is unit-testable in isolation and the store
// layer only persists what it returns.
package settlement

import (
	"time"

	"github.com/pvpbtc/btcbattle/pkg/types"
)

// Settle decides a battle against the final price.
//
// A prediction is correct when the final price moved in its predicted
// direction relative to the reference price observed at submission time;
// an unmoved price counts as not moved. The two reference prices usually
// differ, so both predictions being correct (or neither) is possible and
// settles as a draw with each side refunded its stake. Exactly one correct
// prediction wins the combined pot.
func Settle(b *types.Battle, p1, p2 *types.Prediction, finalPriceCents int64, at time.Time) types.Outcome {
	out := types.Outcome{
		BattleID:        b.ID,
		FinalPriceCents: finalPriceCents,
		ResolvedAt:      at,
	}

	p1Correct := correct(p1, finalPriceCents)
	p2Correct := correct(p2, finalPriceCents)

	switch {
	case p1Correct && !p2Correct:
		out.WinnerUserID = p1.UserID
		out.PayoutCents = p1.BetAmountCents + p2.BetAmountCents
	case p2Correct && !p1Correct:
		out.WinnerUserID = p2.UserID
		out.PayoutCents = p1.BetAmountCents + p2.BetAmountCents
	default:
		out.Draw = true
		out.PayoutCents = p1.BetAmountCents // refunded to each side
	}

	return out
}

func correct(p *types.Prediction, finalPriceCents int64) bool {
	switch p.Direction {
	case types.SideAbove:
		return finalPriceCents > p.ReferencePriceCents
	case types.SideBelow:
		return finalPriceCents < p.ReferencePriceCents
	default:
		return false
	}
}
