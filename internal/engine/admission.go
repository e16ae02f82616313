package engine

import (
	"league-auction/internal/model"
)

// admitBid decides whether a proposed bid is accepted against the
// committed auction state. It returns replay=true when the bid is an
// exact duplicate of the leading bid (same team, same amount), which
// callers treat as a no-op success rather than a second bid — client
// retries after a timeout must not double-bid.
//
// Rules, in order:
//  1. duplicate of the leading bid -> replay
//  2. amount must be strictly above the current price; equality is
//     allowed only while nobody leads (opening bid at base price, or the
//     first bid after an admin price reset)
//  3. the team must cover the amount from its remaining budget
//  4. the team must have room left in its squad
func admitBid(st *model.AuctionState, league *model.League, team *model.Team, amount int64) (replay bool, err error) {
	if st.LeadingTeamID != nil && *st.LeadingTeamID == team.ID && st.CurrentPrice == amount {
		return true, nil
	}
	if st.LeadingTeamID == nil {
		if amount < st.CurrentPrice {
			return false, model.ErrInvalidBid
		}
	} else if amount <= st.CurrentPrice {
		return false, model.ErrInvalidBid
	}
	if amount > team.BudgetRemaining {
		return false, model.ErrInsufficientBudget
	}
	if team.SquadSize >= league.MaxSquadSize {
		return false, model.ErrSquadFull
	}
	return false, nil
}
