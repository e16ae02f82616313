package engine

import (
	"context"

	"league-auction/internal/model"
)

// Store is the persistence surface the engine needs. The Postgres
// implementation lives in internal/db; tests use an in-memory fake.
//
// Commit methods are transactional: either every row they touch is
// written or none is. The ones that take a *model.AuctionState treat
// its Version field as the optimistic-lock token — the value the engine
// read — and must fail with model.ErrConcurrencyConflict when the stored
// row's version no longer matches (another writer committed in between).
type Store interface {
	// Reads. Single-record lookups return (nil, nil) when absent.
	LeagueByID(ctx context.Context, id string) (*model.League, error)
	TeamByID(ctx context.Context, id string) (*model.Team, error)
	PlayerByID(ctx context.Context, id string) (*model.Player, error)

	// AuctionState returns the league's live auction row, or (nil, nil)
	// when the league is idle.
	AuctionState(ctx context.Context, leagueID string) (*model.AuctionState, error)

	// CreateAuction inserts the state row and flips the player to
	// IN_AUCTION in one transaction. Returns model.ErrAuctionInProgress
	// if the league already has a live row, model.ErrNotAuctionable if
	// the player is not AVAILABLE or UNSOLD.
	CreateAuction(ctx context.Context, st *model.AuctionState) error

	// CommitBid appends the audit row and applies the new price, leading
	// team and sequence from st, guarded by st.Version.
	CommitBid(ctx context.Context, st *model.AuctionState, bid *model.Bid) error

	// FinalizeSold debits the leading team by the final price (with a
	// conditional re-check of budget_remaining), marks the player SOLD,
	// and clears the state row, all guarded by st.Version. Returns the
	// team's new balance.
	FinalizeSold(ctx context.Context, st *model.AuctionState) (int64, error)

	// FinalizeUnsold marks the player UNSOLD and clears the state row,
	// guarded by st.Version. No ledger effect.
	FinalizeUnsold(ctx context.Context, st *model.AuctionState) error

	// BidHistory returns the league's audit log for the current or most
	// recent auctions, newest first.
	BidHistory(ctx context.Context, leagueID string, limit int) ([]model.Bid, error)
}
