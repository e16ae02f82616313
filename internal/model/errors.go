package model

import "errors"

// Sentinel errors returned by auction operations. Handlers match these
// with errors.Is and map them to HTTP status codes.
var (
	// ErrInvalidBid is returned when a bid does not beat the committed
	// current price (or undercuts the base price on a first bid).
	ErrInvalidBid = errors.New("bid must be higher than current price")

	// ErrInsufficientBudget is returned when a team cannot cover the
	// bid or purchase amount.
	ErrInsufficientBudget = errors.New("insufficient budget")

	// ErrNoActiveAuction is returned when an operation requires a live
	// auction and the league is idle.
	ErrNoActiveAuction = errors.New("no active auction")

	// ErrAuctionInProgress is returned by start when the league already
	// has a player under auction.
	ErrAuctionInProgress = errors.New("another auction is already in progress")

	// ErrStaleAuction is returned when a request references a player
	// that is no longer the one under auction.
	ErrStaleAuction = errors.New("player is not the one under auction")

	// ErrConcurrencyConflict is returned when a versioned commit lost
	// the race to another writer and retries are exhausted.
	ErrConcurrencyConflict = errors.New("concurrent update conflict, try again")

	// ErrLockTimeout is returned when the league lock could not be
	// acquired within the bound. Safe to retry verbatim.
	ErrLockTimeout = errors.New("timed out waiting for auction lock")

	// ErrNoBids is returned by finalize-sold when nobody bid.
	ErrNoBids = errors.New("cannot sell a player with no bids")

	// ErrUnauthorized is returned when the caller may not act for the
	// given team or perform the operation at all.
	ErrUnauthorized = errors.New("not authorized for this operation")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrSquadFull is returned when a team has already reached the
	// league's maximum squad size.
	ErrSquadFull = errors.New("team squad is full")

	// ErrNotAuctionable is returned by start when the player is sold or
	// currently under auction.
	ErrNotAuctionable = errors.New("player is not available for auction")
)
