package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"league-auction/internal/model"
)

// PublishFunc broadcasts a WS message for a league room.
type PublishFunc func(leagueID, msgType string, data any)

const (
	defaultLockWait = 3 * time.Second
	casRetries      = 3
)

// Engine runs the auction lifecycle for every league: start, bid,
// price reset, and the two finalize operations. Each mutating call
// serializes on the league lock, then commits through the store's
// version-guarded writes, retrying a bounded number of times when a
// concurrent writer got there first.
type Engine struct {
	store   Store
	locks   *lockTable
	rooms   *roomCache
	publish PublishFunc
	retries int
}

func New(store Store, pub PublishFunc) *Engine {
	return newEngine(store, pub, defaultLockWait, casRetries)
}

func newEngine(store Store, pub PublishFunc, lockWait time.Duration, retries int) *Engine {
	return &Engine{
		store:   store,
		locks:   newLockTable(lockWait),
		rooms:   newRoomCache(),
		publish: pub,
		retries: retries,
	}
}

// ── Operations ───────────────────────────────────────

// Start opens the auction for a player. Fails with ErrAuctionInProgress
// if the league already has a live auction, and with ErrNotAuctionable
// unless the player is AVAILABLE or UNSOLD (unsold players may go up a
// second time).
func (e *Engine) Start(ctx context.Context, leagueID, playerID string) (*model.AuctionResult, error) {
	release, err := e.locks.Acquire(leagueID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := e.store.AuctionState(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return nil, model.ErrAuctionInProgress
	}

	player, err := e.store.PlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if player == nil || player.LeagueID != leagueID {
		return nil, model.ErrNotFound
	}
	if player.Status != model.PlayerAvailable && player.Status != model.PlayerUnsold {
		return nil, model.ErrNotAuctionable
	}

	st = &model.AuctionState{
		ID:           uuid.New().String(),
		LeagueID:     leagueID,
		PlayerID:     playerID,
		CurrentPrice: player.BasePrice,
		Seq:          0,
		Version:      1,
		StartedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateAuction(ctx, st); err != nil {
		return nil, err
	}

	res := resultFor(st)
	e.rooms.setState(leagueID, res)
	log.Printf("[engine] league %s: auction started for player %s at %d", leagueID, playerID, st.CurrentPrice)
	e.emit(leagueID, "auction_started", res)
	return &res, nil
}

// PlaceBid validates and applies one bid under the league lock. A
// duplicate of the leading bid (same team, same amount) is a no-op
// success. Losing the version race after retries surfaces as
// ErrConcurrencyConflict; callers should re-read and re-prompt.
func (e *Engine) PlaceBid(ctx context.Context, leagueID string, req model.PlaceBidReq) (*model.AuctionResult, error) {
	release, err := e.locks.Acquire(leagueID)
	if err != nil {
		return nil, err
	}
	defer release()

	var res *model.AuctionResult
	err = e.withCASRetry(func() error {
		st, err := e.store.AuctionState(ctx, leagueID)
		if err != nil {
			return err
		}
		if st == nil {
			return model.ErrNoActiveAuction
		}
		if st.PlayerID != req.PlayerID {
			return model.ErrStaleAuction
		}

		league, err := e.store.LeagueByID(ctx, leagueID)
		if err != nil {
			return err
		}
		team, err := e.store.TeamByID(ctx, req.TeamID)
		if err != nil {
			return err
		}
		if league == nil || team == nil || team.LeagueID != leagueID {
			return model.ErrNotFound
		}

		replay, err := admitBid(st, league, team, req.Amount)
		if err != nil {
			return err
		}
		if replay {
			r := resultFor(st)
			res = &r
			return nil
		}

		next := *st
		next.CurrentPrice = req.Amount
		next.LeadingTeamID = &team.ID
		next.Seq++
		bid := &model.Bid{
			ID:        uuid.New().String(),
			AuctionID: st.ID,
			LeagueID:  leagueID,
			PlayerID:  st.PlayerID,
			TeamID:    &team.ID,
			Kind:      model.KindBid,
			Amount:    req.Amount,
			Seq:       next.Seq,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.store.CommitBid(ctx, &next, bid); err != nil {
			return err
		}

		r := resultFor(&next)
		res = &r
		e.rooms.setState(leagueID, r)
		e.rooms.appendAudit(leagueID, *bid)
		e.emit(leagueID, "bid", bid)
		e.emit(leagueID, "auction_state", r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ResetPrice is the auctioneer's override: sets the price, clears the
// leading team, and appends a RESET row to the audit log so the override
// itself is on record. The next bid may then equal the reset price.
func (e *Engine) ResetPrice(ctx context.Context, leagueID string, newPrice int64) (*model.AuctionResult, error) {
	if newPrice <= 0 {
		return nil, model.ErrInvalidBid
	}
	release, err := e.locks.Acquire(leagueID)
	if err != nil {
		return nil, err
	}
	defer release()

	var res *model.AuctionResult
	err = e.withCASRetry(func() error {
		st, err := e.store.AuctionState(ctx, leagueID)
		if err != nil {
			return err
		}
		if st == nil {
			return model.ErrNoActiveAuction
		}

		next := *st
		next.CurrentPrice = newPrice
		next.LeadingTeamID = nil
		next.Seq++
		ev := &model.Bid{
			ID:        uuid.New().String(),
			AuctionID: st.ID,
			LeagueID:  leagueID,
			PlayerID:  st.PlayerID,
			Kind:      model.KindReset,
			Amount:    newPrice,
			Seq:       next.Seq,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.store.CommitBid(ctx, &next, ev); err != nil {
			return err
		}

		r := resultFor(&next)
		res = &r
		e.rooms.setState(leagueID, r)
		e.rooms.appendAudit(leagueID, *ev)
		log.Printf("[engine] league %s: price reset to %d for player %s", leagueID, newPrice, st.PlayerID)
		e.emit(leagueID, "price_reset", r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FinalizeSold closes the round in favor of the leading team: debits its
// budget by the final price, marks the player SOLD, and clears the state
// row. Fails with ErrNoBids when nobody leads. The store re-checks the
// budget at debit time — the team could have been drained by another sale
// between the winning bid and the hammer.
func (e *Engine) FinalizeSold(ctx context.Context, leagueID string) (*model.AuctionResult, error) {
	release, err := e.locks.Acquire(leagueID)
	if err != nil {
		return nil, err
	}
	defer release()

	var res *model.AuctionResult
	err = e.withCASRetry(func() error {
		st, err := e.store.AuctionState(ctx, leagueID)
		if err != nil {
			return err
		}
		if st == nil {
			return model.ErrNoActiveAuction
		}
		if st.LeadingTeamID == nil {
			return model.ErrNoBids
		}

		newBalance, err := e.store.FinalizeSold(ctx, st)
		if err != nil {
			return err
		}

		res = &model.AuctionResult{
			PlayerID:      st.PlayerID,
			Price:         st.CurrentPrice,
			LeadingTeamID: st.LeadingTeamID,
			Status:        model.AuctionSold,
		}
		e.rooms.clear(leagueID)
		log.Printf("[engine] league %s: player %s sold to team %s for %d (balance %d)",
			leagueID, st.PlayerID, *st.LeadingTeamID, st.CurrentPrice, newBalance)
		e.emit(leagueID, "sold", res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FinalizeUnsold closes the round with no sale: marks the player UNSOLD
// and clears the state row. Allowed regardless of bid state.
func (e *Engine) FinalizeUnsold(ctx context.Context, leagueID string) (*model.AuctionResult, error) {
	release, err := e.locks.Acquire(leagueID)
	if err != nil {
		return nil, err
	}
	defer release()

	var res *model.AuctionResult
	err = e.withCASRetry(func() error {
		st, err := e.store.AuctionState(ctx, leagueID)
		if err != nil {
			return err
		}
		if st == nil {
			return model.ErrNoActiveAuction
		}

		if err := e.store.FinalizeUnsold(ctx, st); err != nil {
			return err
		}

		res = &model.AuctionResult{
			PlayerID: st.PlayerID,
			Price:    st.CurrentPrice,
			Status:   model.AuctionUnsold,
		}
		e.rooms.clear(leagueID)
		log.Printf("[engine] league %s: player %s went unsold", leagueID, st.PlayerID)
		e.emit(leagueID, "unsold", res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// State is the unlocked display read: served from the room cache when
// warm, falling back to the store. Not for admission decisions.
func (e *Engine) State(ctx context.Context, leagueID string) (*model.AuctionResult, error) {
	if r, ok := e.rooms.state(leagueID); ok {
		return &r, nil
	}
	st, err := e.store.AuctionState(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		idle := model.AuctionResult{Status: model.AuctionIdle}
		e.rooms.setState(leagueID, idle)
		return &idle, nil
	}
	r := resultFor(st)
	e.rooms.setState(leagueID, r)
	return &r, nil
}

// Room returns the display snapshot for a league: the current state plus
// a tail of the audit log, both eventually consistent. The tail is served
// from the room cache when warm; on a cold cache with a live auction
// (fresh process, round already running) it falls back to the store so
// the room is not shown empty mid-round.
func (e *Engine) Room(ctx context.Context, leagueID string) (*model.AuctionResult, []model.Bid, error) {
	res, err := e.State(ctx, leagueID)
	if err != nil {
		return nil, nil, err
	}
	recent := e.rooms.recentAudit(leagueID, maxRecent)
	if recent == nil && res.Status == model.AuctionInProgress {
		recent, err = e.store.BidHistory(ctx, leagueID, maxRecent)
		if err != nil {
			return nil, nil, err
		}
	}
	return res, recent, nil
}

// History returns the append-only audit log, newest first.
func (e *Engine) History(ctx context.Context, leagueID string, limit int) ([]model.Bid, error) {
	return e.store.BidHistory(ctx, leagueID, limit)
}

// ── Helpers ──────────────────────────────────────────

// withCASRetry re-runs fn while it reports a lost version race, up to
// the retry bound. fn re-reads the auction state on every attempt so it
// never validates against a stale price.
func (e *Engine) withCASRetry(fn func() error) error {
	var err error
	for i := 0; i < e.retries; i++ {
		err = fn()
		if !errors.Is(err, model.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

func (e *Engine) emit(leagueID, msgType string, data any) {
	if e.publish != nil {
		e.publish(leagueID, msgType, data)
	}
}

func resultFor(st *model.AuctionState) model.AuctionResult {
	return model.AuctionResult{
		PlayerID:      st.PlayerID,
		Price:         st.CurrentPrice,
		LeadingTeamID: st.LeadingTeamID,
		Status:        model.AuctionInProgress,
	}
}
