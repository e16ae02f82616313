package engine

import (
	"sync"

	"league-auction/internal/model"
)

// maxRecent caps the per-league in-memory audit tail.
const maxRecent = 50

// roomCache mirrors each league's last committed auction state and a
// short tail of its audit log so display reads don't have to touch the
// store. It is advisory only: admission decisions always go through the
// trusted store read under the league lock.
type roomCache struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	result model.AuctionResult
	recent []model.Bid // newest first
}

func newRoomCache() *roomCache {
	return &roomCache{rooms: make(map[string]*room)}
}

func (c *roomCache) get(leagueID string) *room {
	r, ok := c.rooms[leagueID]
	if !ok {
		r = &room{result: model.AuctionResult{Status: model.AuctionIdle}}
		c.rooms[leagueID] = r
	}
	return r
}

func (c *roomCache) setState(leagueID string, res model.AuctionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(leagueID).result = res
}

func (c *roomCache) appendAudit(leagueID string, b model.Bid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.get(leagueID)
	r.recent = append([]model.Bid{b}, r.recent...)
	if len(r.recent) > maxRecent {
		r.recent = r.recent[:maxRecent]
	}
}

// clear marks the league idle and drops the audit tail; the round is
// over and history lives in the store.
func (c *roomCache) clear(leagueID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.get(leagueID)
	r.result = model.AuctionResult{Status: model.AuctionIdle}
	r.recent = nil
}

func (c *roomCache) state(leagueID string) (model.AuctionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[leagueID]
	if !ok {
		return model.AuctionResult{}, false
	}
	return r.result, true
}

// recentAudit returns up to limit of the cached audit tail, newest first.
func (c *roomCache) recentAudit(leagueID string, limit int) []model.Bid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[leagueID]
	if !ok || len(r.recent) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(r.recent) {
		limit = len(r.recent)
	}
	out := make([]model.Bid, limit)
	copy(out, r.recent[:limit])
	return out
}
