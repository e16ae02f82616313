package engine

import (
	"context"
	"sync"

	"league-auction/internal/model"
)

// memStore is an in-memory Store with the same commit semantics as the
// Postgres implementation: version-guarded writes, conditional budget
// debit, one state row per league. afterStateRead, when set, runs after
// every AuctionState read and lets tests interleave an "external" writer
// between a read and its commit.
type memStore struct {
	mu             sync.Mutex
	leagues        map[string]*model.League
	teams          map[string]*model.Team
	players        map[string]*model.Player
	states         map[string]*model.AuctionState // leagueID -> live row
	bids           []model.Bid
	afterStateRead func()
}

func newMemStore() *memStore {
	return &memStore{
		leagues: make(map[string]*model.League),
		teams:   make(map[string]*model.Team),
		players: make(map[string]*model.Player),
		states:  make(map[string]*model.AuctionState),
	}
}

func (m *memStore) LeagueByID(_ context.Context, id string) (*model.League, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leagues[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) TeamByID(_ context.Context, id string) (*model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) PlayerByID(_ context.Context, id string) (*model.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) AuctionState(_ context.Context, leagueID string) (*model.AuctionState, error) {
	m.mu.Lock()
	st, ok := m.states[leagueID]
	var cp *model.AuctionState
	if ok {
		c := *st
		cp = &c
	}
	hook := m.afterStateRead
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if !ok {
		return nil, nil
	}
	return cp, nil
}

func (m *memStore) CreateAuction(_ context.Context, st *model.AuctionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[st.LeagueID]; ok {
		return model.ErrAuctionInProgress
	}
	p, ok := m.players[st.PlayerID]
	if !ok || (p.Status != model.PlayerAvailable && p.Status != model.PlayerUnsold) {
		return model.ErrNotAuctionable
	}
	p.Status = model.PlayerInAuction
	cp := *st
	m.states[st.LeagueID] = &cp
	return nil
}

func (m *memStore) CommitBid(_ context.Context, st *model.AuctionState, bid *model.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[st.LeagueID]
	if !ok || cur.ID != st.ID || cur.Version != st.Version {
		return model.ErrConcurrencyConflict
	}
	cur.CurrentPrice = st.CurrentPrice
	cur.LeadingTeamID = st.LeadingTeamID
	cur.Seq = st.Seq
	cur.Version++
	m.bids = append(m.bids, *bid)
	return nil
}

func (m *memStore) FinalizeSold(_ context.Context, st *model.AuctionState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[st.LeagueID]
	if !ok || cur.ID != st.ID || cur.Version != st.Version {
		return 0, model.ErrConcurrencyConflict
	}
	team, ok := m.teams[*st.LeadingTeamID]
	if !ok {
		return 0, model.ErrNotFound
	}
	if team.BudgetRemaining < st.CurrentPrice {
		return 0, model.ErrInsufficientBudget
	}
	team.BudgetRemaining -= st.CurrentPrice
	team.SquadSize++
	p := m.players[st.PlayerID]
	p.Status = model.PlayerSold
	p.TeamID = st.LeadingTeamID
	price := st.CurrentPrice
	p.SoldPrice = &price
	delete(m.states, st.LeagueID)
	return team.BudgetRemaining, nil
}

func (m *memStore) FinalizeUnsold(_ context.Context, st *model.AuctionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[st.LeagueID]
	if !ok || cur.ID != st.ID || cur.Version != st.Version {
		return model.ErrConcurrencyConflict
	}
	m.players[st.PlayerID].Status = model.PlayerUnsold
	delete(m.states, st.LeagueID)
	return nil
}

func (m *memStore) BidHistory(_ context.Context, leagueID string, limit int) ([]model.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Bid
	for i := len(m.bids) - 1; i >= 0 && len(out) < limit; i-- {
		if m.bids[i].LeagueID == leagueID {
			out = append(out, m.bids[i])
		}
	}
	return out, nil
}

// ── Seed helpers ─────────────────────────────────────

func (m *memStore) addLeague(id string, maxSquad int) {
	m.leagues[id] = &model.League{
		ID:           id,
		Name:         id,
		DefaultPurse: model.DefaultPurse,
		MaxSquadSize: maxSquad,
		MinSquadSize: 1,
	}
}

func (m *memStore) addTeam(id, leagueID string, budget int64) {
	m.teams[id] = &model.Team{
		ID:              id,
		LeagueID:        leagueID,
		Name:            id,
		BudgetRemaining: budget,
		BudgetInitial:   budget,
	}
}

func (m *memStore) addPlayer(id, leagueID string, basePrice int64) {
	m.players[id] = &model.Player{
		ID:        id,
		LeagueID:  leagueID,
		Name:      id,
		Position:  model.PositionAllrounder,
		BasePrice: basePrice,
		Status:    model.PlayerAvailable,
	}
}

// bumpVersion simulates an external writer committing between this
// process's read and its CAS write.
func (m *memStore) bumpVersion(leagueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[leagueID]; ok {
		st.Version++
	}
}

func (m *memStore) setBudget(teamID string, budget int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[teamID].BudgetRemaining = budget
}

func (m *memStore) leagueBids(leagueID string) []model.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Bid
	for _, b := range m.bids {
		if b.LeagueID == leagueID {
			out = append(out, b)
		}
	}
	return out
}
