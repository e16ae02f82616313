package engine

import (
	"sync"
	"time"

	"league-auction/internal/model"
)

// lockTable hands out one lock per league so that every mutating auction
// operation runs as a critical section. The store's version-token commit
// is the safety net against other writers (other processes); this table
// keeps requests inside one process from even reaching that point
// concurrently.
type lockTable struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
	wait time.Duration
}

func newLockTable(wait time.Duration) *lockTable {
	return &lockTable{
		sems: make(map[string]chan struct{}),
		wait: wait,
	}
}

func (t *lockTable) sem(leagueID string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sems[leagueID]
	if !ok {
		s = make(chan struct{}, 1)
		t.sems[leagueID] = s
	}
	return s
}

// Acquire blocks until the league lock is free or the wait bound expires.
// On success it returns the release func; callers must release on every
// exit path. On expiry it returns model.ErrLockTimeout, which is safe for
// clients to retry verbatim.
func (t *lockTable) Acquire(leagueID string) (func(), error) {
	s := t.sem(leagueID)
	timer := time.NewTimer(t.wait)
	defer timer.Stop()
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer.C:
		return nil, model.ErrLockTimeout
	}
}
