package engine

import (
	"testing"

	"league-auction/internal/model"
)

func TestRoomCacheStateAndClear(t *testing.T) {
	c := newRoomCache()

	if _, ok := c.state("L1"); ok {
		t.Fatal("cold cache should miss")
	}

	lead := "A"
	c.setState("L1", model.AuctionResult{
		PlayerID: "p1", Price: 50, LeadingTeamID: &lead, Status: model.AuctionInProgress,
	})
	res, ok := c.state("L1")
	if !ok || res.Price != 50 || res.Status != model.AuctionInProgress {
		t.Fatalf("expected cached in-progress state, got %+v ok=%v", res, ok)
	}

	c.clear("L1")
	res, ok = c.state("L1")
	if !ok || res.Status != model.AuctionIdle {
		t.Fatalf("expected idle after clear, got %+v", res)
	}
}

func TestRoomCacheAuditTailCapped(t *testing.T) {
	c := newRoomCache()
	for i := 0; i < maxRecent+10; i++ {
		c.appendAudit("L1", model.Bid{Seq: int64(i + 1), Amount: int64(i + 1)})
	}

	tail := c.recentAudit("L1", 0)
	if len(tail) != maxRecent {
		t.Fatalf("expected tail capped at %d, got %d", maxRecent, len(tail))
	}
	// Newest first
	if tail[0].Seq != int64(maxRecent+10) {
		t.Fatalf("expected newest seq %d first, got %d", maxRecent+10, tail[0].Seq)
	}

	if got := c.recentAudit("L1", 5); len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	if c.recentAudit("missing", 5) != nil {
		t.Fatal("unknown league should return nil")
	}

	c.clear("L1")
	if c.recentAudit("L1", 0) != nil {
		t.Fatal("clear should drop the audit tail")
	}
}
