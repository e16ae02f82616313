package model

import "time"

// ── Enums ────────────────────────────────────────────

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type PlayerStatus string

const (
	PlayerAvailable PlayerStatus = "AVAILABLE"
	PlayerInAuction PlayerStatus = "IN_AUCTION"
	PlayerSold      PlayerStatus = "SOLD"
	PlayerUnsold    PlayerStatus = "UNSOLD"
)

type PlayerPosition string

const (
	PositionBatter     PlayerPosition = "BATTER"
	PositionBowler     PlayerPosition = "BOWLER"
	PositionAllrounder PlayerPosition = "ALLROUNDER"
	PositionKeeper     PlayerPosition = "KEEPER"
)

// BidKind distinguishes real bids from admin price resets in the
// append-only audit log.
type BidKind string

const (
	KindBid   BidKind = "BID"
	KindReset BidKind = "RESET"
)

// ── Defaults ─────────────────────────────────────────

const (
	DefaultPurse        int64 = 500_000_000 // 50 crore
	DefaultBasePrice    int64 = 5_000_000   // 50 lakh
	DefaultMaxSquadSize       = 20
	DefaultMinSquadSize       = 16
)

// ── Domain Objects ───────────────────────────────────

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	TeamID       *string   `json:"team_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type League struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	DefaultPurse int64     `json:"default_purse"`
	MaxSquadSize int       `json:"max_squad_size"`
	MinSquadSize int       `json:"min_squad_size"`
	CreatedAt    time.Time `json:"created_at"`
}

type Team struct {
	ID              string    `json:"id"`
	LeagueID        string    `json:"league_id"`
	Name            string    `json:"name"`
	BudgetRemaining int64     `json:"budget_remaining"`
	BudgetInitial   int64     `json:"budget_initial"`
	SquadSize       int       `json:"squad_size"`
	CreatedAt       time.Time `json:"created_at"`
}

type Player struct {
	ID        string         `json:"id"`
	LeagueID  string         `json:"league_id"`
	Name      string         `json:"name"`
	Position  PlayerPosition `json:"position"`
	Country   string         `json:"country"`
	BasePrice int64          `json:"base_price"`
	Status    PlayerStatus   `json:"status"`
	TeamID    *string        `json:"team_id,omitempty"`
	SoldPrice *int64         `json:"sold_price,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuctionState is the single live "player under the hammer" record for a
// league. Version is the optimistic-lock token: every committed mutation
// bumps it, and writers include the version they read in their UPDATE's
// WHERE clause.
type AuctionState struct {
	ID            string    `json:"id"`
	LeagueID      string    `json:"league_id"`
	PlayerID      string    `json:"player_id"`
	CurrentPrice  int64     `json:"current_price"`
	LeadingTeamID *string   `json:"leading_team_id"`
	Seq           int64     `json:"seq"`
	Version       int64     `json:"-"`
	StartedAt     time.Time `json:"started_at"`
}

// Bid is one row of the append-only audit log. Rows are never mutated or
// deleted; ordering is by Seq assigned at commit time, not by timestamp.
// TeamID is null for RESET events.
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	LeagueID  string    `json:"league_id"`
	PlayerID  string    `json:"player_id"`
	TeamID    *string   `json:"team_id"`
	Kind      BidKind   `json:"kind"`
	Amount    int64     `json:"amount"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// ── API Types ────────────────────────────────────────

type PlaceBidReq struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	Amount   int64  `json:"amount"`
}

type AuctionStatus string

const (
	AuctionIdle       AuctionStatus = "IDLE"
	AuctionInProgress AuctionStatus = "IN_PROGRESS"
	AuctionSold       AuctionStatus = "SOLD"
	AuctionUnsold     AuctionStatus = "UNSOLD"
)

// AuctionResult is what every engine operation returns to callers.
type AuctionResult struct {
	PlayerID      string        `json:"player_id,omitempty"`
	Price         int64         `json:"price"`
	LeadingTeamID *string       `json:"leading_team_id"`
	Status        AuctionStatus `json:"status"`
}
