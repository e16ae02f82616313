package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"

	"league-auction/internal/model"
)

type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Migrate(dir string) error {
	driver, err := postgres.WithInstance(s.DB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.DB.BeginTx(ctx, nil)
}

func isUniqueViolation(err error) bool {
	pqe, ok := err.(*pq.Error)
	return ok && pqe.Code == "23505"
}

// ── Users ────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, id, email, hash string, role model.Role, teamID *string) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, team_id) VALUES ($1,$2,$3,$4,$5)
		 RETURNING id, email, password_hash, role, team_id, created_at`, id, email, hash, role, teamID,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.TeamID, &u.CreatedAt)
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, team_id, created_at FROM users WHERE email=$1`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.TeamID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, team_id, created_at FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.TeamID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ── Leagues ──────────────────────────────────────────

func (s *Store) CreateLeague(ctx context.Context, l *model.League) error {
	return s.DB.QueryRowContext(ctx,
		`INSERT INTO leagues (id, name, display_name, default_purse, max_squad_size, min_squad_size)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at`,
		l.ID, l.Name, l.DisplayName, l.DefaultPurse, l.MaxSquadSize, l.MinSquadSize,
	).Scan(&l.CreatedAt)
}

func (s *Store) ListLeagues(ctx context.Context) ([]model.League, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, display_name, default_purse, max_squad_size, min_squad_size, created_at
		 FROM leagues ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.League
	for rows.Next() {
		var l model.League
		if err := rows.Scan(&l.ID, &l.Name, &l.DisplayName, &l.DefaultPurse, &l.MaxSquadSize, &l.MinSquadSize, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) LeagueByID(ctx context.Context, id string) (*model.League, error) {
	l := &model.League{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, display_name, default_purse, max_squad_size, min_squad_size, created_at
		 FROM leagues WHERE id=$1`, id,
	).Scan(&l.ID, &l.Name, &l.DisplayName, &l.DefaultPurse, &l.MaxSquadSize, &l.MinSquadSize, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// ── Teams ────────────────────────────────────────────

func (s *Store) CreateTeam(ctx context.Context, t *model.Team) error {
	return s.DB.QueryRowContext(ctx,
		`INSERT INTO teams (id, league_id, name, budget_remaining, budget_initial)
		 VALUES ($1,$2,$3,$4,$5) RETURNING squad_size, created_at`,
		t.ID, t.LeagueID, t.Name, t.BudgetRemaining, t.BudgetInitial,
	).Scan(&t.SquadSize, &t.CreatedAt)
}

func (s *Store) ListTeams(ctx context.Context, leagueID string) ([]model.Team, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, league_id, name, budget_remaining, budget_initial, squad_size, created_at
		 FROM teams WHERE league_id=$1 ORDER BY name`, leagueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.LeagueID, &t.Name, &t.BudgetRemaining, &t.BudgetInitial, &t.SquadSize, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) TeamByID(ctx context.Context, id string) (*model.Team, error) {
	t := &model.Team{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, league_id, name, budget_remaining, budget_initial, squad_size, created_at
		 FROM teams WHERE id=$1`, id,
	).Scan(&t.ID, &t.LeagueID, &t.Name, &t.BudgetRemaining, &t.BudgetInitial, &t.SquadSize, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ── Players ──────────────────────────────────────────

func (s *Store) CreatePlayer(ctx context.Context, p *model.Player) error {
	return s.DB.QueryRowContext(ctx,
		`INSERT INTO players (id, league_id, name, position, country, base_price, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING created_at`,
		p.ID, p.LeagueID, p.Name, p.Position, p.Country, p.BasePrice, p.Status,
	).Scan(&p.CreatedAt)
}

func (s *Store) ListPlayers(ctx context.Context, leagueID string, status model.PlayerStatus) ([]model.Player, error) {
	q := `SELECT id, league_id, name, position, country, base_price, status, team_id, sold_price, created_at
	      FROM players WHERE league_id=$1`
	args := []any{leagueID}
	if status != "" {
		q += ` AND status=$2`
		args = append(args, status)
	}
	q += ` ORDER BY name`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.LeagueID, &p.Name, &p.Position, &p.Country, &p.BasePrice, &p.Status, &p.TeamID, &p.SoldPrice, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) PlayerByID(ctx context.Context, id string) (*model.Player, error) {
	p := &model.Player{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, league_id, name, position, country, base_price, status, team_id, sold_price, created_at
		 FROM players WHERE id=$1`, id,
	).Scan(&p.ID, &p.LeagueID, &p.Name, &p.Position, &p.Country, &p.BasePrice, &p.Status, &p.TeamID, &p.SoldPrice, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ── Auction state ────────────────────────────────────

func (s *Store) AuctionState(ctx context.Context, leagueID string) (*model.AuctionState, error) {
	st := &model.AuctionState{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, league_id, player_id, current_price, leading_team_id, seq, version, started_at
		 FROM auction_states WHERE league_id=$1`, leagueID,
	).Scan(&st.ID, &st.LeagueID, &st.PlayerID, &st.CurrentPrice, &st.LeadingTeamID, &st.Seq, &st.Version, &st.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return st, err
}

// CreateAuction flips the player to IN_AUCTION and inserts the state row
// in one transaction. The conditional player update and the UNIQUE
// league constraint are the database-level guards behind the engine's
// in-process lock.
func (s *Store) CreateAuction(ctx context.Context, st *model.AuctionState) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE players SET status=$1 WHERE id=$2 AND status IN ($3,$4)`,
		model.PlayerInAuction, st.PlayerID, model.PlayerAvailable, model.PlayerUnsold,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotAuctionable
	}

	_, err = tx.Exec(
		`INSERT INTO auction_states (id, league_id, player_id, current_price, leading_team_id, seq, version, started_at)
		 VALUES ($1,$2,$3,$4,NULL,$5,$6,$7)`,
		st.ID, st.LeagueID, st.PlayerID, st.CurrentPrice, st.Seq, st.Version, st.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrAuctionInProgress
		}
		return err
	}
	return tx.Commit()
}

// CommitBid appends the audit row and applies the new price/leader/seq,
// guarded by the version the engine read. Both writes commit or neither
// does; a lost version race yields ErrConcurrencyConflict and no rows.
func (s *Store) CommitBid(ctx context.Context, st *model.AuctionState, bid *model.Bid) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertBid(tx, bid); err != nil {
		return err
	}
	if err := casUpdateState(tx, st); err != nil {
		return err
	}
	return tx.Commit()
}

// FinalizeSold debits the leading team, assigns the player, and clears
// the state row under the version guard. The conditional debit re-checks
// the budget at purchase time.
func (s *Store) FinalizeSold(ctx context.Context, st *model.AuctionState) (int64, error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := casDeleteState(tx, st); err != nil {
		return 0, err
	}
	newBalance, err := DebitBudget(tx, *st.LeadingTeamID, st.CurrentPrice)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`UPDATE teams SET squad_size = squad_size + 1 WHERE id=$1`, *st.LeadingTeamID); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(
		`UPDATE players SET status=$1, team_id=$2, sold_price=$3 WHERE id=$4`,
		model.PlayerSold, *st.LeadingTeamID, st.CurrentPrice, st.PlayerID,
	); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (s *Store) FinalizeUnsold(ctx context.Context, st *model.AuctionState) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := casDeleteState(tx, st); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE players SET status=$1 WHERE id=$2`, model.PlayerUnsold, st.PlayerID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func casUpdateState(tx *sql.Tx, st *model.AuctionState) error {
	res, err := tx.Exec(
		`UPDATE auction_states
		 SET current_price=$1, leading_team_id=$2, seq=$3, version=version+1
		 WHERE id=$4 AND version=$5`,
		st.CurrentPrice, st.LeadingTeamID, st.Seq, st.ID, st.Version,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrConcurrencyConflict
	}
	return nil
}

func casDeleteState(tx *sql.Tx, st *model.AuctionState) error {
	res, err := tx.Exec(
		`DELETE FROM auction_states WHERE id=$1 AND version=$2`, st.ID, st.Version,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrConcurrencyConflict
	}
	return nil
}

// ── Bids ─────────────────────────────────────────────

func insertBid(tx *sql.Tx, b *model.Bid) error {
	_, err := tx.Exec(
		`INSERT INTO bids (id, auction_id, league_id, player_id, team_id, kind, amount, seq, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.AuctionID, b.LeagueID, b.PlayerID, b.TeamID, b.Kind, b.Amount, b.Seq, b.CreatedAt,
	)
	return err
}

// BidHistory returns the league's audit log newest first. seq is the
// ordering key inside a round; timestamps only order whole rounds, which
// are serialized per league, so a clock step between two concurrent
// commits cannot reorder the exposed log.
func (s *Store) BidHistory(ctx context.Context, leagueID string, limit int) ([]model.Bid, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, auction_id, league_id, player_id, team_id, kind, amount, seq, created_at
		 FROM bids WHERE league_id=$1
		 ORDER BY min(created_at) OVER (PARTITION BY auction_id) DESC, seq DESC
		 LIMIT $2`, leagueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.LeagueID, &b.PlayerID, &b.TeamID, &b.Kind, &b.Amount, &b.Seq, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
