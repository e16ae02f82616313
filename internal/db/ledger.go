package db

import (
	"context"
	"database/sql"

	"league-auction/internal/model"
)

// DebitBudget takes amount from a team's remaining budget and returns
// the new balance. The WHERE clause re-checks the balance at debit time:
// bid validation and sale finalization are separate critical sections,
// so the budget seen at bid time may already be spent.
func DebitBudget(tx *sql.Tx, teamID string, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(
		`UPDATE teams SET budget_remaining = budget_remaining - $1
		 WHERE id=$2 AND budget_remaining >= $1
		 RETURNING budget_remaining`, amount, teamID,
	).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return 0, model.ErrInsufficientBudget
	}
	return newBalance, err
}

// ResetLeagueBudgets restores every team in the league to its initial
// budget. This is the one sanctioned refund path; normal play only ever
// debits.
func (s *Store) ResetLeagueBudgets(ctx context.Context, leagueID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE teams SET budget_remaining = budget_initial WHERE league_id=$1`, leagueID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SpentByTeam sums a team's committed purchases from the players table.
// Audit helper; not part of any admission decision.
func (s *Store) SpentByTeam(ctx context.Context, teamID string) (int64, error) {
	var spent int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(sold_price),0) FROM players WHERE team_id=$1 AND status=$2`,
		teamID, model.PlayerSold,
	).Scan(&spent)
	return spent, err
}
