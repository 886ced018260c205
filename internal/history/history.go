// internal/history/history.go
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hshokrig/chicken-vault/internal/models"
)

// Store persists finalized round summaries to Postgres so finished games can
// be reviewed later. Optional: the engine runs fine without one.
//
// Expected schema:
//
//	CREATE TABLE rounds (
//	    session_id  uuid    NOT NULL,
//	    round       int     NOT NULL,
//	    secret_card text    NOT NULL,
//	    vault_value int     NOT NULL,
//	    reason      text    NOT NULL,
//	    points      jsonb   NOT NULL,
//	    team_a      int     NOT NULL,
//	    team_b      int     NOT NULL,
//	    total_a     int     NOT NULL,
//	    total_b     int     NOT NULL,
//	    finalized_at timestamptz NOT NULL,
//	    PRIMARY KEY (session_id, round)
//	);
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool against the given URL and verifies it.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RecordRound upserts one finalized round and the running totals. Implements
// engine.RoundRecorder.
func (s *Store) RecordRound(ctx context.Context, sessionID uuid.UUID, summary models.RoundSummary, totals models.TeamTotals) error {
	points, err := json.Marshal(summary.PointsByPlayer)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO rounds (session_id, round, secret_card, vault_value, reason,
			                    points, team_a, team_b, total_a, total_b, finalized_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (session_id, round)
			DO UPDATE SET points=$6, team_a=$7, team_b=$8, total_a=$9, total_b=$10
		`
		_, err := tx.Exec(ctx, q,
			sessionID, summary.Round, summary.SecretCard, summary.VaultValue, summary.Reason,
			points, summary.TeamPoints[models.TeamA], summary.TeamPoints[models.TeamB],
			totals.A, totals.B, summary.FinalizedAt)
		return err
	})
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}
