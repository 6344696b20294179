package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/novaplay-gaming/crash-server/engine"
)

// PgFailedCreditStore persists FailedCredit audit records to Postgres.
type PgFailedCreditStore struct {
	db *sql.DB
}

func NewPgFailedCreditStore(db *sql.DB) *PgFailedCreditStore {
	return &PgFailedCreditStore{db: db}
}

func (s *PgFailedCreditStore) Save(ctx context.Context, fc engine.FailedCredit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_credits (
			id, player_id, round_id, bet_id, payout_cents, reason, occurred_at, retry_count, resolved
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		fc.ID, fc.PlayerID, fc.RoundID, fc.BetID,
		fc.PayoutCents, fc.Reason, fc.OccurredAt, fc.RetryCount, fc.Resolved,
	)
	if err != nil {
		return fmt.Errorf("store: save failed credit %s: %w", fc.ID, err)
	}
	return nil
}

// Unresolved lists pending audit records for out-of-band reconciliation.
func (s *PgFailedCreditStore) Unresolved(ctx context.Context, limit int) ([]engine.FailedCredit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, round_id, bet_id, payout_cents, reason, occurred_at, retry_count, resolved
		FROM failed_credits
		WHERE resolved = false
		ORDER BY occurred_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list failed credits: %w", err)
	}
	defer rows.Close()
	var out []engine.FailedCredit
	for rows.Next() {
		var fc engine.FailedCredit
		if err := rows.Scan(&fc.ID, &fc.PlayerID, &fc.RoundID, &fc.BetID,
			&fc.PayoutCents, &fc.Reason, &fc.OccurredAt, &fc.RetryCount, &fc.Resolved); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// MemFailedCreditStore keeps audit records in memory for DB-less runs and
// tests.
type MemFailedCreditStore struct {
	mu   sync.Mutex
	recs []engine.FailedCredit
}

func NewMemFailedCreditStore() *MemFailedCreditStore {
	return &MemFailedCreditStore{}
}

func (s *MemFailedCreditStore) Save(_ context.Context, fc engine.FailedCredit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, fc)
	return nil
}

func (s *MemFailedCreditStore) All() []engine.FailedCredit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.FailedCredit(nil), s.recs...)
}
