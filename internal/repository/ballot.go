package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

type ballotRepo struct{}

// NewBallotRepository returns a pgx-backed BallotRepository.
func NewBallotRepository() BallotRepository {
	return &ballotRepo{}
}

// Insert leans on the unique (session_id, voter_id) index: two concurrent
// casts from the same voter race at the constraint, not in application code,
// so exactly one wins.
func (r *ballotRepo) Insert(ctx context.Context, db DBTX, b *domain.Ballot) error {
	_, err := db.Exec(ctx, `
		INSERT INTO ballots (id, session_id, voter_id, target_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.SessionID, b.VoterID, b.TargetID, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyVoted(b.VoterID.String())
		}
		return fmt.Errorf("insert ballot: %w", err)
	}
	return nil
}

func (r *ballotRepo) ListBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) ([]domain.Ballot, error) {
	rows, err := db.Query(ctx, `
		SELECT id, session_id, voter_id, target_id, created_at
		FROM ballots WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list ballots: %w", err)
	}
	defer rows.Close()

	var out []domain.Ballot
	for rows.Next() {
		var b domain.Ballot
		if err := rows.Scan(&b.ID, &b.SessionID, &b.VoterID, &b.TargetID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ballot: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *ballotRepo) DeleteBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM ballots WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete ballots: %w", err)
	}
	return nil
}
