package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/whodunit/platform/internal/domain"
)

const participantColumns = "id, session_id, identity, display_name, is_host, is_eliminated, is_hidden_role, is_voted_out, created_at"

type participantRepo struct{}

// NewParticipantRepository returns a pgx-backed ParticipantRepository.
func NewParticipantRepository() ParticipantRepository {
	return &participantRepo{}
}

// Insert relies on ON CONFLICT DO NOTHING over (session_id, identity) so a
// duplicate join is absorbed by storage rather than raced in application
// code.
func (r *participantRepo) Insert(ctx context.Context, db DBTX, p *domain.Participant) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO participants (id, session_id, identity, display_name, is_host, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, identity) DO NOTHING`,
		p.ID, p.SessionID, p.Identity, p.DisplayName, p.IsHost, p.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert participant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *participantRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error) {
	row := db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	return scanParticipant(row)
}

func (r *participantRepo) FindByIdentity(ctx context.Context, db DBTX, sessionID uuid.UUID, identity string) (*domain.Participant, error) {
	row := db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 AND identity = $2`,
		sessionID, identity)
	return scanParticipant(row)
}

func (r *participantRepo) ListBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) ([]domain.Participant, error) {
	rows, err := db.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *participantRepo) SetHiddenRole(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error) {
	row := db.QueryRow(ctx, `
		UPDATE participants SET is_hidden_role = true
		WHERE id = $1
		RETURNING `+participantColumns, id)
	return scanParticipant(row)
}

// MarkEliminated is conditional on the participant still being alive; the
// returned nil tells the caller the flip already happened.
func (r *participantRepo) MarkEliminated(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error) {
	row := db.QueryRow(ctx, `
		UPDATE participants SET is_eliminated = true
		WHERE id = $1 AND is_eliminated = false
		RETURNING `+participantColumns, id)
	return scanParticipant(row)
}

func (r *participantRepo) MarkVotedOut(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error) {
	row := db.QueryRow(ctx, `
		UPDATE participants SET is_voted_out = true
		WHERE id = $1
		RETURNING `+participantColumns, id)
	return scanParticipant(row)
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.SessionID, &p.Identity, &p.DisplayName,
		&p.IsHost, &p.IsEliminated, &p.IsHiddenRole, &p.IsVotedOut, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan participant: %w", err)
	}
	return &p, nil
}
