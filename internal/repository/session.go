package repository

import (
	"errors"
	"fmt"
	"strings"

	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/whodunit/platform/internal/domain"
)

const sessionColumns = "id, code, host_id, phase, result_message, started_at, created_at, updated_at"

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

func (r *sessionRepo) Insert(ctx context.Context, db DBTX, s *domain.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO sessions (id, code, host_id, phase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Code, s.HostID, string(s.Phase), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict(fmt.Sprintf("session code %s already in use", s.Code))
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Session, error) {
	row := db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *sessionRepo) FindByCode(ctx context.Context, db DBTX, code string) (*domain.Session, error) {
	row := db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE code = $1`, strings.ToUpper(code))
	return scanSession(row)
}

// TransitionPhase is the single mutual-exclusion point for phase changes:
// the WHERE clause on the current phase makes the update a compare-and-swap,
// so exactly one of N concurrent callers wins.
func (r *sessionRepo) TransitionPhase(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.Phase, patch SessionPatch) (*domain.Session, error) {
	setClauses := []string{"phase = $1", "updated_at = now()"}
	args := []interface{}{string(to)}
	argIdx := 2

	if patch.StartedAt != nil {
		setClauses = append(setClauses, fmt.Sprintf("started_at = $%d", argIdx))
		args = append(args, *patch.StartedAt)
		argIdx++
	}
	if patch.ResultMessage != nil {
		setClauses = append(setClauses, fmt.Sprintf("result_message = $%d", argIdx))
		args = append(args, *patch.ResultMessage)
		argIdx++
	}
	if patch.ClearResult {
		setClauses = append(setClauses, "result_message = NULL")
	}

	args = append(args, id, string(from))
	query := fmt.Sprintf(`
		UPDATE sessions SET %s
		WHERE id = $%d AND phase = $%d
		RETURNING `+sessionColumns,
		strings.Join(setClauses, ", "), argIdx, argIdx+1)

	row := db.QueryRow(ctx, query, args...)
	return scanSession(row)
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var phase string
	err := row.Scan(&s.ID, &s.Code, &s.HostID, &phase, &s.ResultMessage, &s.StartedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	s.Phase = domain.Phase(phase)
	return &s, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
