package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/whodunit/platform/internal/domain"
)

const gameEventColumns = "id, session_id, actor_id, target_id, kind, detail, created_at"

type gameEventRepo struct{}

// NewGameEventRepository returns a pgx-backed GameEventRepository.
func NewGameEventRepository() GameEventRepository {
	return &gameEventRepo{}
}

func (r *gameEventRepo) Insert(ctx context.Context, db DBTX, e *domain.GameEvent) error {
	_, err := db.Exec(ctx, `
		INSERT INTO game_events (id, session_id, actor_id, target_id, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.SessionID, e.ActorID, e.TargetID, string(e.Kind), e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert game event: %w", err)
	}
	return nil
}

// LatestByKind orders by created_at then id so ties within one timestamp
// resolve by insertion order.
func (r *gameEventRepo) LatestByKind(ctx context.Context, db DBTX, sessionID uuid.UUID, kind domain.EventKind) (*domain.GameEvent, error) {
	row := db.QueryRow(ctx, `
		SELECT `+gameEventColumns+`
		FROM game_events
		WHERE session_id = $1 AND kind = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, sessionID, string(kind))
	return scanGameEvent(row)
}

func (r *gameEventRepo) ListBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) ([]domain.GameEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT `+gameEventColumns+`
		FROM game_events WHERE session_id = $1
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list game events: %w", err)
	}
	defer rows.Close()

	var out []domain.GameEvent
	for rows.Next() {
		e, err := scanGameEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanGameEvent(row pgx.Row) (*domain.GameEvent, error) {
	var e domain.GameEvent
	var kind string
	err := row.Scan(&e.ID, &e.SessionID, &e.ActorID, &e.TargetID, &kind, &e.Detail, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan game event: %w", err)
	}
	e.Kind = domain.EventKind(kind)
	return &e, nil
}
