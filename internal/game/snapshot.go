package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

// Snapshot reads everything a client needs to attach to a session. The reads
// are not transactional: a change feed event racing the snapshot is absorbed
// by the sync layer's order-tolerant fold rules.
func (e *Engine) Snapshot(ctx context.Context, sessionID uuid.UUID) (*domain.Snapshot, error) {
	session, err := e.sessions.FindByID(ctx, e.db, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("find session", err)
	}
	if session == nil {
		return nil, domain.ErrNotFound("session", sessionID.String())
	}
	return e.snapshotOf(ctx, session)
}

// SnapshotByCode is Snapshot keyed by the shareable session code.
func (e *Engine) SnapshotByCode(ctx context.Context, code string) (*domain.Snapshot, error) {
	session, err := e.sessions.FindByCode(ctx, e.db, code)
	if err != nil {
		return nil, domain.ErrInternal("find session", err)
	}
	if session == nil {
		return nil, domain.ErrNotFound("session", code)
	}
	return e.snapshotOf(ctx, session)
}

func (e *Engine) snapshotOf(ctx context.Context, session *domain.Session) (*domain.Snapshot, error) {
	participants, err := e.participants.ListBySession(ctx, e.db, session.ID)
	if err != nil {
		return nil, domain.ErrInternal("list participants", err)
	}
	ballots, err := e.ballots.ListBySession(ctx, e.db, session.ID)
	if err != nil {
		return nil, domain.ErrInternal("list ballots", err)
	}
	latestElim, err := e.events.LatestByKind(ctx, e.db, session.ID, domain.KindElimination)
	if err != nil {
		return nil, domain.ErrInternal("find latest elimination", err)
	}
	latestResult, err := e.events.LatestByKind(ctx, e.db, session.ID, domain.KindBallotResult)
	if err != nil {
		return nil, domain.ErrInternal("find latest ballot result", err)
	}

	return &domain.Snapshot{
		Session:            *session,
		Participants:       participants,
		LatestElimination:  latestElim,
		LatestBallotResult: latestResult,
		Ballots:            ballots,
	}, nil
}

// LatestElimination returns the most recent kill record for a session, used
// by sync watchers reacting to an elimination edge.
func (e *Engine) LatestElimination(ctx context.Context, sessionID uuid.UUID) (*domain.GameEvent, error) {
	record, err := e.events.LatestByKind(ctx, e.db, sessionID, domain.KindElimination)
	if err != nil {
		return nil, domain.ErrInternal("find latest elimination", err)
	}
	return record, nil
}
