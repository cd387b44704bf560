package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/repository"
)

// RequestVote moves active play into a voting round. Any participant may
// trigger it ("someone found a body"). Calls on a session already in voting
// or resolved are no-op successes.
func (e *Engine) RequestVote(ctx context.Context, sessionID uuid.UUID, identity string) (*domain.Session, error) {
	session, _, err := e.requireParticipant(ctx, sessionID, identity)
	if err != nil {
		return nil, err
	}
	if session.Phase.AtLeast(domain.PhaseVoting) {
		return session, nil
	}
	if session.Phase == domain.PhaseWaiting {
		return nil, domain.ErrForbidden("session has not started")
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}

	updated, err := e.sessions.TransitionPhase(ctx, tx, sessionID,
		domain.PhaseActive, domain.PhaseVoting, repository.SessionPatch{})
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("transition phase", err)
	}
	if updated == nil {
		_ = tx.Rollback(ctx)
		// Someone else opened (or closed) the vote first.
		current, err := e.sessions.FindByID(ctx, e.db, sessionID)
		if err != nil {
			return nil, domain.ErrInternal("find session", err)
		}
		if current == nil {
			return nil, domain.ErrNotFound("session", sessionID.String())
		}
		if current.Phase.AtLeast(domain.PhaseVoting) {
			return current, nil
		}
		return nil, domain.ErrPredicateFailed("vote request lost a race")
	}

	draft := domain.NewChangeDraft(domain.AggregateSession, sessionID, domain.EventSessionPhaseChanged,
		sessionID, domain.TableSessions, domain.OpUpdate, updated, session)
	if err := e.outbox.Insert(ctx, tx, draft); err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	e.logger.Info("voting opened", "session_id", sessionID)
	return updated, nil
}
