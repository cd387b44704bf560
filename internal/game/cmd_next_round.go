package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/repository"
)

// NextRound re-arms a resolved session for another elimination/vote cycle:
// ballots are cleared, the result message is reset, and play returns to
// active with the same hidden role. Host only. Calling it on a session that
// is already active again is a no-op success.
func (e *Engine) NextRound(ctx context.Context, sessionID uuid.UUID, identity string) (*domain.Session, error) {
	session, actor, err := e.requireParticipant(ctx, sessionID, identity)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost {
		return nil, domain.ErrForbidden("only the host can start the next round")
	}
	if session.Phase == domain.PhaseActive {
		return session, nil
	}
	if session.Phase != domain.PhaseResolved {
		return nil, domain.ErrForbidden("next round requires a resolved vote")
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}

	updated, err := e.sessions.TransitionPhase(ctx, tx, sessionID,
		domain.PhaseResolved, domain.PhaseActive, repository.SessionPatch{ClearResult: true})
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("transition phase", err)
	}
	if updated == nil {
		_ = tx.Rollback(ctx)
		current, err := e.sessions.FindByID(ctx, e.db, sessionID)
		if err != nil {
			return nil, domain.ErrInternal("find session", err)
		}
		if current == nil {
			return nil, domain.ErrNotFound("session", sessionID.String())
		}
		if current.Phase == domain.PhaseActive {
			return current, nil
		}
		return nil, domain.ErrPredicateFailed("next round lost a race")
	}

	if err := e.ballots.DeleteBySession(ctx, tx, sessionID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("clear ballots", err)
	}

	drafts := []domain.OutboxDraft{
		domain.NewChangeDraft(domain.AggregateSession, sessionID, domain.EventSessionPhaseChanged,
			sessionID, domain.TableSessions, domain.OpUpdate, updated, session),
		// A bare ballot delete envelope means "all ballots for the session".
		domain.NewChangeDraft(domain.AggregateBallot, sessionID, domain.EventBallotsCleared,
			sessionID, domain.TableBallots, domain.OpDelete, nil, nil),
	}
	for _, d := range drafts {
		if err := e.outbox.Insert(ctx, tx, d); err != nil {
			_ = tx.Rollback(ctx)
			return nil, domain.ErrInternal("insert outbox event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	e.logger.Info("next round armed", "session_id", sessionID)
	return updated, nil
}
