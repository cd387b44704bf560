package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/repository"
)

// Start moves a waiting session into active play and assigns the hidden role
// to one participant chosen uniformly at random. Only the host may start.
//
// The phase compare-and-swap is the guard for the whole operation: role
// assignment happens in the same transaction, after the CAS, so two
// concurrent starts cannot both assign a role. The loser observes the
// predicate failure, re-reads, and returns the already-started session as a
// no-op success.
func (e *Engine) Start(ctx context.Context, sessionID uuid.UUID, identity string) (*domain.Session, error) {
	session, actor, err := e.requireParticipant(ctx, sessionID, identity)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost {
		return nil, domain.ErrForbidden("only the host can start the game")
	}
	if session.Phase != domain.PhaseWaiting {
		// Already started by someone else; the desired end state is reached.
		return session, nil
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}

	roster, err := e.participants.ListBySession(ctx, tx, sessionID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("list participants", err)
	}
	if len(roster) == 0 {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrNoParticipants(sessionID.String())
	}

	now := time.Now().UTC()
	updated, err := e.sessions.TransitionPhase(ctx, tx, sessionID,
		domain.PhaseWaiting, domain.PhaseActive, repository.SessionPatch{StartedAt: &now})
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("transition phase", err)
	}
	if updated == nil {
		_ = tx.Rollback(ctx)
		return e.resolveLostStart(ctx, sessionID)
	}

	chosen := roster[e.pick(ctx, len(roster))]
	flagged, err := e.participants.SetHiddenRole(ctx, tx, chosen.ID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("assign hidden role", err)
	}

	drafts := []domain.OutboxDraft{
		domain.NewChangeDraft(domain.AggregateSession, sessionID, domain.EventSessionPhaseChanged,
			sessionID, domain.TableSessions, domain.OpUpdate, updated, session),
		domain.NewChangeDraft(domain.AggregateParticipant, chosen.ID, domain.EventParticipantUpdated,
			sessionID, domain.TableParticipants, domain.OpUpdate, flagged, chosen),
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

	e.logger.Info("session started", "session_id", sessionID, "participants", len(roster))
	return updated, nil
}

// resolveLostStart re-reads after a lost start race. The winner already moved
// the session past waiting, so the call degrades to a no-op success.
func (e *Engine) resolveLostStart(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	session, err := e.sessions.FindByID(ctx, e.db, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("find session", err)
	}
	if session == nil {
		return nil, domain.ErrNotFound("session", sessionID.String())
	}
	if session.Phase == domain.PhaseWaiting {
		return nil, domain.ErrPredicateFailed("start lost a race but session is still waiting")
	}
	return session, nil
}

// requireParticipant loads the session and the caller's participant row,
// mapping misses to the caller-facing error taxonomy.
func (e *Engine) requireParticipant(ctx context.Context, sessionID uuid.UUID, identity string) (*domain.Session, *domain.Participant, error) {
	session, err := e.sessions.FindByID(ctx, e.db, sessionID)
	if err != nil {
		return nil, nil, domain.ErrInternal("find session", err)
	}
	if session == nil {
		return nil, nil, domain.ErrNotFound("session", sessionID.String())
	}
	actor, err := e.participants.FindByIdentity(ctx, e.db, sessionID, identity)
	if err != nil {
		return nil, nil, domain.ErrInternal("find participant", err)
	}
	if actor == nil {
		return nil, nil, domain.ErrForbidden("caller is not a participant of this session")
	}
	return session, actor, nil
}
