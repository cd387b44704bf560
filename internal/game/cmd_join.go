package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/policy"
)

// Join enrolls an identity into the session with the given code. Join is
// idempotent: when a participant for (session, identity) already exists it is
// returned unchanged, whether it existed before the call or was inserted by a
// concurrent join that won the ON CONFLICT race.
func (e *Engine) Join(ctx context.Context, code, identity, displayName string) (*domain.Session, *domain.Participant, error) {
	if identity == "" {
		return nil, nil, domain.ErrValidation("identity is required")
	}
	displayName, err := policy.ValidateDisplayName(displayName)
	if err != nil {
		return nil, nil, err
	}

	session, err := e.sessions.FindByCode(ctx, e.db, code)
	if err != nil {
		return nil, nil, domain.ErrInternal("find session", err)
	}
	if session == nil {
		return nil, nil, domain.ErrNotFound("session", code)
	}

	existing, err := e.participants.FindByIdentity(ctx, e.db, session.ID, identity)
	if err != nil {
		return nil, nil, domain.ErrInternal("find participant", err)
	}
	if existing != nil {
		return session, existing, nil
	}

	roster, err := e.participants.ListBySession(ctx, e.db, session.ID)
	if err != nil {
		return nil, nil, domain.ErrInternal("list participants", err)
	}
	if err := policy.CheckCapacity(len(roster)); err != nil {
		return nil, nil, err
	}

	p := &domain.Participant{
		ID:          uuid.New(),
		SessionID:   session.ID,
		Identity:    identity,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, nil, domain.ErrInternal("begin tx", err)
	}

	inserted, err := e.participants.Insert(ctx, tx, p)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, domain.ErrInternal("insert participant", err)
	}
	if inserted {
		draft := domain.NewChangeDraft(domain.AggregateParticipant, p.ID, domain.EventParticipantJoined,
			session.ID, domain.TableParticipants, domain.OpInsert, p, nil)
		if err := e.outbox.Insert(ctx, tx, draft); err != nil {
			_ = tx.Rollback(ctx)
			return nil, nil, domain.ErrInternal("insert outbox event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, domain.ErrInternal("commit tx", err)
	}

	if !inserted {
		// Lost the insert race; the winner's row is the participant.
		winner, err := e.participants.FindByIdentity(ctx, e.db, session.ID, identity)
		if err != nil {
			return nil, nil, domain.ErrInternal("find participant", err)
		}
		if winner == nil {
			return nil, nil, domain.ErrInternal("participant vanished after join race", nil)
		}
		return session, winner, nil
	}

	e.logger.Info("participant joined", "session_id", session.ID, "participant_id", p.ID)
	return session, p, nil
}
