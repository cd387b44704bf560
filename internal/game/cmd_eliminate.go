package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

// Eliminate records a kill by the hidden role. The flag flip and the log
// record land in one transaction, so a reader can never observe the
// participant eliminated without the corresponding record existing.
func (e *Engine) Eliminate(ctx context.Context, sessionID uuid.UUID, identity string, targetID uuid.UUID, detail string) (*domain.Participant, *domain.GameEvent, error) {
	session, actor, err := e.requireParticipant(ctx, sessionID, identity)
	if err != nil {
		return nil, nil, err
	}
	if session.Phase != domain.PhaseActive {
		return nil, nil, domain.ErrForbidden("eliminations are only allowed during active play")
	}
	if !actor.IsHiddenRole {
		return nil, nil, domain.ErrForbidden("only the hidden role can eliminate")
	}
	if actor.IsEliminated {
		return nil, nil, domain.ErrForbidden("an eliminated participant cannot act")
	}

	target, err := e.participants.FindByID(ctx, e.db, targetID)
	if err != nil {
		return nil, nil, domain.ErrInternal("find target", err)
	}
	if target == nil || target.SessionID != sessionID {
		return nil, nil, domain.ErrInvalidTarget("target does not belong to this session")
	}
	if target.ID == actor.ID {
		return nil, nil, domain.ErrInvalidTarget("the hidden role cannot target itself")
	}
	if target.IsEliminated {
		return nil, nil, domain.ErrInvalidTarget("target is already eliminated")
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, nil, domain.ErrInternal("begin tx", err)
	}

	updated, err := e.participants.MarkEliminated(ctx, tx, targetID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, domain.ErrInternal("mark eliminated", err)
	}
	if updated == nil {
		// Conditional flip failed: a concurrent kill got there first.
		_ = tx.Rollback(ctx)
		return nil, nil, domain.ErrInvalidTarget("target is already eliminated")
	}

	record := &domain.GameEvent{
		ID:        uuid.New(),
		SessionID: sessionID,
		ActorID:   &actor.ID,
		TargetID:  &targetID,
		Kind:      domain.KindElimination,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.events.Insert(ctx, tx, record); err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, domain.ErrInternal("insert elimination record", err)
	}

	drafts := []domain.OutboxDraft{
		domain.NewChangeDraft(domain.AggregateParticipant, targetID, domain.EventParticipantUpdated,
			sessionID, domain.TableParticipants, domain.OpUpdate, updated, target),
		domain.NewChangeDraft(domain.AggregateGameEvent, record.ID, domain.EventRecordAppended,
			sessionID, domain.TableGameEvents, domain.OpInsert, record, nil),
	}
	for _, d := range drafts {
		if err := e.outbox.Insert(ctx, tx, d); err != nil {
			_ = tx.Rollback(ctx)
			return nil, nil, domain.ErrInternal("insert outbox event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, domain.ErrInternal("commit tx", err)
	}

	e.logger.Info("participant eliminated",
		"session_id", sessionID, "target_id", targetID, "record_id", record.ID)
	return updated, record, nil
}
