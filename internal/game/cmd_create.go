package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/policy"
)

// CreateSession opens a new room in the waiting phase and enrolls the caller
// as host. The session code is drawn at random; a collision with an existing
// code aborts the transaction and redraws, up to domain.MaxCodeAttempts.
func (e *Engine) CreateSession(ctx context.Context, identity, displayName string) (*domain.Session, *domain.Participant, error) {
	if identity == "" {
		return nil, nil, domain.ErrValidation("identity is required")
	}
	displayName, err := policy.ValidateDisplayName(displayName)
	if err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < domain.MaxCodeAttempts; attempt++ {
		code, err := domain.NewSessionCode(domain.DefaultCodeLength)
		if err != nil {
			return nil, nil, domain.ErrInternal("generate session code", err)
		}

		now := time.Now().UTC()
		session := &domain.Session{
			ID:        uuid.New(),
			Code:      code,
			HostID:    identity,
			Phase:     domain.PhaseWaiting,
			CreatedAt: now,
			UpdatedAt: now,
		}
		host := &domain.Participant{
			ID:          uuid.New(),
			SessionID:   session.ID,
			Identity:    identity,
			DisplayName: displayName,
			IsHost:      true,
			CreatedAt:   now,
		}

		tx, err := e.db.Begin(ctx)
		if err != nil {
			return nil, nil, domain.ErrInternal("begin tx", err)
		}

		if err := e.sessions.Insert(ctx, tx, session); err != nil {
			_ = tx.Rollback(ctx)
			var appErr *domain.AppError
			if errors.As(err, &appErr) && appErr.Code == "CONFLICT" {
				e.logger.Warn("session code collision, redrawing", "code", code, "attempt", attempt+1)
				continue
			}
			return nil, nil, domain.ErrInternal("insert session", err)
		}

		if _, err := e.participants.Insert(ctx, tx, host); err != nil {
			_ = tx.Rollback(ctx)
			return nil, nil, domain.ErrInternal("insert host participant", err)
		}

		drafts := []domain.OutboxDraft{
			domain.NewChangeDraft(domain.AggregateSession, session.ID, domain.EventSessionCreated,
				session.ID, domain.TableSessions, domain.OpInsert, session, nil),
			domain.NewChangeDraft(domain.AggregateParticipant, host.ID, domain.EventParticipantJoined,
				session.ID, domain.TableParticipants, domain.OpInsert, host, nil),
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

		e.logger.Info("session created", "session_id", session.ID, "code", session.Code)
		return session, host, nil
	}

	e.logger.Error(fmt.Sprintf("session code space exhausted after %d attempts", domain.MaxCodeAttempts))
	return nil, nil, domain.ErrCodeExhausted()
}
