package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/repository"
)

// TallyResult is what every caller of Tally observes, whether it computed the
// result or arrived after the round was already resolved.
type TallyResult struct {
	Session  *domain.Session   `json:"session"`
	Message  string            `json:"message"`
	VotedOut *uuid.UUID        `json:"voted_out,omitempty"`
	Counts   map[uuid.UUID]int `json:"counts,omitempty"`
	// AlreadyResolved reports that another tally won; the returned message is
	// the one that tally computed.
	AlreadyResolved bool `json:"already_resolved"`
}

// Tally closes the voting round: it counts ballots, marks the single winner
// (if any) voted out, appends the ballot_result record, and resolves the
// session, all behind a compare-and-swap on phase voting -> resolved.
//
// The CAS makes Tally safe to invoke redundantly: a retrying client or a
// racing second host call observes the predicate failure, re-reads, and
// returns the already-computed result without recomputing or double-
// appending. Host only.
func (e *Engine) Tally(ctx context.Context, sessionID uuid.UUID, identity string) (*TallyResult, error) {
	session, actor, err := e.requireParticipant(ctx, sessionID, identity)
	if err != nil {
		return nil, err
	}
	if !actor.IsHost {
		return nil, domain.ErrForbidden("only the host can tally the vote")
	}
	if session.Phase == domain.PhaseResolved {
		return e.resolvedResult(ctx, session)
	}
	if session.Phase != domain.PhaseVoting {
		return nil, domain.ErrForbidden("tally requires an open voting round")
	}

	ballots, err := e.ballots.ListBySession(ctx, e.db, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("list ballots", err)
	}
	roster, err := e.participants.ListBySession(ctx, e.db, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("list participants", err)
	}

	outcome := ComputeTally(ballots, roster)

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}

	updated, err := e.sessions.TransitionPhase(ctx, tx, sessionID,
		domain.PhaseVoting, domain.PhaseResolved, repository.SessionPatch{ResultMessage: &outcome.Message})
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("transition phase", err)
	}
	if updated == nil {
		// Lost the resolve race; surface the winner's result instead.
		_ = tx.Rollback(ctx)
		current, err := e.sessions.FindByID(ctx, e.db, sessionID)
		if err != nil {
			return nil, domain.ErrInternal("find session", err)
		}
		if current == nil {
			return nil, domain.ErrNotFound("session", sessionID.String())
		}
		if current.Phase == domain.PhaseResolved {
			return e.resolvedResult(ctx, current)
		}
		return nil, domain.ErrPredicateFailed("tally lost a race")
	}

	result := &TallyResult{Session: updated, Message: outcome.Message, Counts: outcome.Counts}
	drafts := []domain.OutboxDraft{
		domain.NewChangeDraft(domain.AggregateSession, sessionID, domain.EventSessionPhaseChanged,
			sessionID, domain.TableSessions, domain.OpUpdate, updated, session),
	}

	var targetID *uuid.UUID
	if outcome.Winner != nil {
		flagged, err := e.participants.MarkVotedOut(ctx, tx, outcome.Winner.ID)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, domain.ErrInternal("mark voted out", err)
		}
		targetID = &outcome.Winner.ID
		result.VotedOut = targetID
		drafts = append(drafts, domain.NewChangeDraft(domain.AggregateParticipant, outcome.Winner.ID,
			domain.EventParticipantUpdated, sessionID, domain.TableParticipants, domain.OpUpdate,
			flagged, outcome.Winner))
	}

	record := &domain.GameEvent{
		ID:        uuid.New(),
		SessionID: sessionID,
		TargetID:  targetID,
		Kind:      domain.KindBallotResult,
		Detail:    outcome.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.events.Insert(ctx, tx, record); err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("insert ballot result record", err)
	}
	drafts = append(drafts, domain.NewChangeDraft(domain.AggregateGameEvent, record.ID,
		domain.EventRecordAppended, sessionID, domain.TableGameEvents, domain.OpInsert, record, nil))

	for _, d := range drafts {
		if err := e.outbox.Insert(ctx, tx, d); err != nil {
			_ = tx.Rollback(ctx)
			return nil, domain.ErrInternal("insert outbox event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	e.logger.Info("vote tallied", "session_id", sessionID, "message", outcome.Message)
	return result, nil
}

// resolvedResult rebuilds the tally result for a session whose round is
// already resolved, from the stored result message and the latest
// ballot_result record.
func (e *Engine) resolvedResult(ctx context.Context, session *domain.Session) (*TallyResult, error) {
	result := &TallyResult{Session: session, AlreadyResolved: true}
	if session.ResultMessage != nil {
		result.Message = *session.ResultMessage
	}
	record, err := e.events.LatestByKind(ctx, e.db, session.ID, domain.KindBallotResult)
	if err != nil {
		return nil, domain.ErrInternal("find ballot result", err)
	}
	if record != nil {
		result.VotedOut = record.TargetID
		if result.Message == "" {
			result.Message = record.Detail
		}
	}
	return result, nil
}
