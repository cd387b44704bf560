package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

// CastBallot stores one participant's accusation. The duplicate-vote check is
// the unique (session, voter) constraint itself rather than a read-then-write,
// so concurrent duplicate submissions resolve to exactly one stored ballot and
// an ALREADY_VOTED for the rest.
func (e *Engine) CastBallot(ctx context.Context, sessionID uuid.UUID, identity string, targetID uuid.UUID) (*domain.Ballot, error) {
	session, voter, err := e.requireParticipant(ctx, sessionID, identity)
	if err != nil {
		return nil, err
	}
	if session.Phase != domain.PhaseVoting {
		return nil, domain.ErrForbidden("ballots can only be cast during a voting round")
	}

	target, err := e.participants.FindByID(ctx, e.db, targetID)
	if err != nil {
		return nil, domain.ErrInternal("find target", err)
	}
	if target == nil || target.SessionID != sessionID {
		return nil, domain.ErrInvalidTarget("target does not belong to this session")
	}
	if target.IsEliminated {
		return nil, domain.ErrInvalidTarget("target is already eliminated")
	}
	if target.IsVotedOut {
		return nil, domain.ErrInvalidTarget("target was already voted out")
	}

	ballot := &domain.Ballot{
		ID:        uuid.New(),
		SessionID: sessionID,
		VoterID:   voter.ID,
		TargetID:  targetID,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}

	if err := e.ballots.Insert(ctx, tx, ballot); err != nil {
		_ = tx.Rollback(ctx)
		var appErr *domain.AppError
		if asAppError(err, &appErr) {
			return nil, appErr
		}
		return nil, domain.ErrInternal("insert ballot", err)
	}

	draft := domain.NewChangeDraft(domain.AggregateBallot, ballot.ID, domain.EventBallotCast,
		sessionID, domain.TableBallots, domain.OpInsert, ballot, nil)
	if err := e.outbox.Insert(ctx, tx, draft); err != nil {
		_ = tx.Rollback(ctx)
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	e.logger.Info("ballot cast", "session_id", sessionID, "voter_id", voter.ID)
	return ballot, nil
}
