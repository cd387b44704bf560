package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/whodunit/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// SessionPatch carries the optional fields set alongside a phase transition.
type SessionPatch struct {
	StartedAt     *time.Time
	ResultMessage *string
	ClearResult   bool
}

// SessionRepository provides access to sessions. The phase column is only
// mutated through TransitionPhase, a compare-and-swap keyed on the current
// phase.
type SessionRepository interface {
	// Insert creates a session. A code collision surfaces as
	// domain.ErrConflict so the caller can redraw and retry.
	Insert(ctx context.Context, db DBTX, s *domain.Session) error

	// FindByID returns a session by ID, or nil when absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Session, error)

	// FindByCode returns a session by its shareable code, or nil when absent.
	FindByCode(ctx context.Context, db DBTX, code string) (*domain.Session, error)

	// TransitionPhase performs the conditional update
	// `phase = to WHERE id AND phase = from`, applying patch in the same
	// statement. Returns (nil, nil) when the predicate failed, i.e. someone
	// else already moved the session on.
	TransitionPhase(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.Phase, patch SessionPatch) (*domain.Session, error)
}

// ParticipantRepository provides access to participants. Rows are contended
// per-participant; flag flips are conditional where an invariant depends on
// the prior value.
type ParticipantRepository interface {
	// Insert adds a participant. Returns false without error when a row for
	// (session, identity) already exists, making join idempotent.
	Insert(ctx context.Context, db DBTX, p *domain.Participant) (bool, error)

	// FindByID returns a participant by ID, or nil when absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error)

	// FindByIdentity returns the participant for (session, identity), or nil.
	FindByIdentity(ctx context.Context, db DBTX, sessionID uuid.UUID, identity string) (*domain.Participant, error)

	// ListBySession returns all participants of a session in join order.
	ListBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) ([]domain.Participant, error)

	// SetHiddenRole flags the participant as the hidden role.
	SetHiddenRole(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error)

	// MarkEliminated flips is_eliminated false -> true. Returns (nil, nil)
	// when the participant was already eliminated, so concurrent kills of the
	// same target cannot both succeed.
	MarkEliminated(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error)

	// MarkVotedOut flags the participant as voted out.
	MarkVotedOut(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Participant, error)
}

// BallotRepository provides access to ballots.
type BallotRepository interface {
	// Insert stores a ballot. A duplicate (session, voter) surfaces as
	// domain.ErrAlreadyVoted; the uniqueness check and the insert are one
	// atomic statement.
	Insert(ctx context.Context, db DBTX, b *domain.Ballot) error

	// ListBySession returns all ballots for a session.
	ListBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) ([]domain.Ballot, error)

	// DeleteBySession clears a session's ballots between rounds.
	DeleteBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) error
}

// GameEventRepository provides access to the append-only game_events log.
type GameEventRepository interface {
	// Insert appends a record.
	Insert(ctx context.Context, db DBTX, e *domain.GameEvent) error

	// LatestByKind returns the most recent record of the given kind for a
	// session, or nil when none exists.
	LatestByKind(ctx context.Context, db DBTX, sessionID uuid.UUID, kind domain.EventKind) (*domain.GameEvent, error)

	// ListBySession returns all records for a session, oldest first.
	ListBySession(ctx context.Context, db DBTX, sessionID uuid.UUID) ([]domain.GameEvent, error)
}

// OutboxRow is an outbox draft joined with its sequence ID for relaying.
type OutboxRow struct {
	SeqID int64
	Draft domain.OutboxDraft
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event within the caller's transaction.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in sequence order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
