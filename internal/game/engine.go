package game

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/jackc/pgx/v5"
	"github.com/whodunit/platform/internal/repository"
)

// DB is the slice of pgxpool.Pool the engine needs: plain queries plus the
// ability to open a transaction.
type DB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Engine owns the session state machine, the role & elimination rules, and
// the ballot tally. There is no coordinator process: every client may attempt
// any transition, and correctness comes from conditional writes. Phase
// changes are compare-and-swap on the current phase, ballots are
// unique-guarded inserts, elimination flips are conditional on the prior
// flag. Losing a race is recovered by re-reading and short-circuiting to a
// no-op success wherever the desired end state was already reached.
type Engine struct {
	db           DB
	sessions     repository.SessionRepository
	participants repository.ParticipantRepository
	ballots      repository.BallotRepository
	events       repository.GameEventRepository
	outbox       repository.OutboxRepository
	logger       *slog.Logger

	// pick selects the hidden role index; injectable for deterministic tests
	// and for an external entropy source.
	pick func(ctx context.Context, n int) int
}

// NewEngine creates a game engine over the given repositories.
func NewEngine(
	db DB,
	sessions repository.SessionRepository,
	participants repository.ParticipantRepository,
	ballots repository.BallotRepository,
	events repository.GameEventRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		db:           db,
		sessions:     sessions,
		participants: participants,
		ballots:      ballots,
		events:       events,
		outbox:       outbox,
		logger:       logger,
		pick: func(_ context.Context, n int) int {
			return rand.IntN(n)
		},
	}
}

// UsePicker replaces the hidden-role picker, e.g. with an external entropy
// source. The picker must return an index in [0, n).
func (e *Engine) UsePicker(pick func(ctx context.Context, n int) int) {
	e.pick = pick
}
