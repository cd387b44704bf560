package game

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/repository"
)

// memStore is the shared state behind the in-memory repository fakes. The
// fakes honor the same conditional-write contracts as the pgx
// implementations (CAS transitions, conditional flag flips, unique-guarded
// inserts) so the engine's race recovery paths are exercisable without a
// database.
type memStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]domain.Session
	participants map[uuid.UUID]domain.Participant
	ballots      map[uuid.UUID]domain.Ballot
	events       []domain.GameEvent
	outbox       []domain.OutboxDraft
}

func newMemStore() *memStore {
	return &memStore{
		sessions:     make(map[uuid.UUID]domain.Session),
		participants: make(map[uuid.UUID]domain.Participant),
		ballots:      make(map[uuid.UUID]domain.Ballot),
	}
}

// outboxTypes returns the event types recorded so far, in order.
func (s *memStore) outboxTypes() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]domain.EventType, 0, len(s.outbox))
	for _, d := range s.outbox {
		types = append(types, d.EventType)
	}
	return types
}

// recordCount returns how many appended records of the given kind exist.
func (s *memStore) recordCount(kind domain.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type fakeDB struct{ store *memStore }

func (db *fakeDB) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (db *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return fakeTx{}, nil
}

// fakeTx satisfies pgx.Tx for the methods the engine touches. The fakes
// mutate shared state directly, so commit and rollback are no-ops; tests
// cover logic and races, not transactional isolation.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeSessionRepo struct{ store *memStore }

func (r *fakeSessionRepo) Insert(_ context.Context, _ repository.DBTX, s *domain.Session) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.sessions {
		if existing.Code == s.Code {
			return domain.ErrConflict("session code already exists")
		}
	}
	r.store.sessions[s.ID] = *s
	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *fakeSessionRepo) FindByCode(_ context.Context, _ repository.DBTX, code string) (*domain.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sessions {
		if s.Code == code {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) TransitionPhase(_ context.Context, _ repository.DBTX, id uuid.UUID, from, to domain.Phase, patch repository.SessionPatch) (*domain.Session, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok || s.Phase != from {
		return nil, nil
	}
	s.Phase = to
	s.UpdatedAt = time.Now().UTC()
	if patch.StartedAt != nil {
		s.StartedAt = patch.StartedAt
	}
	if patch.ResultMessage != nil {
		s.ResultMessage = patch.ResultMessage
	}
	if patch.ClearResult {
		s.ResultMessage = nil
	}
	r.store.sessions[id] = s
	return &s, nil
}

type fakeParticipantRepo struct{ store *memStore }

func (r *fakeParticipantRepo) Insert(_ context.Context, _ repository.DBTX, p *domain.Participant) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.participants {
		if existing.SessionID == p.SessionID && existing.Identity == p.Identity {
			return false, nil
		}
	}
	r.store.participants[p.ID] = *p
	return true, nil
}

func (r *fakeParticipantRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.participants[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeParticipantRepo) FindByIdentity(_ context.Context, _ repository.DBTX, sessionID uuid.UUID, identity string) (*domain.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.participants {
		if p.SessionID == sessionID && p.Identity == identity {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) ListBySession(_ context.Context, _ repository.DBTX, sessionID uuid.UUID) ([]domain.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Participant
	for _, p := range r.store.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *fakeParticipantRepo) SetHiddenRole(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.participants[id]
	if !ok {
		return nil, nil
	}
	p.IsHiddenRole = true
	r.store.participants[id] = p
	return &p, nil
}

func (r *fakeParticipantRepo) MarkEliminated(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.participants[id]
	if !ok || p.IsEliminated {
		return nil, nil
	}
	p.IsEliminated = true
	r.store.participants[id] = p
	return &p, nil
}

func (r *fakeParticipantRepo) MarkVotedOut(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.participants[id]
	if !ok {
		return nil, nil
	}
	p.IsVotedOut = true
	r.store.participants[id] = p
	return &p, nil
}

type fakeBallotRepo struct{ store *memStore }

func (r *fakeBallotRepo) Insert(_ context.Context, _ repository.DBTX, b *domain.Ballot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.ballots {
		if existing.SessionID == b.SessionID && existing.VoterID == b.VoterID {
			return domain.ErrAlreadyVoted(b.VoterID.String())
		}
	}
	r.store.ballots[b.ID] = *b
	return nil
}

func (r *fakeBallotRepo) ListBySession(_ context.Context, _ repository.DBTX, sessionID uuid.UUID) ([]domain.Ballot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Ballot
	for _, b := range r.store.ballots {
		if b.SessionID == sessionID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeBallotRepo) DeleteBySession(_ context.Context, _ repository.DBTX, sessionID uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, b := range r.store.ballots {
		if b.SessionID == sessionID {
			delete(r.store.ballots, id)
		}
	}
	return nil
}

type fakeEventRepo struct{ store *memStore }

func (r *fakeEventRepo) Insert(_ context.Context, _ repository.DBTX, e *domain.GameEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.events = append(r.store.events, *e)
	return nil
}

func (r *fakeEventRepo) LatestByKind(_ context.Context, _ repository.DBTX, sessionID uuid.UUID, kind domain.EventKind) (*domain.GameEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var latest *domain.GameEvent
	for i := range r.store.events {
		e := r.store.events[i]
		if e.SessionID != sessionID || e.Kind != kind {
			continue
		}
		if latest == nil || !e.CreatedAt.Before(latest.CreatedAt) {
			latest = &e
		}
	}
	return latest, nil
}

func (r *fakeEventRepo) ListBySession(_ context.Context, _ repository.DBTX, sessionID uuid.UUID) ([]domain.GameEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.GameEvent
	for _, e := range r.store.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeOutboxRepo struct{ store *memStore }

func (r *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.outbox = append(r.store.outbox, draft)
	return nil
}

func (r *fakeOutboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]repository.OutboxRow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []repository.OutboxRow
	for i, d := range r.store.outbox {
		if len(out) >= limit {
			break
		}
		out = append(out, repository.OutboxRow{SeqID: int64(i + 1), Draft: d})
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublished(context.Context, repository.DBTX, []int64) error {
	return nil
}

// newTestEngine builds an engine over fresh fakes with a deterministic
// picker: the first roster entry always receives the hidden role.
func newTestEngine() (*Engine, *memStore) {
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := NewEngine(
		&fakeDB{store: store},
		&fakeSessionRepo{store: store},
		&fakeParticipantRepo{store: store},
		&fakeBallotRepo{store: store},
		&fakeEventRepo{store: store},
		&fakeOutboxRepo{store: store},
		logger,
	)
	eng.UsePicker(func(context.Context, int) int { return 0 })
	return eng, store
}
