package sync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whodunit/platform/internal/domain"
)

// chanSource feeds events from a channel; closing the channel ends the
// source.
type chanSource struct {
	events chan domain.ChangeEvent
}

func (s *chanSource) Next(ctx context.Context) (domain.ChangeEvent, error) {
	select {
	case <-ctx.Done():
		return domain.ChangeEvent{}, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			return domain.ChangeEvent{}, io.EOF
		}
		return ev, nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcher_AttachAndFold(t *testing.T) {
	sessionID := uuid.New()
	victim := domain.Participant{ID: uuid.New(), SessionID: sessionID, DisplayName: "Victim", CreatedAt: time.Now()}
	record := domain.GameEvent{ID: uuid.New(), SessionID: sessionID, Kind: domain.KindElimination, TargetID: &victim.ID, CreatedAt: time.Now()}

	snapshot := func(context.Context) (*domain.Snapshot, error) {
		return &domain.Snapshot{
			Session:      domain.Session{ID: sessionID, Phase: domain.PhaseActive},
			Participants: []domain.Participant{victim},
		}, nil
	}
	latestElim := func(context.Context) (*domain.GameEvent, error) {
		return &record, nil
	}

	var observed []*domain.GameEvent
	done := make(chan struct{})
	w := NewWatcher(snapshot, latestElim, func(rec *domain.GameEvent) {
		observed = append(observed, rec)
		close(done)
	}, discardLogger())

	require.NoError(t, w.Attach(context.Background()))
	assert.Equal(t, domain.PhaseActive, w.View().Phase)

	src := &chanSource{events: make(chan domain.ChangeEvent, 1)}
	dead := victim
	dead.IsEliminated = true
	raw, err := json.Marshal(&dead)
	require.NoError(t, err)
	src.events <- domain.ChangeEvent{Table: domain.TableParticipants, Op: domain.OpUpdate, SessionID: sessionID, New: raw}
	close(src.events)

	w.Run(context.Background(), src)

	select {
	case <-done:
	default:
		t.Fatal("elimination handler never fired")
	}
	require.Len(t, observed, 1)
	assert.Equal(t, record.ID, observed[0].ID)

	view := w.View()
	require.Len(t, view.Participants, 1)
	assert.True(t, view.Participants[0].IsEliminated)
}

func TestWatcher_ViewCopiesBallotCounts(t *testing.T) {
	sessionID := uuid.New()
	target := uuid.New()
	snapshot := func(context.Context) (*domain.Snapshot, error) {
		return &domain.Snapshot{
			Session: domain.Session{ID: sessionID, Phase: domain.PhaseVoting},
			Ballots: []domain.Ballot{
				{ID: uuid.New(), SessionID: sessionID, TargetID: target},
				{ID: uuid.New(), SessionID: sessionID, TargetID: target},
			},
		}, nil
	}
	w := NewWatcher(snapshot, nil, nil, discardLogger())
	require.NoError(t, w.Attach(context.Background()))

	view := w.View()
	assert.Equal(t, domain.PhaseVoting, view.Phase)
	assert.Equal(t, 2, view.BallotCounts[target.String()])
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	snapshot := func(context.Context) (*domain.Snapshot, error) {
		return &domain.Snapshot{Session: domain.Session{ID: uuid.New()}}, nil
	}
	w := NewWatcher(snapshot, nil, nil, discardLogger())
	require.NoError(t, w.Attach(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, &chanSource{events: make(chan domain.ChangeEvent)})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// fakeReader replays canned kafka messages.
type fakeReader struct {
	msgs []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func TestFeedSource_FiltersOtherSessions(t *testing.T) {
	mine := uuid.New()
	other := uuid.New()

	msg := func(sessionID uuid.UUID) kafka.Message {
		ev := domain.ChangeEvent{Table: domain.TableSessions, Op: domain.OpUpdate, SessionID: sessionID}
		raw, _ := json.Marshal(ev)
		return kafka.Message{Key: []byte(sessionID.String()), Value: raw}
	}

	src := NewFeedSource(&fakeReader{msgs: []kafka.Message{msg(other), msg(mine), msg(other)}}, mine)

	ev, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mine, ev.SessionID)

	// Only the other session's message remains; the source drains to EOF.
	_, err = src.Next(context.Background())
	assert.Error(t, err)
}

func TestPollingSource_SynthesizesOnInterval(t *testing.T) {
	sessionID := uuid.New()
	snapshot := func(context.Context) (*domain.Snapshot, error) {
		return &domain.Snapshot{
			Session:      domain.Session{ID: sessionID, Phase: domain.PhaseActive},
			Participants: []domain.Participant{{ID: uuid.New(), SessionID: sessionID}},
		}, nil
	}
	src := NewPollingSource(snapshot, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// One poll yields the session row plus one participant row.
	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TableSessions, first.Table)

	second, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TableParticipants, second.Table)
}

func TestPollingSource_ClearsBallotsAfterRoundReset(t *testing.T) {
	sessionID := uuid.New()
	target := uuid.New()

	proj := NewProjection()
	proj.LoadSnapshot(domain.Snapshot{
		Session: domain.Session{ID: sessionID, Phase: domain.PhaseResolved},
		Ballots: []domain.Ballot{{ID: uuid.New(), SessionID: sessionID, TargetID: target}},
	})
	require.Len(t, proj.BallotCounts(), 1)

	// A new round began while the feed was away: the fresh snapshot holds no
	// ballots, so the poll batch must carry the round clear.
	snapshot := func(context.Context) (*domain.Snapshot, error) {
		return &domain.Snapshot{Session: domain.Session{ID: sessionID, Phase: domain.PhaseActive}}, nil
	}
	src := NewPollingSource(snapshot, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// One poll yields the session row plus the bare ballot clear envelope.
	for i := 0; i < 2; i++ {
		ev, err := src.Next(ctx)
		require.NoError(t, err)
		_, err = proj.Apply(ev)
		require.NoError(t, err)
	}

	assert.Equal(t, domain.PhaseActive, proj.Session.Phase)
	assert.Empty(t, proj.BallotCounts())
}
