package game

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/policy"
)

const (
	hostIdent  = "ident-host"
	guestIdent = "ident-guest"
	thirdIdent = "ident-third"
)

func assertAppCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*domain.AppError)
	require.True(t, ok, "expected *domain.AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

// threePlayerSession creates a session with a host and two guests, still in
// the waiting phase.
func threePlayerSession(t *testing.T, eng *Engine) (*domain.Session, map[string]*domain.Participant) {
	t.Helper()
	ctx := context.Background()

	session, host, err := eng.CreateSession(ctx, hostIdent, "Host")
	require.NoError(t, err)

	_, guest, err := eng.Join(ctx, session.Code, guestIdent, "Guest")
	require.NoError(t, err)
	_, third, err := eng.Join(ctx, session.Code, thirdIdent, "Third")
	require.NoError(t, err)

	return session, map[string]*domain.Participant{
		hostIdent:  host,
		guestIdent: guest,
		thirdIdent: third,
	}
}

// startedSession is threePlayerSession advanced to active play. The picker in
// newTestEngine always chooses index 0, so the host holds the hidden role.
func startedSession(t *testing.T, eng *Engine) (*domain.Session, map[string]*domain.Participant) {
	t.Helper()
	session, roster := threePlayerSession(t, eng)
	updated, err := eng.Start(context.Background(), session.ID, hostIdent)
	require.NoError(t, err)
	return updated, roster
}

func TestCreateSession(t *testing.T) {
	eng, store := newTestEngine()
	ctx := context.Background()

	session, host, err := eng.CreateSession(ctx, hostIdent, "  Avery  ")
	require.NoError(t, err)

	assert.Len(t, session.Code, domain.DefaultCodeLength)
	assert.Equal(t, domain.PhaseWaiting, session.Phase)
	assert.Equal(t, hostIdent, session.HostID)
	assert.True(t, host.IsHost)
	assert.Equal(t, "Avery", host.DisplayName)
	assert.Equal(t, session.ID, host.SessionID)

	assert.Equal(t, []domain.EventType{domain.EventSessionCreated, domain.EventParticipantJoined},
		store.outboxTypes())
}

func TestCreateSession_RejectsBadName(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	_, _, err := eng.CreateSession(ctx, hostIdent, "   ")
	assertAppCode(t, err, "VALIDATION_ERROR")

	_, _, err = eng.CreateSession(ctx, "", "Avery")
	assertAppCode(t, err, "VALIDATION_ERROR")
}

func TestJoin(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	session, _, err := eng.CreateSession(ctx, hostIdent, "Host")
	require.NoError(t, err)

	joined, guest, err := eng.Join(ctx, session.Code, guestIdent, "Guest")
	require.NoError(t, err)
	assert.Equal(t, session.ID, joined.ID)
	assert.False(t, guest.IsHost)
	assert.Equal(t, "Guest", guest.DisplayName)
}

func TestJoin_Idempotent(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	session, _, err := eng.CreateSession(ctx, hostIdent, "Host")
	require.NoError(t, err)

	_, first, err := eng.Join(ctx, session.Code, guestIdent, "Guest")
	require.NoError(t, err)

	// Rejoining with a different display name returns the existing row.
	_, second, err := eng.Join(ctx, session.Code, guestIdent, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Guest", second.DisplayName)
}

func TestJoin_UnknownCode(t *testing.T) {
	eng, _ := newTestEngine()
	_, _, err := eng.Join(context.Background(), "ZZZZZ", guestIdent, "Guest")
	assertAppCode(t, err, "NOT_FOUND")
}

func TestJoin_SessionFull(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	session, _, err := eng.CreateSession(ctx, hostIdent, "Host")
	require.NoError(t, err)

	for i := 1; i < policy.MaxParticipants; i++ {
		_, _, err := eng.Join(ctx, session.Code, fmt.Sprintf("ident-%d", i), fmt.Sprintf("Player %d", i))
		require.NoError(t, err)
	}

	_, _, err = eng.Join(ctx, session.Code, "ident-overflow", "One Too Many")
	assertAppCode(t, err, "CONFLICT")

	// A participant already in the full session can still rejoin.
	_, _, err = eng.Join(ctx, session.Code, "ident-1", "Player 1")
	assert.NoError(t, err)
}

func TestStart(t *testing.T) {
	eng, store := newTestEngine()
	ctx := context.Background()

	session, roster := threePlayerSession(t, eng)

	updated, err := eng.Start(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, updated.Phase)
	require.NotNil(t, updated.StartedAt)

	// Picker index 0 lands on the earliest participant, the host.
	hidden, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	var flagged []uuid.UUID
	for _, p := range hidden.Participants {
		if p.IsHiddenRole {
			flagged = append(flagged, p.ID)
		}
	}
	require.Len(t, flagged, 1)
	assert.Equal(t, roster[hostIdent].ID, flagged[0])

	types := store.outboxTypes()
	assert.Contains(t, types, domain.EventSessionPhaseChanged)
	assert.Contains(t, types, domain.EventParticipantUpdated)
}

func TestStart_HostOnly(t *testing.T) {
	eng, _ := newTestEngine()
	session, _ := threePlayerSession(t, eng)

	_, err := eng.Start(context.Background(), session.ID, guestIdent)
	assertAppCode(t, err, "FORBIDDEN")
}

func TestStart_NonParticipant(t *testing.T) {
	eng, _ := newTestEngine()
	session, _ := threePlayerSession(t, eng)

	_, err := eng.Start(context.Background(), session.ID, "ident-stranger")
	assertAppCode(t, err, "FORBIDDEN")
}

func TestStart_AlreadyActiveIsNoOp(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, _ := startedSession(t, eng)

	again, err := eng.Start(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, again.Phase)

	// Still exactly one hidden role.
	snap, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	count := 0
	for _, p := range snap.Participants {
		if p.IsHiddenRole {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRequestVote(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, _ := startedSession(t, eng)

	updated, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseVoting, updated.Phase)

	// A second request observes voting already open.
	again, err := eng.RequestVote(ctx, session.ID, thirdIdent)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseVoting, again.Phase)
}

func TestRequestVote_BeforeStart(t *testing.T) {
	eng, _ := newTestEngine()
	session, _ := threePlayerSession(t, eng)

	_, err := eng.RequestVote(context.Background(), session.ID, guestIdent)
	assertAppCode(t, err, "FORBIDDEN")
}

func TestEliminate(t *testing.T) {
	eng, store := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	target, record, err := eng.Eliminate(ctx, session.ID, hostIdent, roster[guestIdent].ID, "found in the library")
	require.NoError(t, err)
	assert.True(t, target.IsEliminated)
	assert.Equal(t, domain.KindElimination, record.Kind)
	assert.Equal(t, "found in the library", record.Detail)
	require.NotNil(t, record.ActorID)
	assert.Equal(t, roster[hostIdent].ID, *record.ActorID)

	latest, err := eng.LatestElimination(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, record.ID, latest.ID)

	types := store.outboxTypes()
	assert.Contains(t, types, domain.EventRecordAppended)
}

func TestEliminate_Rules(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	// Only the hidden role can act.
	_, _, err := eng.Eliminate(ctx, session.ID, guestIdent, roster[thirdIdent].ID, "")
	assertAppCode(t, err, "FORBIDDEN")

	// No self-targeting.
	_, _, err = eng.Eliminate(ctx, session.ID, hostIdent, roster[hostIdent].ID, "")
	assertAppCode(t, err, "INVALID_TARGET")

	// Target must belong to the session.
	_, _, err = eng.Eliminate(ctx, session.ID, hostIdent, uuid.New(), "")
	assertAppCode(t, err, "INVALID_TARGET")

	// A second kill on the same target fails.
	_, _, err = eng.Eliminate(ctx, session.ID, hostIdent, roster[guestIdent].ID, "")
	require.NoError(t, err)
	_, _, err = eng.Eliminate(ctx, session.ID, hostIdent, roster[guestIdent].ID, "")
	assertAppCode(t, err, "INVALID_TARGET")
}

func TestEliminate_OnlyDuringActivePlay(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	_, _, err = eng.Eliminate(ctx, session.ID, hostIdent, roster[guestIdent].ID, "")
	assertAppCode(t, err, "FORBIDDEN")
}

func TestCastBallot(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	ballot, err := eng.CastBallot(ctx, session.ID, guestIdent, roster[hostIdent].ID)
	require.NoError(t, err)
	assert.Equal(t, roster[guestIdent].ID, ballot.VoterID)
	assert.Equal(t, roster[hostIdent].ID, ballot.TargetID)
}

func TestCastBallot_OncePerRound(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[hostIdent].ID)
	require.NoError(t, err)

	// Changing the target does not help; the round already holds this voter's
	// ballot.
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[thirdIdent].ID)
	assertAppCode(t, err, "ALREADY_VOTED")
}

func TestCastBallot_ConcurrentDuplicatesStoreOne(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	// Racing duplicate submissions resolve on the unique (session, voter)
	// guard: exactly one insert lands.
	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.CastBallot(ctx, session.ID, guestIdent, roster[hostIdent].ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assertAppCode(t, err, "ALREADY_VOTED")
	}
	assert.Equal(t, 1, successes)

	snap, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, snap.Ballots, 1)
	assert.Equal(t, roster[guestIdent].ID, snap.Ballots[0].VoterID)
}

func TestCastBallot_PhaseAndTargetRules(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	// Not in a voting round yet.
	_, err := eng.CastBallot(ctx, session.ID, guestIdent, roster[hostIdent].ID)
	assertAppCode(t, err, "FORBIDDEN")

	_, _, err = eng.Eliminate(ctx, session.ID, hostIdent, roster[thirdIdent].ID, "")
	require.NoError(t, err)
	_, err = eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	// Dead participants cannot be accused.
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[thirdIdent].ID)
	assertAppCode(t, err, "INVALID_TARGET")

	// Nor can strangers.
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, uuid.New())
	assertAppCode(t, err, "INVALID_TARGET")
}

func TestTally_SingleWinnerInnocent(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	// Both living guests accuse Third, an innocent.
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[thirdIdent].ID)
	require.NoError(t, err)
	_, err = eng.CastBallot(ctx, session.ID, hostIdent, roster[thirdIdent].ID)
	require.NoError(t, err)

	result, err := eng.Tally(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.False(t, result.AlreadyResolved)
	assert.Equal(t, domain.PhaseResolved, result.Session.Phase)
	assert.Equal(t, MissedMessage("Third"), result.Message)
	require.NotNil(t, result.VotedOut)
	assert.Equal(t, roster[thirdIdent].ID, *result.VotedOut)
	assert.Equal(t, 2, result.Counts[roster[thirdIdent].ID])

	snap, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	for _, p := range snap.Participants {
		if p.ID == roster[thirdIdent].ID {
			assert.True(t, p.IsVotedOut)
		}
	}
	require.NotNil(t, snap.LatestBallotResult)
	assert.Equal(t, MissedMessage("Third"), snap.LatestBallotResult.Detail)
}

func TestTally_CatchesHiddenRole(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[hostIdent].ID)
	require.NoError(t, err)
	_, err = eng.CastBallot(ctx, session.ID, thirdIdent, roster[hostIdent].ID)
	require.NoError(t, err)

	result, err := eng.Tally(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.Equal(t, CaughtMessage("Host"), result.Message)

	// The hidden role voted out means the others won.
	snap, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeOthersWin, Outcome(snap.Participants))
}

func TestTally_TieAndNoVotes(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	// No votes at all.
	session, _ := startedSession(t, eng)
	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)
	result, err := eng.Tally(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.Equal(t, MsgNoVotes, result.Message)
	assert.Nil(t, result.VotedOut)

	// A 1-1 split.
	eng2, _ := newTestEngine()
	session2, roster := startedSession(t, eng2)
	_, err = eng2.RequestVote(ctx, session2.ID, guestIdent)
	require.NoError(t, err)
	_, err = eng2.CastBallot(ctx, session2.ID, guestIdent, roster[hostIdent].ID)
	require.NoError(t, err)
	_, err = eng2.CastBallot(ctx, session2.ID, hostIdent, roster[guestIdent].ID)
	require.NoError(t, err)

	result, err = eng2.Tally(ctx, session2.ID, hostIdent)
	require.NoError(t, err)
	assert.Equal(t, MsgTie, result.Message)
	assert.Nil(t, result.VotedOut)
}

func TestTally_HostOnlyAndPhaseRules(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, _ := startedSession(t, eng)

	// Voting round not open yet.
	_, err := eng.Tally(ctx, session.ID, hostIdent)
	assertAppCode(t, err, "FORBIDDEN")

	_, err = eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	_, err = eng.Tally(ctx, session.ID, guestIdent)
	assertAppCode(t, err, "FORBIDDEN")
}

func TestTally_RepeatReturnsRecordedResult(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[thirdIdent].ID)
	require.NoError(t, err)

	first, err := eng.Tally(ctx, session.ID, hostIdent)
	require.NoError(t, err)

	second, err := eng.Tally(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.True(t, second.AlreadyResolved)
	assert.Equal(t, first.Message, second.Message)
	require.NotNil(t, second.VotedOut)
	assert.Equal(t, *first.VotedOut, *second.VotedOut)

	// Only one ballot_result record was appended.
	snap, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.LatestBallotResult)
}

func TestTally_ConcurrentCallsResolveOnce(t *testing.T) {
	eng, store := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[thirdIdent].ID)
	require.NoError(t, err)
	_, err = eng.CastBallot(ctx, session.ID, hostIdent, roster[thirdIdent].ID)
	require.NoError(t, err)

	// All racing tallies resolve against the voting -> resolved CAS: one
	// caller computes, the rest observe the recorded result.
	const callers = 8
	results := make([]*TallyResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = eng.Tally(ctx, session.ID, hostIdent)
		}(i)
	}
	wg.Wait()

	resolvers := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, MissedMessage("Third"), results[i].Message)
		if !results[i].AlreadyResolved {
			resolvers++
			require.NotNil(t, results[i].VotedOut)
			assert.Equal(t, roster[thirdIdent].ID, *results[i].VotedOut)
		}
	}
	assert.Equal(t, 1, resolvers)

	// Exactly one ballot_result record landed in the log.
	assert.Equal(t, 1, store.recordCount(domain.KindBallotResult))
}

func TestNextRound(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, roster := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)
	_, err = eng.CastBallot(ctx, session.ID, guestIdent, roster[thirdIdent].ID)
	require.NoError(t, err)
	_, err = eng.Tally(ctx, session.ID, hostIdent)
	require.NoError(t, err)

	updated, err := eng.NextRound(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, updated.Phase)
	assert.Nil(t, updated.ResultMessage)

	// Ballots cleared; hidden role unchanged.
	snap, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Ballots)
	for _, p := range snap.Participants {
		if p.ID == roster[hostIdent].ID {
			assert.True(t, p.IsHiddenRole)
		}
	}

	// Repeating the call is a no-op success.
	again, err := eng.NextRound(ctx, session.ID, hostIdent)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, again.Phase)
}

func TestNextRound_Rules(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, _ := startedSession(t, eng)

	_, err := eng.RequestVote(ctx, session.ID, guestIdent)
	require.NoError(t, err)

	// Voting still open.
	_, err = eng.NextRound(ctx, session.ID, hostIdent)
	assertAppCode(t, err, "FORBIDDEN")

	_, err = eng.Tally(ctx, session.ID, hostIdent)
	require.NoError(t, err)

	// Host only.
	_, err = eng.NextRound(ctx, session.ID, guestIdent)
	assertAppCode(t, err, "FORBIDDEN")
}

func TestSnapshotByCode(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()
	session, _ := threePlayerSession(t, eng)

	snap, err := eng.SnapshotByCode(ctx, session.Code)
	require.NoError(t, err)
	assert.Equal(t, session.ID, snap.Session.ID)
	assert.Len(t, snap.Participants, 3)

	_, err = eng.SnapshotByCode(ctx, "NOPE1")
	assertAppCode(t, err, "NOT_FOUND")
}

func TestUsePicker_ControlsRoleAssignment(t *testing.T) {
	eng, _ := newTestEngine()
	ctx := context.Background()

	// Second roster entry gets the role instead of the first.
	eng.UsePicker(func(_ context.Context, n int) int {
		require.Equal(t, 3, n)
		return 1
	})

	session, roster := threePlayerSession(t, eng)
	_, err := eng.Start(ctx, session.ID, hostIdent)
	require.NoError(t, err)

	snap, err := eng.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	for _, p := range snap.Participants {
		if p.IsHiddenRole {
			assert.Equal(t, roster[guestIdent].ID, p.ID)
		}
	}
}
