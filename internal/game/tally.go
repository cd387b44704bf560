package game

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

// Round result messages shown to every client.
const (
	MsgNoVotes = "No votes were cast."
	MsgTie     = "It was a tie, keep playing!"
)

// CaughtMessage is the result when the single vote winner is the hidden role.
func CaughtMessage(name string) string {
	return fmt.Sprintf("Congrats! You caught the Murderer, it was %s.", name)
}

// MissedMessage is the result when the single vote winner is innocent.
func MissedMessage(name string) string {
	return fmt.Sprintf("Boo! You failed, it wasn't %s.", name)
}

// TallyOutcome is the deterministic result of counting a voting round.
type TallyOutcome struct {
	Message string
	// Winner is the single most-voted participant, nil on a tie or when no
	// votes were cast.
	Winner *domain.Participant
	Counts map[uuid.UUID]int
}

// ComputeTally counts ballots by target and resolves the round. It is a pure
// function: zero ballots is "no votes", multiple max-frequency targets is a
// tie, a single winner is voted out with a message depending on whether the
// winner held the hidden role.
func ComputeTally(ballots []domain.Ballot, participants []domain.Participant) TallyOutcome {
	counts := make(map[uuid.UUID]int, len(participants))
	for _, b := range ballots {
		counts[b.TargetID]++
	}

	if len(counts) == 0 {
		return TallyOutcome{Message: MsgNoVotes, Counts: counts}
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	var winners []uuid.UUID
	for id, n := range counts {
		if n == max {
			winners = append(winners, id)
		}
	}

	if len(winners) != 1 {
		return TallyOutcome{Message: MsgTie, Counts: counts}
	}

	winnerID := winners[0]
	var winner *domain.Participant
	for i := range participants {
		if participants[i].ID == winnerID {
			winner = &participants[i]
			break
		}
	}
	if winner == nil {
		// Ballot for a row we cannot see; treat as a miss of an unknown name.
		return TallyOutcome{Message: MissedMessage("Unknown"), Counts: counts}
	}

	msg := MissedMessage(winner.DisplayName)
	if winner.IsHiddenRole {
		msg = CaughtMessage(winner.DisplayName)
	}
	return TallyOutcome{Message: msg, Winner: winner, Counts: counts}
}
