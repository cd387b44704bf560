package domain

import (
	"time"

	"github.com/google/uuid"
)

// Participant is one player's membership record within a session. Identity is
// the opaque subject of the caller's identity token; at most one participant
// exists per (session, identity).
type Participant struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	Identity     string    `json:"identity"`
	DisplayName  string    `json:"display_name"`
	IsHost       bool      `json:"is_host"`
	IsEliminated bool      `json:"is_eliminated"`
	IsHiddenRole bool      `json:"is_hidden_role"`
	IsVotedOut   bool      `json:"is_voted_out"`
	CreatedAt    time.Time `json:"created_at"`
}

// Alive reports whether the participant is still in play.
func (p Participant) Alive() bool {
	return !p.IsEliminated && !p.IsVotedOut
}

// Outcome is the derived win state of a session. It is a pure function of
// participant flags and is never stored; see Outcome evaluation in the game
// engine.
type Outcome string

const (
	OutcomeUndecided      Outcome = "undecided"
	OutcomeHiddenRoleWins Outcome = "hidden_role_wins"
	OutcomeOthersWin      Outcome = "others_win"
)
