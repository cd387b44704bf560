package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle phase of a session.
//
//	waiting -> active -> voting -> resolved -> active (next round)
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseActive   Phase = "active"
	PhaseVoting   Phase = "voting"
	PhaseResolved Phase = "resolved"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseActive, PhaseVoting, PhaseResolved:
		return true
	}
	return false
}

// AtLeast reports whether p is at or past other in the round lifecycle.
func (p Phase) AtLeast(other Phase) bool {
	return phaseOrder[p] >= phaseOrder[other]
}

var phaseOrder = map[Phase]int{
	PhaseWaiting:  0,
	PhaseActive:   1,
	PhaseVoting:   2,
	PhaseResolved: 3,
}

// ValidTransition reports whether from -> to is a legal phase transition.
// resolved -> active re-arms the room for the next round.
func ValidTransition(from, to Phase) bool {
	switch from {
	case PhaseWaiting:
		return to == PhaseActive
	case PhaseActive:
		return to == PhaseVoting
	case PhaseVoting:
		return to == PhaseResolved
	case PhaseResolved:
		return to == PhaseActive
	}
	return false
}

// Session is the root record of one game room. The phase column is the
// contended field: it is only ever mutated through compare-and-swap
// transitions, never unconditionally.
type Session struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	HostID        string     `json:"host_id"`
	Phase         Phase      `json:"phase"`
	ResultMessage *string    `json:"result_message,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
