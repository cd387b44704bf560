package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ballot is one participant's accusation during a voting phase. At most one
// ballot exists per (session, voter); the constraint is enforced by a
// unique-guarded insert, not a read-then-write.
type Ballot struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	VoterID   uuid.UUID `json:"voter_id"`
	TargetID  uuid.UUID `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}
