package domain

// Snapshot is a point-in-time read of everything a client needs to attach to
// a session: the root record, the participant list, the most recent record of
// each kind, and the open ballots. It seeds the sync projection; subsequent
// change events are folded on top.
type Snapshot struct {
	Session            Session       `json:"session"`
	Participants       []Participant `json:"participants"`
	LatestElimination  *GameEvent    `json:"latest_elimination,omitempty"`
	LatestBallotResult *GameEvent    `json:"latest_ballot_result,omitempty"`
	Ballots            []Ballot      `json:"ballots"`
}
