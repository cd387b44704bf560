// Package sync reconciles a client's local view of a session with the entity
// store: an initial snapshot seeds a projection, then change events from any
// number of redundant producers (change feed, polling fallback) are folded on
// top. The fold is idempotent and order-tolerant, which is what makes
// redundant producers safe.
package sync

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

// EffectKind tags side effects that folding a change event may demand.
type EffectKind string

// EffectEliminationObserved fires on the false -> true flip of a
// participant's is_eliminated flag. It is edge-triggered: replaying the same
// terminal state never re-fires it.
const EffectEliminationObserved EffectKind = "elimination_observed"

// Effect is a side effect owed to the presentation layer after a fold step.
type Effect struct {
	Kind     EffectKind
	TargetID uuid.UUID
}

// Projection is the local materialization of one session: the root record,
// the participant list, open ballots, and the most recent record of each
// kind. Not safe for concurrent use; the Watcher serializes access.
type Projection struct {
	Session            *domain.Session
	LatestElimination  *domain.GameEvent
	LatestBallotResult *domain.GameEvent

	participants map[uuid.UUID]domain.Participant
	ballots      map[uuid.UUID]domain.Ballot
}

// NewProjection returns an empty projection.
func NewProjection() *Projection {
	return &Projection{
		participants: make(map[uuid.UUID]domain.Participant),
		ballots:      make(map[uuid.UUID]domain.Ballot),
	}
}

// LoadSnapshot seeds the projection from a point-in-time read. Any state
// already folded is replaced.
func (p *Projection) LoadSnapshot(snap domain.Snapshot) {
	session := snap.Session
	p.Session = &session
	p.LatestElimination = snap.LatestElimination
	p.LatestBallotResult = snap.LatestBallotResult
	p.participants = make(map[uuid.UUID]domain.Participant, len(snap.Participants))
	for _, part := range snap.Participants {
		p.participants[part.ID] = part
	}
	p.ballots = make(map[uuid.UUID]domain.Ballot, len(snap.Ballots))
	for _, b := range snap.Ballots {
		p.ballots[b.ID] = b
	}
}

// Apply folds one change event into the projection and returns any side
// effects the change demands. Fold rules per operation:
//
//	insert: add unless already present (the snapshot may have included it)
//	update: replace by primary key; absent rows are treated as inserts
//	delete: remove by primary key
func (p *Projection) Apply(ev domain.ChangeEvent) ([]Effect, error) {
	switch ev.Table {
	case domain.TableSessions:
		return nil, p.applySession(ev)
	case domain.TableParticipants:
		return p.applyParticipant(ev)
	case domain.TableBallots:
		return nil, p.applyBallot(ev)
	case domain.TableGameEvents:
		return nil, p.applyGameEvent(ev)
	default:
		return nil, fmt.Errorf("unknown change table %q", ev.Table)
	}
}

func (p *Projection) applySession(ev domain.ChangeEvent) error {
	if ev.Op == domain.OpDelete {
		p.Session = nil
		return nil
	}
	var s domain.Session
	if err := json.Unmarshal(ev.New, &s); err != nil {
		return fmt.Errorf("decode session row: %w", err)
	}
	p.Session = &s
	return nil
}

func (p *Projection) applyParticipant(ev domain.ChangeEvent) ([]Effect, error) {
	if ev.Op == domain.OpDelete {
		key, err := rowKey(ev.Old, ev.New)
		if err != nil {
			return nil, err
		}
		delete(p.participants, key)
		return nil, nil
	}

	var incoming domain.Participant
	if err := json.Unmarshal(ev.New, &incoming); err != nil {
		return nil, fmt.Errorf("decode participant row: %w", err)
	}

	// The previous value for the edge diff is the locally held row when we
	// have one; a replayed notification then compares the terminal state with
	// itself and stays silent. The feed's old value only fills in when the
	// row is new to us.
	var prev *domain.Participant
	if held, ok := p.participants[incoming.ID]; ok {
		prev = &held
	} else if len(ev.Old) > 0 {
		var old domain.Participant
		if err := json.Unmarshal(ev.Old, &old); err != nil {
			return nil, fmt.Errorf("decode participant old row: %w", err)
		}
		prev = &old
	}

	var effects []Effect
	if prev != nil && !prev.IsEliminated && incoming.IsEliminated {
		effects = append(effects, Effect{Kind: EffectEliminationObserved, TargetID: incoming.ID})
	}

	p.participants[incoming.ID] = incoming
	return effects, nil
}

func (p *Projection) applyBallot(ev domain.ChangeEvent) error {
	if ev.Op == domain.OpDelete {
		// A bare delete envelope clears the whole round's ballots.
		if len(ev.Old) == 0 && len(ev.New) == 0 {
			p.ballots = make(map[uuid.UUID]domain.Ballot)
			return nil
		}
		key, err := rowKey(ev.Old, ev.New)
		if err != nil {
			return err
		}
		delete(p.ballots, key)
		return nil
	}
	var b domain.Ballot
	if err := json.Unmarshal(ev.New, &b); err != nil {
		return fmt.Errorf("decode ballot row: %w", err)
	}
	p.ballots[b.ID] = b
	return nil
}

func (p *Projection) applyGameEvent(ev domain.ChangeEvent) error {
	if ev.Op == domain.OpDelete {
		// The log is append-only; deletes are not produced.
		return nil
	}
	var record domain.GameEvent
	if err := json.Unmarshal(ev.New, &record); err != nil {
		return fmt.Errorf("decode game event row: %w", err)
	}
	switch record.Kind {
	case domain.KindElimination:
		if newerRecord(p.LatestElimination, &record) {
			p.LatestElimination = &record
		}
	case domain.KindBallotResult:
		if newerRecord(p.LatestBallotResult, &record) {
			p.LatestBallotResult = &record
		}
	}
	return nil
}

// newerRecord reports whether in should replace cur as the latest record.
func newerRecord(cur, in *domain.GameEvent) bool {
	if cur == nil {
		return true
	}
	return !in.CreatedAt.Before(cur.CreatedAt)
}

// rowKey extracts the primary key from whichever row image is present.
func rowKey(old, new_ json.RawMessage) (uuid.UUID, error) {
	raw := old
	if len(raw) == 0 {
		raw = new_
	}
	var row struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return uuid.Nil, fmt.Errorf("decode row key: %w", err)
	}
	return row.ID, nil
}

// Participants returns the participant list in stable join order.
func (p *Projection) Participants() []domain.Participant {
	out := make([]domain.Participant, 0, len(p.participants))
	for _, part := range p.participants {
		out = append(out, part)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// BallotCounts returns the per-target frequency count of open ballots.
func (p *Projection) BallotCounts() map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int, len(p.ballots))
	for _, b := range p.ballots {
		counts[b.TargetID]++
	}
	return counts
}
