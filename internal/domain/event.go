package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies append-only game event records.
type EventKind string

const (
	// KindElimination records a direct kill by the hidden role.
	KindElimination EventKind = "elimination"
	// KindBallotResult records the outcome of a voting round.
	KindBallotResult EventKind = "ballot_result"
)

// GameEvent is an append-only log entry describing an elimination or a
// ballot result. ActorID is nil for system-generated records; TargetID is
// nil for no-result outcomes (tie, no votes). The latest record of each kind
// drives client-visible notifications.
type GameEvent struct {
	ID        uuid.UUID  `json:"id"`
	SessionID uuid.UUID  `json:"session_id"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	TargetID  *uuid.UUID `json:"target_id,omitempty"`
	Kind      EventKind  `json:"kind"`
	Detail    string     `json:"detail"`
	CreatedAt time.Time  `json:"created_at"`
}

// Watched table names carried in change-event envelopes.
const (
	TableSessions     = "sessions"
	TableParticipants = "participants"
	TableBallots      = "ballots"
	TableGameEvents   = "game_events"
)

// ChangeOp tags a change-event with the storage operation that produced it.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent is the change-notification envelope emitted for every row
// mutation. New carries the row after the change; Old carries the prior row
// for updates and deletes when available. Consumers must not assume a total
// order across tables; the sync fold rules are order-tolerant.
type ChangeEvent struct {
	Table     string          `json:"table"`
	Op        ChangeOp        `json:"op"`
	SessionID uuid.UUID       `json:"session_id"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
}

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateSession     AggregateType = "session"
	AggregateParticipant AggregateType = "participant"
	AggregateBallot      AggregateType = "ballot"
	AggregateGameEvent   AggregateType = "game_event"
)

// EventType enumerates all outbox event types.
type EventType string

const (
	EventSessionCreated      EventType = "session.created"
	EventSessionPhaseChanged EventType = "session.phase_changed"
	EventParticipantJoined   EventType = "participant.joined"
	EventParticipantUpdated  EventType = "participant.updated"
	EventBallotCast          EventType = "ballot.cast"
	EventBallotsCleared      EventType = "ballots.cleared"
	EventRecordAppended      EventType = "record.appended"
)

// OutboxDraft is the payload written to the event_outbox table, inside the
// same transaction as the row mutation it describes. The relay publishes
// drafts to the change feed keyed by session so all of one session's events
// land on the same partition.
type OutboxDraft struct {
	EventID       uuid.UUID     `json:"event_id"`
	AggregateType AggregateType `json:"aggregate_type"`
	AggregateID   string        `json:"aggregate_id"`
	EventType     EventType     `json:"event_type"`
	PartitionKey  string        `json:"partition_key"`
	Payload       ChangeEvent   `json:"payload"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// NewChangeDraft builds an outbox draft wrapping a change-event envelope.
// Marshal failures cannot happen for our row types, so new/old are marshaled
// with errors discarded.
func NewChangeDraft(agg AggregateType, aggID uuid.UUID, typ EventType, sessionID uuid.UUID, table string, op ChangeOp, newRow, oldRow interface{}) OutboxDraft {
	env := ChangeEvent{Table: table, Op: op, SessionID: sessionID}
	if newRow != nil {
		env.New, _ = json.Marshal(newRow)
	}
	if oldRow != nil {
		env.Old, _ = json.Marshal(oldRow)
	}
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID.String(),
		EventType:     typ,
		PartitionKey:  sessionID.String(),
		Payload:       env,
		OccurredAt:    time.Now().UTC(),
	}
}
