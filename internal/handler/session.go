package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/auth"
	"github.com/whodunit/platform/internal/domain"
	"github.com/whodunit/platform/internal/game"
	"github.com/whodunit/platform/internal/guard"
)

// SessionHandler handles session lifecycle and gameplay endpoints.
type SessionHandler struct {
	engine  *game.Engine
	guesses *guard.AttemptLimiter
}

// NewSessionHandler creates a new SessionHandler. guesses throttles failed
// code lookups per identity.
func NewSessionHandler(engine *game.Engine, guesses *guard.AttemptLimiter) *SessionHandler {
	return &SessionHandler{engine: engine, guesses: guesses}
}

// sessionResponse is the shape of a session in API responses.
type sessionResponse struct {
	Session     *domain.Session     `json:"session"`
	Participant *domain.Participant `json:"participant,omitempty"`
}

// createRequest is the body of POST /sessions.
type createRequest struct {
	DisplayName string `json:"display_name"`
}

// Create handles POST /sessions. The caller becomes the host.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())

	var req createRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	name := displayName(req.DisplayName, ident)
	if name == "" {
		RespondError(w, domain.ErrValidation("display_name is required"))
		return
	}

	session, participant, err := h.engine.CreateSession(r.Context(), ident.ID.String(), name)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, sessionResponse{Session: session, Participant: participant})
}

// joinRequest is the body of POST /sessions/join.
type joinRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

// Join handles POST /sessions/join. Rejoining with the same identity returns
// the existing participant rather than an error.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())

	var req joinRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		RespondError(w, domain.ErrValidation("code is required"))
		return
	}
	name := displayName(req.DisplayName, ident)
	if name == "" {
		RespondError(w, domain.ErrValidation("display_name is required"))
		return
	}

	if res := h.guesses.Check(ident.ID.String()); !res.Allowed {
		RespondError(w, domain.ErrTooManyAttempts(res.Reason))
		return
	}

	session, participant, err := h.engine.Join(r.Context(), code, ident.ID.String(), name)
	if err != nil {
		h.recordGuess(ident.ID.String(), err)
		RespondError(w, err)
		return
	}
	h.guesses.RecordSuccess(ident.ID.String())

	RespondJSON(w, http.StatusOK, sessionResponse{Session: session, Participant: participant})
}

// recordGuess counts failed code lookups toward the guess limiter. Only a
// miss counts; validation or server errors say nothing about the code space.
func (h *SessionHandler) recordGuess(key string, err error) {
	if appErr, ok := err.(*domain.AppError); ok && appErr.Code == "NOT_FOUND" {
		h.guesses.RecordFailure(key)
	}
}

// Start handles POST /sessions/{sessionID}/start. Host only; assigns the
// hidden role and moves the session to the active phase.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.engine.Start(r.Context(), sessionID, ident.ID.String())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// RequestVote handles POST /sessions/{sessionID}/request-vote. Any living
// participant may call a vote during the active phase.
func (h *SessionHandler) RequestVote(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.engine.RequestVote(r.Context(), sessionID, ident.ID.String())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// targetRequest carries a target participant for eliminations and ballots.
type targetRequest struct {
	TargetID uuid.UUID `json:"target_id"`
	Detail   string    `json:"detail,omitempty"`
}

// eliminateResponse is the shape of POST /sessions/{sessionID}/eliminate.
type eliminateResponse struct {
	Target *domain.Participant `json:"target"`
	Record *domain.GameEvent   `json:"record"`
}

// Eliminate handles POST /sessions/{sessionID}/eliminate. Hidden role only.
func (h *SessionHandler) Eliminate(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req targetRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.TargetID == uuid.Nil {
		RespondError(w, domain.ErrValidation("target_id is required"))
		return
	}

	target, record, err := h.engine.Eliminate(r.Context(), sessionID, ident.ID.String(), req.TargetID, req.Detail)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, eliminateResponse{Target: target, Record: record})
}

// CastBallot handles POST /sessions/{sessionID}/ballots. One ballot per voter
// per round; a second cast returns 409 ALREADY_VOTED.
func (h *SessionHandler) CastBallot(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req targetRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.TargetID == uuid.Nil {
		RespondError(w, domain.ErrValidation("target_id is required"))
		return
	}

	ballot, err := h.engine.CastBallot(r.Context(), sessionID, ident.ID.String(), req.TargetID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]interface{}{"ballot": ballot})
}

// tallyResponse is the shape of POST /sessions/{sessionID}/tally.
type tallyResponse struct {
	Session         *domain.Session `json:"session"`
	Message         string          `json:"message"`
	VotedOut        *uuid.UUID      `json:"voted_out,omitempty"`
	Counts          map[string]int  `json:"counts"`
	AlreadyResolved bool            `json:"already_resolved"`
}

// Tally handles POST /sessions/{sessionID}/tally. Host only; counts the
// round's ballots and resolves the voting phase. Calling it again after
// resolution returns the recorded result.
func (h *SessionHandler) Tally(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.engine.Tally(r.Context(), sessionID, ident.ID.String())
	if err != nil {
		RespondError(w, err)
		return
	}

	counts := make(map[string]int, len(result.Counts))
	for id, n := range result.Counts {
		counts[id.String()] = n
	}
	RespondJSON(w, http.StatusOK, tallyResponse{
		Session:         result.Session,
		Message:         result.Message,
		VotedOut:        result.VotedOut,
		Counts:          counts,
		AlreadyResolved: result.AlreadyResolved,
	})
}

// NextRound handles POST /sessions/{sessionID}/next-round. Host only; clears
// the round's ballots and returns the session to the active phase.
func (h *SessionHandler) NextRound(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.engine.NextRound(r.Context(), sessionID, ident.ID.String())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, sessionResponse{Session: session})
}

// snapshotResponse is the shape of the snapshot endpoints: everything a
// client needs to seed its local projection, plus derived read-only state.
type snapshotResponse struct {
	Session            *domain.Session      `json:"session"`
	Participants       []domain.Participant `json:"participants"`
	Ballots            []domain.Ballot      `json:"ballots"`
	LatestElimination  *domain.GameEvent    `json:"latest_elimination,omitempty"`
	LatestBallotResult *domain.GameEvent    `json:"latest_ballot_result,omitempty"`
	BallotCounts       map[string]int       `json:"ballot_counts"`
	Outcome            domain.Outcome       `json:"outcome"`
}

// GetSnapshot handles GET /sessions/{sessionID}.
func (h *SessionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	snap, err := h.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snapshotResponseOf(snap))
}

// GetSnapshotByCode handles GET /sessions/by-code/{code}.
func (h *SessionHandler) GetSnapshotByCode(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if code == "" {
		RespondError(w, domain.ErrValidation("code is required"))
		return
	}

	if res := h.guesses.Check(ident.ID.String()); !res.Allowed {
		RespondError(w, domain.ErrTooManyAttempts(res.Reason))
		return
	}

	snap, err := h.engine.SnapshotByCode(r.Context(), code)
	if err != nil {
		h.recordGuess(ident.ID.String(), err)
		RespondError(w, err)
		return
	}
	h.guesses.RecordSuccess(ident.ID.String())
	RespondJSON(w, http.StatusOK, snapshotResponseOf(snap))
}

func snapshotResponseOf(snap *domain.Snapshot) snapshotResponse {
	counts := make(map[string]int, len(snap.Ballots))
	for _, b := range snap.Ballots {
		counts[b.TargetID.String()]++
	}
	return snapshotResponse{
		Session:            &snap.Session,
		Participants:       snap.Participants,
		Ballots:            snap.Ballots,
		LatestElimination:  snap.LatestElimination,
		LatestBallotResult: snap.LatestBallotResult,
		BallotCounts:       counts,
		Outcome:            game.Outcome(snap.Participants),
	}
}

// sessionIDParam extracts and validates the session UUID from the URL.
func sessionIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid session id")
	}
	return id, nil
}

// displayName resolves the request body's name against the token's claim.
func displayName(fromBody string, ident auth.Identity) string {
	name := strings.TrimSpace(fromBody)
	if name == "" {
		name = strings.TrimSpace(ident.DisplayName)
	}
	return name
}
