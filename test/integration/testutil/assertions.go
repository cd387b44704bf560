//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// AssertPhase queries the sessions table and asserts the stored phase.
func AssertPhase(t *testing.T, env *TestEnv, sessionID uuid.UUID, phase string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got string
	err := env.Pool.QueryRow(ctx,
		"SELECT phase FROM sessions WHERE id = $1", sessionID).Scan(&got)
	if err != nil {
		t.Fatalf("AssertPhase: query: %v", err)
	}
	if got != phase {
		t.Errorf("phase: expected %q, got %q", phase, got)
	}
}

// CountBallots returns the number of stored ballots for a session.
func CountBallots(t *testing.T, env *TestEnv, sessionID uuid.UUID) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM ballots WHERE session_id = $1", sessionID).Scan(&count)
	if err != nil {
		t.Fatalf("CountBallots: %v", err)
	}
	return count
}

// CountOutboxEvents returns the number of outbox events partitioned to a session.
func CountOutboxEvents(t *testing.T, env *TestEnv, sessionID uuid.UUID) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM event_outbox WHERE partition_key = $1", sessionID.String()).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutboxEvents: %v", err)
	}
	return count
}

// HiddenRoleID returns the participant holding the hidden role in a session.
func HiddenRoleID(t *testing.T, env *TestEnv, sessionID uuid.UUID) uuid.UUID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id uuid.UUID
	err := env.Pool.QueryRow(ctx,
		"SELECT id FROM participants WHERE session_id = $1 AND is_hidden_role", sessionID).Scan(&id)
	if err != nil {
		t.Fatalf("HiddenRoleID: %v", err)
	}
	return id
}
