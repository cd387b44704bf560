//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/whodunit/platform/internal/domain"
)

// NewIdentity issues an anonymous identity token and returns it with the
// identity UUID.
func (env *TestEnv) NewIdentity(displayName string) (token string, identityID uuid.UUID) {
	env.t.Helper()
	resp := env.POST("/identity", map[string]string{"display_name": displayName}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("NewIdentity: expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		Token      string    `json:"token"`
		IdentityID uuid.UUID `json:"identity_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("NewIdentity: decode: %v", err)
	}
	return result.Token, result.IdentityID
}

// SessionWithParticipant is the create/join response shape.
type SessionWithParticipant struct {
	Session     domain.Session     `json:"session"`
	Participant domain.Participant `json:"participant"`
}

// CreateSession creates a session as the given identity, who becomes host.
func (env *TestEnv) CreateSession(token, displayName string) SessionWithParticipant {
	env.t.Helper()
	resp := env.POST("/sessions", map[string]string{"display_name": displayName}, token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("CreateSession: expected 201, got %d", resp.StatusCode)
	}

	var result SessionWithParticipant
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("CreateSession: decode: %v", err)
	}
	return result
}

// JoinSession joins a session by code as the given identity.
func (env *TestEnv) JoinSession(token, code, displayName string) SessionWithParticipant {
	env.t.Helper()
	resp := env.POST("/sessions/join", map[string]string{"code": code, "display_name": displayName}, token)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("JoinSession: expected 200, got %d", resp.StatusCode)
	}

	var result SessionWithParticipant
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("JoinSession: decode: %v", err)
	}
	return result
}

// StartSession starts a session as its host.
func (env *TestEnv) StartSession(token string, sessionID uuid.UUID) {
	env.t.Helper()
	resp := env.POST("/sessions/"+sessionID.String()+"/start", nil, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("StartSession: expected 200, got %d", resp.StatusCode)
	}
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("POST %s: encode: %v", path, err)
		}
	}
	req, err := http.NewRequest("POST", env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("POST %s: new request: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest("GET", env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("AuthGET %s: new request: %v", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	return resp
}

// AuthPOST performs an authenticated POST request.
func (env *TestEnv) AuthPOST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.POST(path, body, token)
}

// OPTIONS performs an OPTIONS request.
func (env *TestEnv) OPTIONS(path string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest("OPTIONS", env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("OPTIONS %s: new request: %v", path, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("OPTIONS %s: %v", path, err)
	}
	return resp
}

// GETWithHeaders performs a GET request with custom headers.
func (env *TestEnv) GETWithHeaders(path string, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest("GET", env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("GETWithHeaders %s: new request: %v", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("GETWithHeaders %s: %v", path, err)
	}
	return resp
}

// FakeUUID returns a random UUID string for test placeholders.
func FakeUUID() string {
	return uuid.New().String()
}
