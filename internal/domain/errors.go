package domain

import "fmt"

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: msg, Status: 403}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
}

// ErrAlreadyVoted surfaces a duplicate ballot as a benign idempotency signal.
func ErrAlreadyVoted(voterID string) *AppError {
	return &AppError{Code: "ALREADY_VOTED", Message: fmt.Sprintf("participant %s already cast a ballot", voterID), Status: 409}
}

func ErrInvalidTarget(msg string) *AppError {
	return &AppError{Code: "INVALID_TARGET", Message: msg, Status: 422}
}

// ErrPredicateFailed marks a lost conditional-update race. Callers re-read
// state and either short-circuit to a no-op success or propagate.
func ErrPredicateFailed(msg string) *AppError {
	return &AppError{Code: "PREDICATE_FAILED", Message: msg, Status: 409}
}

func ErrNoParticipants(sessionID string) *AppError {
	return &AppError{Code: "NO_PARTICIPANTS", Message: fmt.Sprintf("session %s has no participants", sessionID), Status: 422}
}

// ErrCodeExhausted is returned when session code generation keeps colliding.
// Retryable from the caller's side.
func ErrCodeExhausted() *AppError {
	return &AppError{Code: "CODE_EXHAUSTED", Message: "could not generate a unique session code", Status: 503}
}

// ErrTooManyAttempts throttles repeated failed code guesses from one identity.
func ErrTooManyAttempts(msg string) *AppError {
	return &AppError{Code: "TOO_MANY_ATTEMPTS", Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
