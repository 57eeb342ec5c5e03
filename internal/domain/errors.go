package domain

import (
	"errors"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a participant has no running quiz session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned when an event arrives after the session stopped accepting answers.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrSessionNotReady is returned when an answer arrives before questions were loaded.
	ErrSessionNotReady = errors.New("quiz session still loading")
	// ErrNoQuestions indicates assembly produced an empty question sequence.
	ErrNoQuestions = errors.New("no questions available")
	// ErrQuestionNotFound indicates a question ID is unknown.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionMismatch indicates an answer referenced a question other than the current one.
	ErrQuestionMismatch = errors.New("answer does not match current question")
	// ErrUserNotFound indicates a user ID or email is unknown.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when an email or participant ID is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNothingToRetry is returned when a retry is requested but no submission failed.
	ErrNothingToRetry = errors.New("no failed submission to retry")
)

// FieldError describes one client-correctable input problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field problems. It never wraps a store failure.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field problems were recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
