package service

import (
	"errors"
	"fmt"

	"casecounsel-backend/repository"
)

// ErrorKind classifies a stage failure so callers can pick a fallback
type ErrorKind string

const (
	KindTransport     ErrorKind = "transport"
	KindParse         ErrorKind = "parse"
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
	KindInvalid       ErrorKind = "invalid"
)

var (
	ErrForbidden     = errors.New("case belongs to another user")
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrCaseRequired  = errors.New("case id is required")
	ErrNoJSON        = errors.New("no JSON object found in model output")
	ErrUnknownModel  = errors.New("unknown model key")
	ErrEmptyResponse = errors.New("model returned empty content")
)

// StageError is returned at every pipeline stage boundary
type StageError struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, kind ErrorKind, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind of the first StageError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// ModelError is a Model Gateway failure
type ModelError struct {
	Key     ModelKey
	Message string
	Err     error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s: %s: %v", e.Key, e.Message, e.Err)
	}
	return fmt.Sprintf("model %s: %s", e.Key, e.Message)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// caseAccessError maps store and ownership failures to stage errors
func caseAccessError(stage string, err error) *StageError {
	switch {
	case errors.Is(err, repository.ErrCaseNotFound):
		return stageError(stage, KindNotFound, err)
	case errors.Is(err, ErrForbidden):
		return stageError(stage, KindAuthorization, err)
	default:
		return stageError(stage, KindTransport, err)
	}
}
