package domain

import "errors"

// Common domain errors
var (
	// Candidate pool errors
	ErrScoreWidthMismatch = errors.New("score vector width does not match pool")
	ErrParentOutOfRange   = errors.New("parent index out of range")
	ErrPoolEmpty          = errors.New("candidate pool is empty")

	// Pipeline errors
	ErrUnknownStage       = errors.New("unknown pipeline stage")
	ErrStageNotFound      = errors.New("stage not found in candidate")
	ErrPipelineFailed     = errors.New("pipeline execution failed")
	ErrEmptyStageSequence = errors.New("pipeline stage sequence is empty")

	// Optimization errors
	ErrBudgetExhausted   = errors.New("rollout budget exhausted")
	ErrRunNotFound       = errors.New("optimization run not found")
	ErrRunNotRunning     = errors.New("optimization run is not running")
	ErrCandidateNotFound = errors.New("candidate not found")

	// LLM errors
	ErrLLMUnavailable   = errors.New("LLM service unavailable")
	ErrLLMRequestFailed = errors.New("LLM request failed")
	ErrEmptyCompletion  = errors.New("LLM returned an empty completion")

	// Dataset errors
	ErrEmptyDataset   = errors.New("dataset contains no examples")
	ErrInvalidExample = errors.New("example is missing input or expected fields")

	// Validation errors
	ErrInvalidID    = errors.New("invalid ID format")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
