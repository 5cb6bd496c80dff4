package entity

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrPreflight        = errors.New("preflight error")
	ErrExtraction       = errors.New("extraction error")
	ErrReassembly       = errors.New("reassembly error")
	ErrAudio            = errors.New("audio error")
	ErrValidation       = errors.New("validation error")
	ErrCancelled        = errors.New("job cancelled")
	ErrUnknownProcessor = errors.New("unknown frame processor")
)

// PhaseError ties a failure to the orchestrator phase it happened in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
