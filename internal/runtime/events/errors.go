package events

import (
	"errors"
	"fmt"
)

var (
	// ErrSkip acknowledges a message without processing it.
	ErrSkip = errors.New("skip message")
	// ErrDeadLetter sends a message straight to the dead-letter topic.
	ErrDeadLetter = errors.New("dead letter")
)

// DeadLetterError sends a message to the dead-letter topic without retries
// and records why.
type DeadLetterError struct {
	Reason string
	Cause  error
}

func (e *DeadLetterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dead letter: %s: %v", e.Reason, e.Cause)
	}
	return "dead letter: " + e.Reason
}

func (e *DeadLetterError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrDeadLetter) match any DeadLetterError.
func (e *DeadLetterError) Is(target error) bool {
	return target == ErrDeadLetter
}

// IsDeadLetter reports whether err asks for immediate dead-lettering.
func IsDeadLetter(err error) bool {
	return errors.Is(err, ErrDeadLetter)
}

// ShouldRetry reports whether a failed delivery is worth another attempt.
func ShouldRetry(err error) bool {
	return err != nil && !IsDeadLetter(err) && !errors.Is(err, ErrSkip)
}
