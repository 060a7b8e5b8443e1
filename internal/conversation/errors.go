package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a message arrives while a completion is in flight.
	ErrBusy = errors.New("a reply is still being generated")
	// ErrConversationFinished is returned when a message arrives after the meal plan is complete.
	ErrConversationFinished = errors.New("conversation is finished, start a new one")
	// ErrConversationReset is returned to a caller whose in-flight call was abandoned by Reset.
	ErrConversationReset = errors.New("conversation was reset while the reply was pending")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrProfileExists is returned when an intake form is submitted twice.
	ErrProfileExists = errors.New("intake profile already submitted")
	// ErrIncompleteProfile is returned when Start receives a profile without its required fields.
	ErrIncompleteProfile = errors.New("intake profile is incomplete")
)

// ProviderError wraps a failed completion call. The conversation state is left
// untouched so the same message can be retried.
type ProviderError struct {
	Role Role
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s assistant is unavailable: %v", e.Role, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable is always true; provider failures never advance the state machine.
func (e *ProviderError) Retryable() bool { return true }
