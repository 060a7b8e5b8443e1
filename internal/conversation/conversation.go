/*
Package conversation drives a meal plan conversation through its two
assistant roles: onboarding collects the customer's details, engagement
writes the meal plan. Each role hands off when its reply carries the
termination marker.
*/
package conversation

import (
	"context"
	"strings"
	"time"

	"Healthbite/internal/intake"
	"Healthbite/internal/nutrition"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleOnboarding Role = "onboarding"
	RoleEngagement Role = "engagement"
)

// Stage is the active role of the state machine. It only moves forward:
// onboarding, engagement, finished.
type Stage string

const (
	StageOnboarding Stage = "onboarding"
	StageEngagement Stage = "engagement"
	StageFinished   Stage = "finished"
)

// Role returns the assistant role that answers in this stage, or "" once finished.
func (s Stage) Role() Role {
	switch s {
	case StageOnboarding:
		return RoleOnboarding
	case StageEngagement:
		return RoleEngagement
	}
	return ""
}

func (s Stage) next() Stage {
	switch s {
	case StageOnboarding:
		return StageEngagement
	case StageEngagement:
		return StageFinished
	}
	return StageFinished
}

func (s Stage) order() int {
	switch s {
	case StageOnboarding:
		return 0
	case StageEngagement:
		return 1
	}
	return 2
}

// Turn is one rendered message of the conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the routing state of a conversation.
type State struct {
	ActiveRole Stage `json:"active_role"`
	// Terminated is true when the latest assistant reply carried the marker.
	Terminated bool `json:"terminated"`
}

// InitialState is the state of a new or reset conversation.
func InitialState() State {
	return State{ActiveRole: StageOnboarding}
}

const terminationMarker = "terminate"

// IsTerminationMarker reports whether text contains the termination marker,
// ignoring case.
func IsTerminationMarker(text string) bool {
	return strings.Contains(strings.ToLower(text), terminationMarker)
}

/* =================================================================================
								COMPLETION PROVIDER
=================================================================================*/

// Speaker is the author of a message sent to the completion provider.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one entry of a role's accumulated context.
type Message struct {
	Speaker Speaker `json:"speaker"`
	Content string  `json:"content"`
}

// CompletionRequest is what a role sends to the language model.
type CompletionRequest struct {
	Role              Role
	SystemInstruction string
	Messages          []Message
}

// CompletionProvider generates the next assistant reply for a role.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionFunc adapts a function to CompletionProvider.
type CompletionFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompletionFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

/* =================================================================================
									SNAPSHOT
=================================================================================*/

// Snapshot is a read-only copy of a conversation, safe to render or serialize.
type Snapshot struct {
	State   State                   `json:"state"`
	Turns   []Turn                  `json:"turns"`
	Profile *intake.CustomerProfile `json:"profile,omitempty"`
	// MealPlan is the last engagement reply once the conversation finished.
	MealPlan   string            `json:"meal_plan,omitempty"`
	Extraction *nutrition.Result `json:"extraction,omitempty"`
}

// Finished reports whether the meal plan is complete.
func (s Snapshot) Finished() bool {
	return s.State.ActiveRole == StageFinished
}

// LastTurn returns the most recent turn, if any.
func (s Snapshot) LastTurn() (Turn, bool) {
	if len(s.Turns) == 0 {
		return Turn{}, false
	}
	return s.Turns[len(s.Turns)-1], true
}
