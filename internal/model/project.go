package model

import (
	"fmt"
)

type ResearchState string

const (
	StateCreated     ResearchState = "created"
	StateResearching ResearchState = "researching"
	StateCompleted   ResearchState = "completed"
	StateError       ResearchState = "error"
)

type ResearchEvent string

const (
	EventStart    ResearchEvent = "start"
	EventComplete ResearchEvent = "complete"
	EventFail     ResearchEvent = "fail"
)

// Transition computes the next lifecycle state for an event. Invalid moves
// (such as starting a run while one is already in flight) are rejected
// instead of silently overwriting the current state.
func Transition(current ResearchState, event ResearchEvent) (ResearchState, error) {
	switch event {
	case EventStart:
		switch current {
		case StateCreated, StateCompleted, StateError:
			return StateResearching, nil
		}
	case EventComplete:
		if current == StateResearching {
			return StateCompleted, nil
		}
	case EventFail:
		if current == StateResearching {
			return StateError, nil
		}
	}
	return current, fmt.Errorf("invalid research transition: %s on %s", event, current)
}

type Project struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Topic       string            `json:"topic"`
	Namespace   string            `json:"namespace"`
	State       ResearchState     `json:"state"`
	Summary     *IngestionSummary `json:"summary,omitempty"`
	Ctime       int64             `json:"ctime"`
	Mtime       int64             `json:"mtime"`
}
