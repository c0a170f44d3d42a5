package agent

import "fmt"

// State is a step of the per-turn decision loop.
type State int

const (
	StateStart State = iota
	StateAwaitDecision
	StateDirectAnswer
	StateAwaitToolResult
	StateAwaitFinalAnswer
	StateDone
)

var stateNames = map[State]string{
	StateStart:            "start",
	StateAwaitDecision:    "await_decision",
	StateDirectAnswer:     "direct_answer",
	StateAwaitToolResult:  "await_tool_result",
	StateAwaitFinalAnswer: "await_final_answer",
	StateDone:             "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FallbackMode selects what happens when retrieval is entirely unavailable.
type FallbackMode string

const (
	// FallbackFailOpen tells the model no context exists and lets it answer with disclosure.
	FallbackFailOpen FallbackMode = "fail_open"
	// FallbackFailClosed returns a fixed message without consulting the model again.
	FallbackFailClosed FallbackMode = "fail_closed"
)

// Valid reports whether m is a known mode.
func (m FallbackMode) Valid() bool {
	return m == FallbackFailOpen || m == FallbackFailClosed
}
