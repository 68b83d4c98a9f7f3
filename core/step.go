package core

import (
	"encoding/json"
	"fmt"
)

// ReasoningStep represents one entry of the reasoning trace. Concrete step
// types implement the unexported isStep marker enabling a closed set so
// consumption sites can switch exhaustively.
//
// Steps are immutable once appended; the trace is append-only until consumed
// by formatting.
type ReasoningStep interface {
	// Content renders the step in the textual form fed back to the model.
	Content() string

	// Done reports whether the step terminates the reasoning loop.
	Done() bool

	isStep()
}

// ActionStep requests execution of a named tool with keyword arguments.
type ActionStep struct {
	Thought string         `json:"thought"`
	Action  string         `json:"action"`
	Args    map[string]any `json:"args"`
}

func (s ActionStep) isStep()  {}
func (ActionStep) Done() bool { return false }

// Content renders the step in ReAct notation.
func (s ActionStep) Content() string {
	args, err := json.Marshal(s.Args)
	if err != nil {
		args = []byte("{}")
	}
	return fmt.Sprintf("Thought: %s\nAction: %s\nAction Input: %s\n", s.Thought, s.Action, args)
}

// ObservationStep records a tool result or a recoverable parse error.
type ObservationStep struct {
	Observation string `json:"observation"`
}

func (s ObservationStep) isStep()  {}
func (ObservationStep) Done() bool { return false }

func (s ObservationStep) Content() string {
	return fmt.Sprintf("Observation: %s\n", s.Observation)
}

// MilestoneStep marks intermediate progress without calling a tool; the loop
// continues after appending it.
type MilestoneStep struct {
	Thought   string `json:"thought"`
	Milestone string `json:"milestone"`
}

func (s MilestoneStep) isStep()  {}
func (MilestoneStep) Done() bool { return false }

func (s MilestoneStep) Content() string {
	return fmt.Sprintf("Thought: %s\nMilestone: %s\n", s.Thought, s.Milestone)
}

// FinalStep carries the final answer and terminates the run.
type FinalStep struct {
	Thought  string `json:"thought"`
	Response string `json:"response"`
}

func (s FinalStep) isStep()  {}
func (FinalStep) Done() bool { return true }

func (s FinalStep) Content() string {
	return fmt.Sprintf("Thought: %s\nAnswer: %s\n", s.Thought, s.Response)
}
