package workflow

import "github.com/hupe1980/researchmesh/core"

// event is the closed union of step transitions inside one engine run. Each
// step handler consumes exactly one event type and returns the next; the run
// loop switches exhaustively over the set.
type event interface {
	isEvent()
}

// startEvent opens a run with the parsed user input.
type startEvent struct {
	input string
}

// intentEvent requests intent classification of the input.
type intentEvent struct {
	input string
}

// entityEvent requests entity extraction from the input.
type entityEvent struct {
	input string
}

// analysisEvent carries the extraction outcome into the plan gate.
type analysisEvent struct {
	input    string
	entities []core.Entity
	template string
}

// planningEvent requests plan generation for the query.
type planningEvent struct {
	input string
}

// prepEvent requests (re)assembly of the reasoning history, refreshing the
// plan against the trace when both exist.
type prepEvent struct{}

// inputEvent carries the assembled history into one reasoning round.
type inputEvent struct {
	messages []core.Message
}

// toolCallEvent carries tool requests emitted by the reasoning step.
type toolCallEvent struct {
	calls []core.ToolCall
}

// stopEvent terminates the run with its result. No step is entered after a
// stopEvent for the same context.
type stopEvent struct {
	result core.WorkflowResult
}

func (startEvent) isEvent()    {}
func (intentEvent) isEvent()   {}
func (entityEvent) isEvent()   {}
func (analysisEvent) isEvent() {}
func (planningEvent) isEvent() {}
func (prepEvent) isEvent()     {}
func (inputEvent) isEvent()    {}
func (toolCallEvent) isEvent() {}
func (stopEvent) isEvent()     {}
