package core

import "time"

// Status reports the terminal state of a branch or run.
type Status string

const (
	// StatusCompleted means the branch reached Stop with a result.
	StatusCompleted Status = "completed"
	// StatusFailed means execution raised an error inside the branch.
	StatusFailed Status = "failed"
	// StatusTimeout means the branch exceeded the shared deadline.
	StatusTimeout Status = "timeout"
	// StatusCancelled means the branch was cancelled by the framework
	// before the deadline expired.
	StatusCancelled Status = "cancelled"
)

// WorkflowResult is the read-only outcome record of one branch. It is created
// at branch completion and never mutated afterwards.
type WorkflowResult struct {
	Category  string        `json:"category"`
	Status    Status        `json:"status"`
	Reasoning []string      `json:"reasoning,omitempty"`
	Sources   []string      `json:"sources,omitempty"`
	Response  string        `json:"response,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Err       string        `json:"error,omitempty"`
}

// ChunkScore is one relevance verdict produced by the chunk filter.
type ChunkScore struct {
	Chunk    string `json:"chunk"`
	Relevant bool   `json:"relevant"`
	Score    int    `json:"score"` // 0..100
}

// ToolCall names a tool plus its keyword arguments. The dispatcher mutates
// Args exactly once (argument injection) before dispatch; afterwards the call
// is treated as immutable.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}
