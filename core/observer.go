package core

import "time"

// Content phases reported through Observer.StreamingContent.
const (
	PhaseIntent    = "intent"
	PhaseEntity    = "entity"
	PhasePlanning  = "planning"
	PhaseReasoning = "reasoning"
)

// Content types reported through Observer.StreamingContent.
const (
	ContentThinking = "thinking"
	ContentOutput   = "output"
)

// Observer is the callback surface every component uses for progress
// reporting. A no-op implementation must be valid (batch contexts), and a
// streaming implementation must never block core execution on slow consumers.
//
// Implementations must tolerate concurrent calls: parallel branches and
// filter lanes report through the same observer.
type Observer interface {
	// StepStart and StepComplete bracket each named workflow step.
	StepStart(step string, metadata map[string]any)
	StepComplete(step string, metadata map[string]any)

	// StreamingContent delivers incremental model output, split into
	// thinking and output segments per phase.
	StreamingContent(phase, contentType, content string, metadata map[string]any)

	// WorkflowEvent reports coarse-grained lifecycle events (quick response
	// triggered, plan generated, branch started, ...).
	WorkflowEvent(eventType, content string, metadata map[string]any)

	// ToolCallStart and ToolCallComplete bracket each tool dispatch.
	ToolCallStart(tool string, args map[string]any, category string)
	ToolCallComplete(tool string, result string, category string)

	// FilterStart, FilterProgress and FilterComplete report chunk filter
	// passes: total counts, per-chunk verdicts and the final tally.
	FilterStart(totalChunks int, query, category string)
	FilterProgress(lane, chunkIndex int, chunk string, relevant bool, thinking, category string, score int)
	FilterComplete(totalChunks, relevantCount, droppedCount int, category string)
}

// NopObserver discards all notifications. It is the default observer for
// non-interactive use.
type NopObserver struct{}

func (NopObserver) StepStart(string, map[string]any)                           {}
func (NopObserver) StepComplete(string, map[string]any)                        {}
func (NopObserver) StreamingContent(string, string, string, map[string]any)    {}
func (NopObserver) WorkflowEvent(string, string, map[string]any)               {}
func (NopObserver) ToolCallStart(string, map[string]any, string)               {}
func (NopObserver) ToolCallComplete(string, string, string)                    {}
func (NopObserver) FilterStart(int, string, string)                            {}
func (NopObserver) FilterProgress(int, int, string, bool, string, string, int) {}
func (NopObserver) FilterComplete(int, int, int, string)                       {}

// StreamEvent is the single typed message shape emitted by ChannelObserver.
// Type identifies the callback; the remaining fields carry its payload.
type StreamEvent struct {
	Type        string         `json:"type"`
	Phase       string         `json:"phase,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Content     string         `json:"content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ChannelObserver forwards every callback as a StreamEvent on a buffered
// channel. When the consumer falls behind and the buffer is full, events are
// dropped rather than blocking the workflow.
type ChannelObserver struct {
	events chan StreamEvent
}

// NewChannelObserver creates a ChannelObserver with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelObserver{events: make(chan StreamEvent, buffer)}
}

// Events exposes the receive side of the event stream.
func (o *ChannelObserver) Events() <-chan StreamEvent { return o.events }

// Close closes the event channel. Call only after the run has finished.
func (o *ChannelObserver) Close() { close(o.events) }

func (o *ChannelObserver) emit(ev StreamEvent) {
	ev.Timestamp = time.Now().UTC()
	select {
	case o.events <- ev:
	default:
		// slow consumer; drop instead of stalling the run
	}
}

func (o *ChannelObserver) StepStart(step string, md map[string]any) {
	o.emit(StreamEvent{Type: "step_start", Content: step, Metadata: md})
}

func (o *ChannelObserver) StepComplete(step string, md map[string]any) {
	o.emit(StreamEvent{Type: "step_complete", Content: step, Metadata: md})
}

func (o *ChannelObserver) StreamingContent(phase, contentType, content string, md map[string]any) {
	o.emit(StreamEvent{Type: "streaming_content", Phase: phase, ContentType: contentType, Content: content, Metadata: md})
}

func (o *ChannelObserver) WorkflowEvent(eventType, content string, md map[string]any) {
	o.emit(StreamEvent{Type: eventType, Content: content, Metadata: md})
}

func (o *ChannelObserver) ToolCallStart(tool string, args map[string]any, category string) {
	o.emit(StreamEvent{Type: "tool_call_start", Content: tool, Metadata: map[string]any{"args": args, "category": category}})
}

func (o *ChannelObserver) ToolCallComplete(tool string, result string, category string) {
	o.emit(StreamEvent{Type: "tool_call_complete", Content: tool, Metadata: map[string]any{"result": result, "category": category}})
}

func (o *ChannelObserver) FilterStart(total int, query, category string) {
	o.emit(StreamEvent{Type: "filter_start", Metadata: map[string]any{"total_chunks": total, "query": query, "category": category}})
}

func (o *ChannelObserver) FilterProgress(lane, idx int, chunk string, relevant bool, thinking, category string, score int) {
	o.emit(StreamEvent{Type: "filter_progress", Content: truncate(chunk, 200), Metadata: map[string]any{
		"lane": lane, "chunk_index": idx, "relevant": relevant, "thinking": thinking, "category": category, "score": score,
	}})
}

func (o *ChannelObserver) FilterComplete(total, relevant, dropped int, category string) {
	o.emit(StreamEvent{Type: "filter_complete", Metadata: map[string]any{
		"total_chunks": total, "relevant_count": relevant, "dropped_count": dropped, "category": category,
	}})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
