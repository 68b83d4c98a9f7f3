package core

import "time"

// SessionContext is the mutable per-run state container threaded through one
// workflow engine instance. It is owned exclusively by that instance: no two
// steps of the same context ever execute concurrently, so access is not
// guarded by a lock. Sharing across parallel branches happens only through an
// explicit one-time Clone at branch creation.
type SessionContext struct {
	RunID string `json:"run_id"`

	// Conversation memory (ordered message list).
	Messages []Message `json:"messages"`

	// Current plan; empty until GeneratePlan produces one.
	Plan string `json:"plan"`

	// Append-only reasoning trace.
	Reasoning []ReasoningStep `json:"reasoning"`

	// Accumulated source snippets (tool outputs, filtered chunks).
	Sources []string `json:"sources"`

	// Entities recognized from the user input.
	Entities []Entity `json:"entities"`

	// Categories recognized by intent classification; the first one becomes
	// the selected category for single-branch runs.
	Categories []string `json:"categories"`

	// Category and template selected for this context.
	Category string `json:"category"`
	Template string `json:"template"`

	// Structured metadata parsed from the request plus merged entity facts.
	Metadata map[string]any `json:"metadata"`

	// Attachments carried through from the request, opaque to the engine.
	Attachments []string `json:"attachments"`

	// PlanExample caches the plan-store lookup result; RetrievedPlanExample
	// prevents repeated lookups when the store has no match.
	PlanExample          string `json:"plan_example"`
	RetrievedPlanExample bool   `json:"retrieved_plan_example"`

	// RelevantChunks caches the latest filter output for the summarize tool.
	RelevantChunks []string `json:"relevant_chunks"`

	Created time.Time `json:"created"`
}

// NewSessionContext creates an empty context with a fresh run identifier.
func NewSessionContext() *SessionContext {
	return &SessionContext{
		RunID:    NewID(),
		Metadata: map[string]any{},
		Created:  time.Now().UTC(),
	}
}

// AddMessage appends a message to the conversation memory.
func (sc *SessionContext) AddMessage(m Message) {
	sc.Messages = append(sc.Messages, m)
}

// LastUserMessage returns the content of the most recent user message, or ""
// if none exists.
func (sc *SessionContext) LastUserMessage() string {
	for i := len(sc.Messages) - 1; i >= 0; i-- {
		if sc.Messages[i].Role == RoleUser {
			return sc.Messages[i].Content
		}
	}
	return ""
}

// AppendStep appends one reasoning step to the trace.
func (sc *SessionContext) AppendStep(step ReasoningStep) {
	sc.Reasoning = append(sc.Reasoning, step)
}

// AppendSource appends one source snippet.
func (sc *SessionContext) AppendSource(src string) {
	sc.Sources = append(sc.Sources, src)
}

// ReasoningText renders the trace as plain lines for merging and reporting.
func (sc *SessionContext) ReasoningText() []string {
	lines := make([]string, 0, len(sc.Reasoning))
	for _, step := range sc.Reasoning {
		lines = append(lines, step.Content())
	}
	return lines
}

// MergeEntities folds recognized entities into the metadata map. A recognized
// field overwrites existing metadata only when the existing value is absent,
// empty or the literal string "null", so low-confidence extraction never
// clobbers user-supplied facts. Non-empty entity descriptions are collected
// under the "recognized_entities" key.
func (sc *SessionContext) MergeEntities(entities []Entity) {
	if len(entities) == 0 {
		return
	}
	if sc.Metadata == nil {
		sc.Metadata = map[string]any{}
	}

	var described []string
	for _, e := range entities {
		if e.DeviceName != "" && metadataEmpty(sc.Metadata["dev_name"]) {
			sc.Metadata["dev_name"] = e.DeviceName
		}
		if e.FaultType != "" && metadataEmpty(sc.Metadata["fault_type1"]) {
			sc.Metadata["fault_type1"] = e.FaultType
		}
		if desc := describeEntity(e); desc != "" {
			described = append(described, desc)
		}
	}
	if len(described) > 0 {
		sc.Metadata["recognized_entities"] = described
	}
	sc.Entities = append(sc.Entities, entities...)
}

func metadataEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && (s == "" || s == "null")
}

func describeEntity(e Entity) string {
	var desc string
	add := func(label, value string) {
		if value == "" {
			return
		}
		if desc != "" {
			desc += ", "
		}
		desc += label + ": " + value
	}
	add("device_name", e.DeviceName)
	add("device_type", e.DeviceType)
	add("fault_type", e.FaultType)
	add("voltage_level", e.VoltageLevel)
	return desc
}

// Clone returns a deep copy of the context safe for independent mutation in a
// parallel branch. Reasoning steps are immutable values, so the slice copy is
// sufficient isolation for them.
func (sc *SessionContext) Clone() *SessionContext {
	clone := &SessionContext{
		RunID:                sc.RunID,
		Plan:                 sc.Plan,
		Category:             sc.Category,
		Template:             sc.Template,
		PlanExample:          sc.PlanExample,
		RetrievedPlanExample: sc.RetrievedPlanExample,
		Created:              sc.Created,
		Messages:             make([]Message, len(sc.Messages)),
		Reasoning:            make([]ReasoningStep, len(sc.Reasoning)),
		Sources:              make([]string, len(sc.Sources)),
		Entities:             make([]Entity, len(sc.Entities)),
		Categories:           make([]string, len(sc.Categories)),
		Attachments:          make([]string, len(sc.Attachments)),
		RelevantChunks:       make([]string, len(sc.RelevantChunks)),
		Metadata:             make(map[string]any, len(sc.Metadata)),
	}
	copy(clone.Messages, sc.Messages)
	copy(clone.Reasoning, sc.Reasoning)
	copy(clone.Sources, sc.Sources)
	copy(clone.Entities, sc.Entities)
	copy(clone.Categories, sc.Categories)
	copy(clone.Attachments, sc.Attachments)
	copy(clone.RelevantChunks, sc.RelevantChunks)
	for k, v := range sc.Metadata {
		clone.Metadata[k] = deepCopyValue(v)
	}
	return clone
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case []string:
		cp := make([]string, len(t))
		copy(cp, t)
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = deepCopyValue(e)
		}
		return cp
	default:
		return v
	}
}
