package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/researchmesh/core"
)

// Parse errors are recoverable: the engine appends them to the trace as an
// observation and lets the model retry with the error in view.

var (
	answerPattern    = regexp.MustCompile(`(?s)Thought:\s*(.*?)Answer:\s*(.*)`)
	actionPattern    = regexp.MustCompile(`(?s)Thought:\s*(.*?)Action:\s*([^\n]+)\n+\s*Action Input:\s*(.*)`)
	milestonePattern = regexp.MustCompile(`(?s)Thought:\s*(.*?)Milestone:\s*(.*)`)
)

// ParseReasoning turns one reasoning-round output into a trace step. The
// accepted notations are, in order of precedence:
//
//	Thought: ... Answer: ...          -> core.FinalStep
//	Thought: ... Action: ...
//	Action Input: {...}               -> core.ActionStep
//	Thought: ... Milestone: ...       -> core.MilestoneStep
//
// An answer without a leading Thought is accepted as an implicit final step.
func ParseReasoning(output string) (core.ReasoningStep, error) {
	text := strings.TrimSpace(output)
	if text == "" {
		return nil, fmt.Errorf("empty reasoning output")
	}

	switch {
	case strings.Contains(text, "Answer:"):
		if m := answerPattern.FindStringSubmatch(text); m != nil {
			return core.FinalStep{
				Thought:  strings.TrimSpace(m[1]),
				Response: strings.TrimSpace(m[2]),
			}, nil
		}
		// No Thought section; everything after the keyword is the answer.
		answer := text[strings.Index(text, "Answer:")+len("Answer:"):]
		return core.FinalStep{Response: strings.TrimSpace(answer)}, nil

	case strings.Contains(text, "Action:"):
		m := actionPattern.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("could not extract tool use from input text: %q", text)
		}
		args, err := parseActionInput(m[3])
		if err != nil {
			return nil, fmt.Errorf("could not parse action input: %w", err)
		}
		return core.ActionStep{
			Thought: strings.TrimSpace(m[1]),
			Action:  strings.TrimSpace(m[2]),
			Args:    args,
		}, nil

	case strings.Contains(text, "Milestone:"):
		if m := milestonePattern.FindStringSubmatch(text); m != nil {
			return core.MilestoneStep{
				Thought:   strings.TrimSpace(m[1]),
				Milestone: strings.TrimSpace(m[2]),
			}, nil
		}
		return nil, fmt.Errorf("could not extract milestone from input text: %q", text)
	}

	return nil, fmt.Errorf("could not parse output: %q", text)
}

// parseActionInput decodes the keyword arguments of an action. The model may
// wrap the object in a ```json fence or append trailing prose, so decoding
// works on the first balanced JSON object found in the text.
func parseActionInput(raw string) (map[string]any, error) {
	text := stripJSONFence(raw)
	obj := firstJSONObject(text)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in %q", strings.TrimSpace(raw))
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(obj), &args); err != nil {
		return nil, err
	}
	return args, nil
}

var jsonFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// stripJSONFence unwraps a fenced code block, returning the text unchanged
// when no fence is present.
func stripJSONFence(text string) string {
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// firstJSONObject returns the first brace-balanced object in text, ignoring
// braces inside string literals.
func firstJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
