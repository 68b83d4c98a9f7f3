package workflow

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Request is the normalized form of one user submission.
type Request struct {
	Input       string
	Metadata    map[string]any
	Attachments []string
}

// ParseRequest accepts plain text or a JSON object and normalizes it into a
// Request. Three JSON shapes are understood:
//
//	{"input": "...", "metadata": {...}, "attachments": [...]}
//	{"query": "...", "metadata": {...}, "attachments": [...]}
//
// plus a legacy fault-report shape (occurTime, faultId, devId, devName,
// faultDescr) whose fields are mapped into generic metadata keys. Anything
// that is not a JSON object is treated as the raw input text.
func ParseRequest(raw string) Request {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var data map[string]any
		if err := json.Unmarshal([]byte(trimmed), &data); err == nil {
			return requestFromJSON(data)
		}
	}
	return Request{Input: raw, Metadata: map[string]any{}}
}

func requestFromJSON(data map[string]any) Request {
	_, hasInput := data["input"]
	_, hasMetadata := data["metadata"]
	_, hasAttachments := data["attachments"]
	if hasInput || hasMetadata || hasAttachments {
		return Request{
			Input:       stringValue(data["input"]),
			Metadata:    mapValue(data["metadata"]),
			Attachments: stringList(data["attachments"]),
		}
	}
	if _, hasQuery := data["query"]; hasQuery {
		return Request{
			Input:       stringValue(data["query"]),
			Metadata:    mapValue(data["metadata"]),
			Attachments: stringList(data["attachments"]),
		}
	}

	// Legacy fault-report fields map onto generic metadata keys. Empty
	// values are dropped so downstream prompts never render blanks.
	metadata := map[string]any{}
	put := func(key, value string) {
		if value != "" {
			metadata[key] = value
		}
	}
	put("event_time", formatEventTime(stringValue(data["occurTime"])))
	put("event_id", stringValue(data["faultId"]))
	put("source_device_id", stringValue(data["devId"]))
	put("source_device_name", stringValue(data["devName"]))

	return Request{
		Input:       stringValue(data["faultDescr"]),
		Metadata:    metadata,
		Attachments: stringList(data["attachments"]),
	}
}

const eventTimeLayout = "2006-01-02 15:04:05"

// formatEventTime normalizes epoch timestamps to a wall-clock string.
// Values already in layout form pass through; ten-digit values are taken as
// seconds and thirteen-digit values as milliseconds. Anything else is
// returned unchanged.
func formatEventTime(value string) string {
	if value == "" {
		return ""
	}
	if _, err := time.Parse(eventTimeLayout, value); err == nil {
		return value
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return value
	}
	switch len(strconv.FormatInt(n, 10)) {
	case 13:
		return time.UnixMilli(n).Format(eventTimeLayout)
	case 10:
		return time.Unix(n, 0).Format(eventTimeLayout)
	default:
		return value
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON numbers decode to float64; epoch timestamps fit exactly.
		return strconv.FormatInt(int64(s), 10)
	case nil:
		return ""
	default:
		return ""
	}
}

func mapValue(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
