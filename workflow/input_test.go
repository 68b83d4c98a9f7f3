package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_PlainText(t *testing.T) {
	req := ParseRequest("如何排查泵故障")

	assert.Equal(t, "如何排查泵故障", req.Input)
	assert.Empty(t, req.Metadata)
	assert.Empty(t, req.Attachments)
}

func TestParseRequest_GenericJSON(t *testing.T) {
	req := ParseRequest(`{"input": "排查故障", "metadata": {"region": "north"}, "attachments": ["a.pdf", 7]}`)

	assert.Equal(t, "排查故障", req.Input)
	assert.Equal(t, "north", req.Metadata["region"])
	assert.Equal(t, []string{"a.pdf"}, req.Attachments)
}

func TestParseRequest_QueryAlias(t *testing.T) {
	req := ParseRequest(`{"query": "排查故障", "metadata": {}}`)

	assert.Equal(t, "排查故障", req.Input)
}

func TestParseRequest_LegacyFields(t *testing.T) {
	req := ParseRequest(`{"faultDescr": "主变压器跳闸", "faultId": "F-100", "devId": "", "devName": "1号主变", "occurTime": "1700000000"}`)

	assert.Equal(t, "主变压器跳闸", req.Input)
	assert.Equal(t, "F-100", req.Metadata["event_id"])
	assert.Equal(t, "1号主变", req.Metadata["source_device_name"])
	// Empty legacy fields are dropped, not rendered as blanks.
	_, ok := req.Metadata["source_device_id"]
	assert.False(t, ok)

	got, ok := req.Metadata["event_time"].(string)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).Format("2006-01-02 15:04:05"), got)
}

func TestParseRequest_InvalidJSONFallsBackToText(t *testing.T) {
	raw := `{"input": broken`
	req := ParseRequest(raw)

	assert.Equal(t, raw, req.Input)
}

func TestFormatEventTime(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "already formatted", value: "2024-01-02 03:04:05", want: "2024-01-02 03:04:05"},
		{name: "not a timestamp", value: "yesterday", want: "yesterday"},
		{name: "odd digit count", value: "12345", want: "12345"},
		{name: "empty", value: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEventTime(tt.value))
		})
	}

	// Second and millisecond epochs normalize to the same instant.
	sec := formatEventTime("1700000000")
	ms := formatEventTime("1700000000000")
	assert.Equal(t, sec, ms)
}
