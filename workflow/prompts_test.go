package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/tool"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    intentVerdict
	}{
		{
			name:    "fenced json",
			content: "```json\n{\"is_quick_response\": true, \"standard_answer\": \"直接答案\", \"workflow_categories\": [\"research-general\"]}\n```",
			want:    intentVerdict{QuickResponse: true, StandardAnswer: "直接答案", Categories: []string{"research-general"}},
		},
		{
			name:    "bare json",
			content: `{"is_quick_response": false, "standard_answer": "", "workflow_categories": ["a", "b"]}`,
			want:    intentVerdict{Categories: []string{"a", "b"}},
		},
		{
			name:    "json with surrounding prose",
			content: "结论如下：{\"is_quick_response\": false, \"workflow_categories\": [\"a\"]} 以上。",
			want:    intentVerdict{Categories: []string{"a"}},
		},
		{
			name:    "unparseable falls open",
			content: "我不确定。",
			want:    intentVerdict{},
		},
		{
			name:    "blank categories dropped",
			content: `{"workflow_categories": ["", "  ", "x"]}`,
			want:    intentVerdict{Categories: []string{"x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseIntent(tt.content))
		})
	}
}

func TestParseEntities(t *testing.T) {
	entities := parseEntities("```json\n[{\"device_name\": \"1号主变\", \"device_type\": \"变压器\", \"fault_type\": \"跳闸\", \"voltage_level\": \"110kV\"}]\n```")
	require.Len(t, entities, 1)
	assert.Equal(t, core.Entity{DeviceName: "1号主变", DeviceType: "变压器", FaultType: "跳闸", VoltageLevel: "110kV"}, entities[0])

	// A bare object is accepted as a one-element list.
	entities = parseEntities(`{"device_name": "水泵"}`)
	require.Len(t, entities, 1)
	assert.Equal(t, "水泵", entities[0].DeviceName)

	assert.Empty(t, parseEntities("[]"))
	assert.Nil(t, parseEntities("完全不是JSON"))
}

func TestRenderToolCatalogue(t *testing.T) {
	infos := []tool.Info{
		{Name: "search_documents", Description: "检索", InputSchema: map[string]any{"type": "object"}},
		{Name: "conclude_document_chunks", Description: "总结"},
	}

	all := renderToolCatalogue(infos, nil)
	assert.Contains(t, all, "Tool Name: search_documents")
	assert.Contains(t, all, "Tool Name: conclude_document_chunks")
	assert.Contains(t, all, `Parameters: {"type":"object"}`)

	filtered := renderToolCatalogue(infos, []string{"search_documents"})
	assert.Contains(t, filtered, "search_documents")
	assert.NotContains(t, filtered, "conclude_document_chunks")

	assert.Equal(t, "No tools available", renderToolCatalogue(infos, []string{}))
	assert.Equal(t, []string{"search_documents"}, toolNames(infos, []string{"search_documents"}))
}

func TestFormatMetadata(t *testing.T) {
	assert.Equal(t, "无额外信息", formatMetadata(nil))

	got := formatMetadata(map[string]any{
		"dev_name":            "1号主变",
		"recognized_entities": []string{"设备名称: 1号主变", "设备类型: 变压器"},
	})
	assert.Contains(t, got, "dev_name: 1号主变")
	assert.Contains(t, got, "设备名称: 1号主变; 设备类型: 变压器")
}

func TestBuildReasoningHistory(t *testing.T) {
	msgs := buildReasoningHistory([]core.ReasoningStep{
		core.ActionStep{Thought: "t", Action: "search_documents", Args: map[string]any{"query": "q"}},
		core.ObservationStep{Observation: "chunk"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleAssistant, msgs[0].Role)
	assert.Equal(t, core.RoleTool, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Observation: chunk")
}
