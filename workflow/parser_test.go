package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

func TestParseReasoning_Action(t *testing.T) {
	text := "Thought: 需要检索资料。\nAction: search_documents\nAction Input: {\"query\": \"泵故障\"}"

	step, err := ParseReasoning(text)
	require.NoError(t, err)

	action, ok := step.(core.ActionStep)
	require.True(t, ok)
	assert.Equal(t, "需要检索资料。", action.Thought)
	assert.Equal(t, "search_documents", action.Action)
	assert.Equal(t, map[string]any{"query": "泵故障"}, action.Args)
}

func TestParseReasoning_ActionWithFencedInput(t *testing.T) {
	text := "Thought: 检索。\nAction: search_documents\nAction Input:\n```json\n{\"query\": \"变压器\", \"top\": 3}\n```\n以上是参数。"

	step, err := ParseReasoning(text)
	require.NoError(t, err)

	action, ok := step.(core.ActionStep)
	require.True(t, ok)
	assert.Equal(t, "变压器", action.Args["query"])
	assert.Equal(t, float64(3), action.Args["top"])
}

func TestParseReasoning_Final(t *testing.T) {
	step, err := ParseReasoning("Thought: 我已经可以回答了。\nAnswer: 检查油位即可。")
	require.NoError(t, err)

	final, ok := step.(core.FinalStep)
	require.True(t, ok)
	assert.True(t, final.Done())
	assert.Equal(t, "我已经可以回答了。", final.Thought)
	assert.Equal(t, "检查油位即可。", final.Response)
}

func TestParseReasoning_ImplicitAnswer(t *testing.T) {
	step, err := ParseReasoning("Answer: 直接作答。")
	require.NoError(t, err)

	final, ok := step.(core.FinalStep)
	require.True(t, ok)
	assert.Empty(t, final.Thought)
	assert.Equal(t, "直接作答。", final.Response)
}

func TestParseReasoning_Milestone(t *testing.T) {
	step, err := ParseReasoning("Thought: 第一阶段结束。\nMilestone: 已确认故障范围。")
	require.NoError(t, err)

	milestone, ok := step.(core.MilestoneStep)
	require.True(t, ok)
	assert.False(t, milestone.Done())
	assert.Equal(t, "已确认故障范围。", milestone.Milestone)
}

func TestParseReasoning_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: "   "},
		{name: "free text", text: "我认为应该先查资料。"},
		{name: "action without input", text: "Thought: x\nAction: search_documents"},
		{name: "action with invalid json", text: "Thought: x\nAction: search_documents\nAction Input: {broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReasoning(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestFirstJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": {"b": 1}}`, firstJSONObject(`prefix {"a": {"b": 1}} suffix`))
	assert.Equal(t, `{"s": "va}lue"}`, firstJSONObject(`{"s": "va}lue"}`))
	assert.Empty(t, firstJSONObject("no object here"))
	assert.Empty(t, firstJSONObject("{unterminated"))
}
