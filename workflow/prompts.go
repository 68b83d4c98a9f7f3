package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/templates"
	"github.com/hupe1980/researchmesh/tool"
)

const intentPrompt = `你是一个意图识别助手。请分析下面的用户输入，判断它是否可以直接用一句标准回答解决（快速响应），以及它涉及哪些工作流程分类。

可选的工作流程分类：
%s

用户输入：
%s

请严格按照以下JSON格式输出，不要输出其他内容：
` + "```json" + `
{"is_quick_response": false, "standard_answer": "", "workflow_categories": ["research-general"]}
` + "```" + `
说明：
- 只有当问题非常简单、无需检索资料即可回答时，is_quick_response才为true，并在standard_answer中给出答案。
- workflow_categories从上面的可选分类中选择，可以为多个；无法判断时返回空列表。`

const entityPrompt = `请从下面的用户输入中识别出涉及的设备或对象实体。

用户输入：
%s

请以JSON列表输出识别结果，每个实体包含以下字段（没有识别到的字段留空字符串）：
` + "```json" + `
[{"device_name": "", "device_type": "", "fault_type": "", "voltage_level": ""}]
` + "```" + `
如果没有识别到任何实体，输出空列表 []。`

const planningPrompt = `你是一个研究规划助手。请针对用户问题制定一个分步骤的研究计划。

用户问题：
%s

历史计划示例（可能为空，仅供参考）：
%s

可用工具：
%s

参考工作流程模板（可能为空）：
%s

补充信息：
%s

要求：
1. 计划分为若干个有编号的步骤，每一步说明目标和可能用到的工具。
2. 计划应当覆盖资料检索、资料筛选与总结归纳。
3. 直接输出计划内容，不要输出其他说明。`

const planUpdatePrompt = `下面是当前的研究计划。请结合随后给出的推理过程和中间结论，更新这份计划：已完成的步骤标记为完成，并根据新的发现调整后续步骤。直接输出更新后的完整计划，不要输出其他说明。

当前计划：
%s`

const reactSystemHeader = `你是一个严谨的研究助手，使用下面的工具逐步解决用户的问题。

## 工具

你可以使用以下工具：
%s

可用工具名称：%s

## 输出格式

每轮回复必须使用以下三种格式之一。

需要调用工具时：
Thought: 当前的思考，说明为什么需要这个工具。
Action: 工具名称（必须是上面列出的工具之一）
Action Input: 工具参数，JSON格式，例如 {"query": "变压器故障"}

记录阶段性结论、暂不调用工具时：
Thought: 当前的思考。
Milestone: 阶段性结论。

可以给出最终答案时：
Thought: 我已经可以回答这个问题了。
Answer: 最终答案。

必须严格遵守以上格式，每轮只输出一种。

## 当前计划

%s

## 补充信息

%s`

// intentVerdict is the structured outcome of intent classification.
type intentVerdict struct {
	QuickResponse  bool
	StandardAnswer string
	Categories     []string
}

// parseIntent extracts the verdict from the model output. The JSON may
// arrive fenced or bare; anything unparseable yields a zero verdict so the
// run falls through to the normal flow.
func parseIntent(content string) intentVerdict {
	body := strings.TrimSpace(stripJSONFence(content))
	if !gjson.Valid(body) {
		if obj := firstJSONObject(body); obj != "" && gjson.Valid(obj) {
			body = obj
		} else {
			return intentVerdict{}
		}
	}
	parsed := gjson.Parse(body)
	var categories []string
	for _, c := range parsed.Get("workflow_categories").Array() {
		if s := strings.TrimSpace(c.String()); s != "" {
			categories = append(categories, s)
		}
	}
	return intentVerdict{
		QuickResponse:  parsed.Get("is_quick_response").Bool(),
		StandardAnswer: parsed.Get("standard_answer").String(),
		Categories:     categories,
	}
}

// parseEntities extracts the recognized entity list from the model output.
// A single object is accepted as a one-element list; unparseable output
// yields nil.
func parseEntities(content string) []core.Entity {
	body := strings.TrimSpace(stripJSONFence(content))
	var entities []core.Entity
	if err := json.Unmarshal([]byte(body), &entities); err == nil {
		return entities
	}
	var single core.Entity
	if obj := firstJSONObject(body); obj != "" {
		if err := json.Unmarshal([]byte(obj), &single); err == nil {
			return []core.Entity{single}
		}
	}
	return nil
}

// renderToolCatalogue formats the tool list for prompt inclusion, filtered
// by the category whitelist. A nil allow list exposes every tool.
func renderToolCatalogue(infos []tool.Info, allowed []string) string {
	allowedSet := map[string]struct{}{}
	for _, name := range allowed {
		allowedSet[name] = struct{}{}
	}

	var descs []string
	for _, info := range infos {
		if allowed != nil {
			if _, ok := allowedSet[info.Name]; !ok {
				continue
			}
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Tool Name: %s\n", info.Name)
		fmt.Fprintf(&b, "Description: %s\n", info.Description)
		if len(info.InputSchema) > 0 {
			schema, err := json.Marshal(info.InputSchema)
			if err == nil {
				fmt.Fprintf(&b, "Parameters: %s\n", schema)
			}
		}
		descs = append(descs, b.String())
	}
	if len(descs) == 0 {
		return "No tools available"
	}
	return strings.Join(descs, "\n")
}

// toolNames returns the whitelist-filtered tool names for the prompt header.
func toolNames(infos []tool.Info, allowed []string) []string {
	allowedSet := map[string]struct{}{}
	for _, name := range allowed {
		allowedSet[name] = struct{}{}
	}
	var names []string
	for _, info := range infos {
		if allowed != nil {
			if _, ok := allowedSet[info.Name]; !ok {
				continue
			}
		}
		names = append(names, info.Name)
	}
	return names
}

// formatMetadata renders the request metadata for prompt inclusion with
// stable key order.
func formatMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "无额外信息"
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		switch v := metadata[k].(type) {
		case []string:
			lines = append(lines, fmt.Sprintf("%s: %s", k, strings.Join(v, "; ")))
		default:
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

// categoryList renders the known workflow categories for the intent prompt.
func categoryList() string {
	names := templates.Categories()
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildReasoningHistory renders the trace as messages: observations take the
// tool role, everything else the assistant role.
func buildReasoningHistory(steps []core.ReasoningStep) []core.Message {
	var msgs []core.Message
	for _, step := range steps {
		role := core.RoleAssistant
		if _, ok := step.(core.ObservationStep); ok {
			role = core.RoleTool
		}
		msgs = append(msgs, core.Message{Role: role, Content: step.Content()})
	}
	return msgs
}
