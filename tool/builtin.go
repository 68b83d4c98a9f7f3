package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/stream"
)

const conclusionPrompt = `请基于给定的文档资料，针对用户问题进行总结。

要求：
1. 只依据资料内容作答，不要编造信息
2. 结论应条理清晰，给出要点与依据
3. 如资料不足以回答问题，请明确说明

用户问题：%s

文档资料：
%s`

// NewSearchTool builds the document retrieval tool over a search backend.
// The category argument is injected by the dispatcher, never supplied by the
// model.
func NewSearchTool(backend search.Backend) LocalTool {
	return LocalTool{
		Info: Info{
			Name:        SearchTool,
			Description: "文档信息检索工具。基于查询语句进行检索，返回与问题相关的文档片段。",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "检索关键词",
					},
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			category, _ := args["category"].(string)
			if strings.TrimSpace(query) == "" {
				return "[]", nil
			}

			hits, err := backend.Search(ctx, query, category)
			if err != nil {
				return "", fmt.Errorf("document search: %w", err)
			}

			payload, err := json.Marshal(hits)
			if err != nil {
				return "", fmt.Errorf("document search: encode results: %w", err)
			}
			return string(payload), nil
		},
	}
}

// NewConcludeTool builds the chunk summarization tool. The doc_chunks
// argument is injected by the dispatcher from the session's cached relevant
// chunks.
func NewConcludeTool(m model.Model) LocalTool {
	return LocalTool{
		Info: Info{
			Name:        ConcludeTool,
			Description: "文档块总结工具。对检索到的文档块进行总结，生成针对查询问题的精炼回答。",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "用户的查询问题或总结目标",
					},
				},
			},
		},
		Timeout: 5 * time.Minute,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			chunks := stringSlice(args["doc_chunks"])
			if strings.TrimSpace(query) == "" || len(chunks) == 0 {
				return "", fmt.Errorf("query and document chunks must not be empty")
			}

			prompt := fmt.Sprintf(conclusionPrompt, query, strings.Join(chunks, "\n---\n"))
			raw, err := m.Complete(ctx, prompt)
			if err != nil {
				return "", fmt.Errorf("conclude chunks: %w", err)
			}

			conclusion := strings.TrimSpace(stream.ExtractAnswer(stream.ExtractFinalContent(raw)))
			return conclusion, nil
		},
	}
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
