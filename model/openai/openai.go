// Package openai implements model.Model on top of the OpenAI Chat
// Completions API. Reasoning deltas exposed by reasoning-capable backends
// (the `reasoning_content` field used by DashScope/DeepSeek-compatible
// endpoints) are wrapped in the stream package's section markers so the
// splitter can demux thinking from answer content.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/stream"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements model.Model via a non-streaming chat completion. When
// the backend returns reasoning content, the result carries both sections
// delimited by the standard markers.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	params := m.buildParams([]openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(prompt),
	})

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api error: empty choices")
	}

	msg := resp.Choices[0].Message
	if reasoning := extraField(msg.JSON.ExtraFields, "reasoning_content"); reasoning != "" {
		return stream.ThinkingMarker + reasoning + stream.AnswerMarker + msg.Content, nil
	}
	return msg.Content, nil
}

// StreamChat implements model.Model via a streaming chat completion. The
// thinking marker is emitted before the first reasoning delta and the answer
// marker before the first content delta, matching the splitter's contract.
func (m *Model) StreamChat(ctx context.Context, messages []core.Message) (<-chan string, <-chan error) {
	deltas := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		params := m.buildParams(buildMessages(messages))
		s := m.client.Chat.Completions.NewStreaming(ctx, params)

		emit := func(text string) bool {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return false
			case deltas <- text:
				return true
			}
		}

		thinking := false
		answering := false
		for s.Next() {
			ck := s.Current()
			for _, ch := range ck.Choices {
				if reasoning := extraField(ch.Delta.JSON.ExtraFields, "reasoning_content"); reasoning != "" {
					if !thinking {
						thinking = true
						if !emit(stream.ThinkingMarker) {
							return
						}
					}
					if !emit(reasoning) {
						return
					}
				}
				if ch.Delta.Content != "" {
					if !answering {
						answering = true
						if !emit(stream.AnswerMarker) {
							return
						}
					}
					if !emit(ch.Delta.Content) {
						return
					}
				}
			}
		}
		if err := s.Err(); err != nil {
			errs <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return deltas, errs
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai"}
}

func (m *Model) buildParams(messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
}

// buildMessages converts conversation messages into OpenAI chat messages.
func buildMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

type rawField interface {
	Raw() string
}

func extraField[F rawField](fields map[string]F, key string) string {
	f, ok := fields[key]
	if !ok {
		return ""
	}
	return gjson.Parse(f.Raw()).String()
}
