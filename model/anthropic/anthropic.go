// Package anthropic implements model.Model on top of the Anthropic Messages
// API. Extended-thinking blocks are wrapped in the stream package's section
// markers so the splitter can demux thinking from answer content.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/stream"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Complete implements model.Model via a non-streaming message. Thinking
// blocks, when present, precede the text sections delimited by the standard
// markers.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	params := m.buildParams([]core.Message{core.NewUserMessage(prompt)})

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var thinking, text string
	for _, block := range resp.Content {
		switch block.Type {
		case "thinking":
			thinking += block.AsThinking().Thinking
		case "text":
			text += block.AsText().Text
		}
	}
	if thinking != "" {
		return stream.ThinkingMarker + thinking + stream.AnswerMarker + text, nil
	}
	return text, nil
}

// StreamChat implements model.Model via a streaming message. The thinking
// marker is emitted before the first thinking delta and the answer marker
// before the first text delta, matching the splitter's contract.
func (m *Model) StreamChat(ctx context.Context, messages []core.Message) (<-chan string, <-chan error) {
	deltas := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		s := m.client.Messages.NewStreaming(ctx, m.buildParams(messages))

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
			event := s.Current()
			ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.ThinkingDelta:
				if delta.Thinking == "" {
					continue
				}
				if !thinking {
					thinking = true
					if !emit(stream.ThinkingMarker) {
						return
					}
				}
				if !emit(delta.Thinking) {
					return
				}
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				if !answering {
					answering = true
					if !emit(stream.AnswerMarker) {
						return
					}
				}
				if !emit(delta.Text) {
					return
				}
			}
		}
		if err := s.Err(); err != nil {
			errs <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return deltas, errs
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic"}
}

func (m *Model) buildParams(messages []core.Message) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case core.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return params
}
