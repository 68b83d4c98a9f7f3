package stream

import (
	"context"
	"strings"
)

// ThinkingMarker and AnswerMarker delimit the two sections of a model
// response. They must match the markers emitted by the model adapters.
var (
	ThinkingMarker = "\n" + strings.Repeat("=", 20) + "思考过程" + strings.Repeat("=", 20) + "\n"
	AnswerMarker   = "\n" + strings.Repeat("=", 20) + "完整回复" + strings.Repeat("=", 20) + "\n"
)

const (
	thinkStartTag = "<think>"
	thinkEndTag   = "</think>"
)

// Mode identifies the section a splitter is currently forwarding.
type Mode int

const (
	// ModeNone buffers input until the first marker arrives.
	ModeNone Mode = iota

	// ModeThinking forwards deltas to the thinking handler.
	ModeThinking

	// ModeAnswer forwards deltas to the content handler.
	ModeAnswer
)

// Handler receives one forwarded delta.
type Handler func(delta string)

// Splitter is a stateful demultiplexer over a token-delta stream. It is not
// safe for concurrent use; one splitter serves exactly one stream.
type Splitter struct {
	onThinking Handler
	onContent  Handler

	mode    Mode
	pending string
	full    strings.Builder
}

// NewSplitter creates a splitter forwarding thinking deltas to onThinking and
// answer deltas to onContent. Either handler may be nil to discard that
// section.
func NewSplitter(onThinking, onContent Handler) *Splitter {
	return &Splitter{
		onThinking: onThinking,
		onContent:  onContent,
	}
}

// Mode returns the section currently being forwarded.
func (s *Splitter) Mode() Mode {
	return s.mode
}

// Feed consumes one delta. Text arriving before the first marker is buffered.
// A delta containing a marker switches the mode; the marker itself and the
// buffered text preceding it are never forwarded. Markers are recognized even
// when split across multiple deltas because recognition runs against the
// accumulated pending buffer, not the delta alone.
func (s *Splitter) Feed(delta string) {
	if delta == "" {
		return
	}
	s.full.WriteString(delta)
	s.pending += delta

	switch {
	case s.mode != ModeThinking && strings.Contains(s.pending, ThinkingMarker):
		s.mode = ModeThinking
		s.pending = remainder(s.pending, ThinkingMarker)
	case s.mode != ModeAnswer && strings.Contains(s.pending, AnswerMarker):
		s.mode = ModeAnswer
		s.pending = remainder(s.pending, AnswerMarker)
	case s.mode == ModeThinking:
		s.forward(s.onThinking, delta)
	case s.mode == ModeAnswer:
		s.forward(s.onContent, delta)
	}
}

// Full returns every delta fed so far, markers included.
func (s *Splitter) Full() string {
	return s.full.String()
}

func (s *Splitter) forward(h Handler, delta string) {
	if h != nil {
		h(delta)
	}
}

func remainder(text, marker string) string {
	if idx := strings.Index(text, marker); idx >= 0 {
		return text[idx+len(marker):]
	}
	return text
}

// Collect drains a model delta stream through the splitter and returns the
// fully accumulated response. It stops on context cancellation or on the
// first stream error. A closed delta channel alone does not mean success: a
// failure may still be pending on the error channel, so it is drained before
// reporting a clean stream.
func (s *Splitter) Collect(ctx context.Context, deltas <-chan string, errs <-chan error) (string, error) {
	for deltas != nil {
		select {
		case <-ctx.Done():
			return s.Full(), ctx.Err()
		case delta, ok := <-deltas:
			if !ok {
				deltas = nil
				continue
			}
			s.Feed(delta)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return s.Full(), err
			}
		}
	}
	select {
	case err, ok := <-errs:
		if ok && err != nil {
			return s.Full(), err
		}
	default:
	}
	return s.Full(), nil
}

// ExtractFinalContent returns everything after the last answer marker, or the
// full text unchanged when the marker is absent. Applying it to its own
// output is a no-op.
func ExtractFinalContent(full string) string {
	if idx := strings.LastIndex(full, AnswerMarker); idx >= 0 {
		return full[idx+len(AnswerMarker):]
	}
	return full
}

// ExtractAnswer returns the trimmed content after the last closing think tag,
// or the full text unchanged when no tag is present.
func ExtractAnswer(full string) string {
	if idx := strings.LastIndex(full, thinkEndTag); idx >= 0 {
		return strings.TrimSpace(full[idx+len(thinkEndTag):])
	}
	return full
}

// ExtractThinking returns the trimmed content between the first think tag
// pair, or "" when either tag is missing.
func ExtractThinking(full string) string {
	start := strings.Index(full, thinkStartTag)
	end := strings.Index(full, thinkEndTag)
	if start < 0 || end < start+len(thinkStartTag) {
		return ""
	}
	return strings.TrimSpace(full[start+len(thinkStartTag) : end])
}
