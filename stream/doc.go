// Package stream demultiplexes incrementally arriving model output into
// thinking and answer sections.
//
// The model integration layer separates a response into two sections using
// literal markers. A Splitter consumes token deltas, recognizes the markers
// even when they are split across deltas, and forwards each subsequent delta
// to the section-appropriate handler. Extraction helpers recover the final
// answer from a fully accumulated response, for both the section-marker
// format and the <think></think> tag format.
package stream
