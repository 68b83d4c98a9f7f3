// Package filter judges the relevance of retrieved document chunks against
// the user query, concurrently across a fixed number of lanes.
//
// Each lane is an independent worker with its own model client processing
// its chunk batch strictly in order. Failure is handled in favor of recall:
// a chunk whose model call fails is kept as relevant with a neutral score,
// and a whole failed lane keeps all of its chunks.
package filter
