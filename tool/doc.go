// Package tool turns a reasoning step's action into a call against the tool
// execution transport, with schema-driven argument pruning, engine-side
// argument injection, retry with linear backoff, and normalization of
// tool-specific response shapes.
package tool
