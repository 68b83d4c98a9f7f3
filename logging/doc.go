// Package logging provides a minimal logging interface and adapters for ResearchMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the workflow engine, branch manager and tool layer use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - MeshLogger with contextual helpers (run, branch, component) and
//     domain-specific helpers for tools, model calls and filter passes
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
