// Package core provides the foundational domain types and interfaces used by
// ResearchMesh. It defines the core abstractions for:
//
//   - SessionContext (the mutable state container threaded through one engine run)
//   - ReasoningStep (the closed tagged union of reasoning trace entries)
//   - WorkflowResult (per-branch outcome records)
//   - Observer (the callback surface used for progress reporting)
//   - ModelLimiter (per-run model call budget enforcement)
//
// The package intentionally keeps implementation concerns (engine orchestration,
// model providers, tool transports) out of scope, exposing small types to enable
// custom backends and extensions.
package core
