// Package workflow implements the step-based reasoning engine and the
// parallel branch manager on top of it.
//
// A single run moves through a fixed sequence of typed events: intent
// recognition, entity extraction, a plan gate that either continues with one
// category or fans out into parallel branches, plan generation, and a
// reasoning loop that alternates streaming model calls with tool dispatch
// until the model produces a final answer.
//
// The Engine owns no global state; every run operates on its own
// core.SessionContext, and parallel branches receive deep clones so they can
// never observe each other's mutations.
package workflow
