package core

import (
	"fmt"
	"sync"
)

// ModelLimiter caps the model calls one run may issue. All call sites of a
// run (intent, entity, planning, plan update, reasoning) increment the same
// limiter, so a runaway loop is cut off across phases rather than per phase.
// Branches carry their own limiter since each branch is its own run.
type ModelLimiter struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewModelLimiter creates a limiter allowing up to limit calls. A limit <= 0
// disables the cap.
func NewModelLimiter(limit int) *ModelLimiter {
	return &ModelLimiter{limit: limit}
}

// Increment records one model call and reports whether the cap is now
// exceeded. A call site receiving an error must not issue the call.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.used++
	if ml.limit > 0 && ml.used > ml.limit {
		return fmt.Errorf("exceeded max model calls: %d", ml.limit)
	}
	return nil
}

// Used returns the number of calls recorded so far.
func (ml *ModelLimiter) Used() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.used
}

// Remaining returns the calls left under the cap, or -1 when uncapped.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.limit <= 0 {
		return -1
	}
	return ml.limit - ml.used
}
