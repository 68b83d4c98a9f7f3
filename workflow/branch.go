package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/templates"
)

// DefaultBranchTimeout bounds a parallel branch group when the caller passes
// no explicit deadline.
const DefaultBranchTimeout = 30 * time.Minute

// EngineFactory builds a fresh engine for one branch category. Each branch
// gets its own instance so concurrent branches never share run state or
// model clients.
type EngineFactory func(category string) *Engine

// Registry holds the per-category model pools and session contexts of one
// branch group. It is run-scoped: construct one per fan-out, Clear it when
// the group is merged.
type Registry struct {
	mu       sync.Mutex
	pools    map[string]*model.CategoryPool
	contexts map[string]*core.SessionContext
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pools:    make(map[string]*model.CategoryPool),
		contexts: make(map[string]*core.SessionContext),
	}
}

// Pool returns the model pool for a category, creating it from the factory
// on first use.
func (r *Registry) Pool(category string, factory model.Factory) *model.CategoryPool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[category]
	if !ok {
		pool = model.NewCategoryPool(factory)
		r.pools[category] = pool
	}
	return pool
}

// BindContext records the session context executing a category branch.
func (r *Registry) BindContext(category string, sc *core.SessionContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[category] = sc
}

// Context returns the session context bound to a category, or nil.
func (r *Registry) Context(category string) *core.SessionContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contexts[category]
}

// Clear releases all pools and contexts. Idempotent; branches still holding
// references keep working on their own copies.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pool := range r.pools {
		pool.Clear()
	}
	r.pools = make(map[string]*model.CategoryPool)
	r.contexts = make(map[string]*core.SessionContext)
}

// BranchOptions configure a BranchManager.
type BranchOptions struct {
	// Timeout is the shared deadline for one branch group when RunBranches
	// receives no explicit timeout.
	Timeout time.Duration

	// MaxParallel caps how many branches execute at once. <= 0 runs all
	// categories concurrently.
	MaxParallel int

	Observer core.Observer
	Logger   logging.Logger
}

// BranchManager fans a classified run out into one engine per category and
// merges the results. Branches run truly concurrently under one shared
// deadline; a branch failure never affects its siblings.
type BranchManager struct {
	newEngine EngineFactory
	registry  *Registry
	opts      BranchOptions
}

// NewBranchManager creates a manager around the engine factory.
func NewBranchManager(newEngine EngineFactory, optFns ...func(o *BranchOptions)) *BranchManager {
	opts := BranchOptions{
		Timeout:  DefaultBranchTimeout,
		Observer: core.NopObserver{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &BranchManager{
		newEngine: newEngine,
		registry:  NewRegistry(),
		opts:      opts,
	}
}

// Registry exposes the run-scoped registry, e.g. for inspection in tests.
func (m *BranchManager) Registry() *Registry { return m.registry }

// Clear releases the registry. Idempotent.
func (m *BranchManager) Clear() { m.registry.Clear() }

// RunBranches executes one branch per category against deep clones of the
// base session and returns a result per category. All branches share one
// deadline: timeout <= 0 uses the configured default. Deadline expiry marks
// unfinished branches timeout, parent cancellation marks them cancelled, and
// a panic or error inside a branch marks only that branch failed.
func (m *BranchManager) RunBranches(ctx context.Context, base *core.SessionContext, categories []string, timeout time.Duration) map[string]core.WorkflowResult {
	if timeout <= 0 {
		timeout = m.opts.Timeout
	}
	groupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.opts.Observer.WorkflowEvent("parallel_execution_start",
		fmt.Sprintf("starting %d parallel branches", len(categories)),
		map[string]any{"categories": categories})

	parallel := m.opts.MaxParallel
	if parallel <= 0 || parallel > len(categories) {
		parallel = len(categories)
	}
	sem := make(chan struct{}, parallel)

	results := make([]core.WorkflowResult, len(categories))
	var wg sync.WaitGroup
	for i, category := range categories {
		wg.Add(1)
		go func(idx int, category string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-groupCtx.Done():
				// The group deadline hit while this branch was still
				// queued behind the concurrency cap.
				results[idx] = core.WorkflowResult{
					Category: category,
					Status:   branchErrorStatus(groupCtx),
					Err:      groupCtx.Err().Error(),
				}
				return
			}
			defer func() { <-sem }()
			results[idx] = m.runBranch(groupCtx, base, category)
		}(i, category)
	}
	wg.Wait()

	out := make(map[string]core.WorkflowResult, len(categories))
	for i, category := range categories {
		out[category] = results[i]
		m.opts.Logger.Info("branch finished",
			"category", category,
			"status", string(results[i].Status),
			"elapsed", results[i].Elapsed,
		)
	}
	m.opts.Observer.WorkflowEvent("parallel_execution_complete",
		fmt.Sprintf("%d branches finished", len(categories)),
		map[string]any{"categories": categories})
	return out
}

// runBranch executes a single category branch, converting panics and context
// errors into terminal statuses.
func (m *BranchManager) runBranch(ctx context.Context, base *core.SessionContext, category string) (result core.WorkflowResult) {
	start := time.Now()
	result = core.WorkflowResult{Category: category}

	defer func() {
		result.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			result.Status = core.StatusFailed
			result.Err = fmt.Sprintf("branch panic: %v", r)
			result.Reasoning = nil
			result.Sources = nil
		}
	}()

	branch := base.Clone()
	branch.Category = category
	branch.Categories = []string{category}
	branch.Template = templates.GetOrDefault(category)
	branch.Plan = ""
	branch.PlanExample = ""
	branch.RetrievedPlanExample = false
	branch.Reasoning = nil
	branch.Sources = nil
	branch.RelevantChunks = nil
	m.registry.BindContext(category, branch)

	eng := m.newEngine(category)
	run, err := eng.Resume(ctx, branch)
	if err != nil {
		result.Status = branchErrorStatus(ctx)
		result.Err = err.Error()
		result.Reasoning = branch.ReasoningText()
		result.Sources = append([]string(nil), branch.Sources...)
		return result
	}

	result.Status = core.StatusCompleted
	result.Response = run.Response
	result.Reasoning = run.Reasoning
	result.Sources = run.Sources
	if len(result.Reasoning) == 0 {
		result.Reasoning = branch.ReasoningText()
	}
	if len(result.Sources) == 0 {
		result.Sources = append([]string(nil), branch.Sources...)
	}
	return result
}

// branchErrorStatus distinguishes group deadline expiry from framework
// cancellation and plain branch failure.
func branchErrorStatus(ctx context.Context) core.Status {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return core.StatusTimeout
	case context.Canceled:
		return core.StatusCancelled
	}
	return core.StatusFailed
}
