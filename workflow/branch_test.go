package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
)

// blockingModel never produces output; it only observes cancellation.
type blockingModel struct{}

func (blockingModel) Complete(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingModel) StreamChat(ctx context.Context, messages []core.Message) (<-chan string, <-chan error) {
	deltas := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(deltas)
		defer close(errs)
		<-ctx.Done()
		errs <- ctx.Err()
	}()
	return deltas, errs
}

func (blockingModel) Info() model.Info { return model.Info{Name: "blocking", Provider: "test"} }

// gaugedModel answers like a branch mock while tracking how many model calls
// run at the same time.
type gaugedModel struct {
	current  *atomic.Int32
	peak     *atomic.Int32
	category string
}

func (m gaugedModel) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (m gaugedModel) StreamChat(ctx context.Context, messages []core.Message) (<-chan string, <-chan error) {
	deltas := make(chan string, 1)
	errs := make(chan error)
	go func() {
		defer close(deltas)
		defer close(errs)
		cur := m.current.Add(1)
		for {
			p := m.peak.Load()
			if cur <= p || m.peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		m.current.Add(-1)
		deltas <- fmt.Sprintf("Thought: 完成。\nAnswer: %s 分支完成", m.category)
	}()
	return deltas, errs
}

func (m gaugedModel) Info() model.Info { return model.Info{Name: "gauged", Provider: "test"} }

func answeringFactory() EngineFactory {
	return func(category string) *Engine {
		m := model.NewMockModel("branch-" + category)
		m.SetFallback(fmt.Sprintf("Thought: 完成。\nAnswer: %s 分支完成", category))
		return New(m)
	}
}

func newBranchBase() *core.SessionContext {
	base := core.NewSessionContext()
	base.AddMessage(core.NewUserMessage("多分类查询"))
	return base
}

func TestBranchManager_DualCategoryCompleted(t *testing.T) {
	mgr := NewBranchManager(answeringFactory())
	base := newBranchBase()

	results := mgr.RunBranches(context.Background(), base, []string{"alpha", "beta"}, time.Minute)
	require.Len(t, results, 2)

	for _, category := range []string{"alpha", "beta"} {
		result := results[category]
		assert.Equal(t, core.StatusCompleted, result.Status, category)
		assert.Equal(t, category, result.Category)
		assert.Contains(t, result.Response, category+" 分支完成")
		assert.Empty(t, result.Err)
	}

	// Each branch ran on its own clone; the base context is untouched.
	assert.Empty(t, base.Plan)
	assert.Empty(t, base.Reasoning)
	assert.Empty(t, base.Category)

	alphaCtx := mgr.Registry().Context("alpha")
	require.NotNil(t, alphaCtx)
	assert.NotSame(t, base, alphaCtx)
	assert.Equal(t, "alpha", alphaCtx.Category)

	mgr.Clear()
	mgr.Clear()
	assert.Nil(t, mgr.Registry().Context("alpha"))
}

func TestBranchManager_MaxParallelCapsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	factory := func(category string) *Engine {
		return New(gaugedModel{current: &current, peak: &peak, category: category})
	}
	mgr := NewBranchManager(factory, func(o *BranchOptions) {
		o.MaxParallel = 1
	})

	results := mgr.RunBranches(context.Background(), newBranchBase(), []string{"alpha", "beta", "gamma"}, time.Minute)
	require.Len(t, results, 3)
	for _, category := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, core.StatusCompleted, results[category].Status, category)
	}

	// Branches were serialized by the cap.
	assert.Equal(t, int32(1), peak.Load())
}

func TestBranchManager_PartialFailure(t *testing.T) {
	answer := answeringFactory()
	mgr := NewBranchManager(func(category string) *Engine {
		if category == "beta" {
			panic("beta engine exploded")
		}
		return answer(category)
	})

	results := mgr.RunBranches(context.Background(), newBranchBase(), []string{"alpha", "beta", "gamma"}, time.Minute)

	assert.Equal(t, core.StatusCompleted, results["alpha"].Status)
	assert.Equal(t, core.StatusCompleted, results["gamma"].Status)

	beta := results["beta"]
	assert.Equal(t, core.StatusFailed, beta.Status)
	assert.Contains(t, beta.Err, "beta engine exploded")
}

func TestBranchManager_TimeoutIsolatedFromCompletion(t *testing.T) {
	answer := answeringFactory()
	mgr := NewBranchManager(func(category string) *Engine {
		if category == "slow" {
			return New(blockingModel{})
		}
		return answer(category)
	})

	start := time.Now()
	results := mgr.RunBranches(context.Background(), newBranchBase(), []string{"fast", "slow"}, 150*time.Millisecond)

	assert.Equal(t, core.StatusCompleted, results["fast"].Status)
	assert.Equal(t, core.StatusTimeout, results["slow"].Status)
	assert.NotEmpty(t, results["slow"].Err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBranchManager_ParentCancellation(t *testing.T) {
	mgr := NewBranchManager(func(category string) *Engine {
		return New(blockingModel{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results := mgr.RunBranches(ctx, newBranchBase(), []string{"zeta"}, time.Minute)
	assert.Equal(t, core.StatusCancelled, results["zeta"].Status)
}

func TestEngine_MultiCategoryFanOut(t *testing.T) {
	mgr := NewBranchManager(answeringFactory())

	main := model.NewMockModel("main-mock")
	eng := New(main, func(o *Options) {
		o.IntentModel = newIntentModel(`"alpha", "beta"`)
		o.EntityModel = newEntityModel()
		o.Branches = mgr
	})

	result, err := eng.Run(context.Background(), "需要两个分类的问题")
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, "综合", result.Category)
	assert.Contains(t, result.Response, "2 个工作流程分类")

	// Merged trace lines carry category prefixes in supplied order.
	var alphaIdx, betaIdx int
	for i, line := range result.Reasoning {
		if strings.HasPrefix(line, "[alpha] ") && alphaIdx == 0 {
			alphaIdx = i + 1
		}
		if strings.HasPrefix(line, "[beta] ") && betaIdx == 0 {
			betaIdx = i + 1
		}
	}
	require.NotZero(t, alphaIdx)
	require.NotZero(t, betaIdx)
	assert.Less(t, alphaIdx, betaIdx)

	// The registry is released once the group merges, so a later run on the
	// same engine never sees this run's pools or contexts.
	assert.Nil(t, mgr.Registry().Context("alpha"))
	assert.Nil(t, mgr.Registry().Context("beta"))
}
