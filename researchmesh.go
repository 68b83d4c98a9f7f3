// Package researchmesh provides a high-level façade over the workflow engine
// and its collaborators (models, tools, chunk filter, plan store, search)
// enabling concise construction of multi-step research agents. Most
// applications interact with this package by:
//  1. Creating a ResearchMesh via New() with a main reasoning model
//  2. Optionally overriding tools, plan store, search backend and observer
//  3. Invoking Run() with the raw user submission
//
// The façade delegates orchestration to workflow.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply an Elasticsearch-backed
// search, a Redis plan store and a structured logger.
package researchmesh

import (
	"context"
	"time"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/filter"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/planstore"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/tool"
	"github.com/hupe1980/researchmesh/workflow"
)

// Options configure a ResearchMesh instance.
type Options struct {
	// IntentModel, EntityModel, PlanningModel and ConclusionModel default
	// to the main model when nil.
	IntentModel     model.Model
	EntityModel     model.Model
	PlanningModel   model.Model
	ConclusionModel model.Model

	// FilterFactory builds the per-lane filter clients. Nil disables chunk
	// filtering.
	FilterFactory model.Factory

	// ModelFactory builds per-category reasoning clients for parallel
	// branches. Defaults to reusing the main model.
	ModelFactory model.Factory

	// Transport hosts the tools. Defaults to an in-process transport with
	// the built-in search and conclude tools.
	Transport tool.Transport

	// SearchBackend powers the built-in search tool on the default
	// transport. Ignored when Transport is set.
	SearchBackend search.Backend

	// Plans is the optional plan store. Nil skips example lookup and plan
	// persistence.
	Plans planstore.Store

	// ToolWhitelist restricts the tool catalogue per workflow category.
	ToolWhitelist map[string][]string

	// Run bounds.
	MaxIterations int
	MaxModelCalls int
	BranchTimeout time.Duration

	// MaxParallelBranches caps concurrent category branches; <= 0 runs all
	// at once.
	MaxParallelBranches int

	// Filter lane geometry.
	FilterMaxLanes      int
	FilterChunksPerLane int

	// Tool dispatch policy.
	ToolCallTimeout  time.Duration
	ToolMaxRetries   int
	ToolRetryBackoff time.Duration

	Observer core.Observer
	Logger   logging.Logger
}

// ResearchMesh is the high-level façade aggregating the engine and its
// collaborators.
type ResearchMesh struct {
	opts   Options
	engine *workflow.Engine
}

// New creates a ResearchMesh around the main reasoning model with optional
// overrides. Any unset collaborator is initialized with a local default.
func New(main model.Model, optFns ...func(o *Options)) *ResearchMesh {
	opts := Options{
		MaxIterations:       workflow.DefaultMaxIterations,
		BranchTimeout:       workflow.DefaultBranchTimeout,
		FilterMaxLanes:      filter.DefaultMaxLanes,
		FilterChunksPerLane: filter.DefaultChunksPerLane,
		ToolCallTimeout:     60 * time.Second,
		ToolMaxRetries:      3,
		ToolRetryBackoff:    time.Second,
		Observer:            core.NopObserver{},
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ConclusionModel == nil {
		opts.ConclusionModel = main
	}
	if opts.ModelFactory == nil {
		opts.ModelFactory = func() model.Model { return main }
	}

	transport := opts.Transport
	if transport == nil {
		local := tool.NewLocalTransport()
		if opts.SearchBackend != nil {
			local.Register(tool.NewSearchTool(opts.SearchBackend))
		}
		local.Register(tool.NewConcludeTool(opts.ConclusionModel))
		transport = local
	}

	dispatcher := tool.NewDispatcher(transport, func(o *tool.DispatcherOptions) {
		o.CallTimeout = opts.ToolCallTimeout
		o.MaxRetries = opts.ToolMaxRetries
		o.RetryBackoff = opts.ToolRetryBackoff
		o.Logger = opts.Logger
	})

	var chunkFilter *filter.Filter
	if opts.FilterFactory != nil {
		chunkFilter = filter.New(opts.FilterFactory, func(o *filter.Options) {
			o.MaxLanes = opts.FilterMaxLanes
			o.ChunksPerLane = opts.FilterChunksPerLane
			o.Observer = opts.Observer
			o.Logger = opts.Logger
		})
	}

	engineOpts := func(o *workflow.Options) {
		o.IntentModel = opts.IntentModel
		o.EntityModel = opts.EntityModel
		o.PlanningModel = opts.PlanningModel
		o.Dispatcher = dispatcher
		o.Filter = chunkFilter
		o.Plans = opts.Plans
		o.ToolWhitelist = opts.ToolWhitelist
		o.MaxIterations = opts.MaxIterations
		o.MaxModelCalls = opts.MaxModelCalls
		o.Observer = opts.Observer
		o.Logger = opts.Logger
	}

	var branches *workflow.BranchManager
	branches = workflow.NewBranchManager(func(category string) *workflow.Engine {
		branchMain := branches.Registry().Pool(category, opts.ModelFactory).Get(category)
		return workflow.New(branchMain, engineOpts)
	}, func(o *workflow.BranchOptions) {
		o.Timeout = opts.BranchTimeout
		o.MaxParallel = opts.MaxParallelBranches
		o.Observer = opts.Observer
		o.Logger = opts.Logger
	})

	engine := workflow.New(main, func(o *workflow.Options) {
		engineOpts(o)
		o.Branches = branches
	})

	return &ResearchMesh{opts: opts, engine: engine}
}

// Run executes one workflow for the raw user submission, which may be plain
// text or the structured JSON request shape.
func (m *ResearchMesh) Run(ctx context.Context, input string) (*core.WorkflowResult, error) {
	return m.engine.Run(ctx, input)
}

// Engine exposes the underlying workflow engine.
func (m *ResearchMesh) Engine() *workflow.Engine { return m.engine }
