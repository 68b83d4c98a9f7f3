package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/filter"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/planstore"
	"github.com/hupe1980/researchmesh/stream"
	"github.com/hupe1980/researchmesh/templates"
	"github.com/hupe1980/researchmesh/tool"
)

// Default run bounds.
const (
	DefaultMaxIterations = 20
)

// Options configure an Engine.
type Options struct {
	// IntentModel, EntityModel and PlanningModel default to the main model
	// when nil. Cheaper models are typical for intent and entity calls.
	IntentModel   model.Model
	EntityModel   model.Model
	PlanningModel model.Model

	// Dispatcher executes tool calls. A nil dispatcher turns every action
	// step into a parse-style observation error.
	Dispatcher *tool.Dispatcher

	// Filter judges search-result relevance. Nil disables filtering: all
	// chunks pass through.
	Filter *filter.Filter

	// Plans is the optional plan store for example lookup and persistence.
	Plans planstore.Store

	// Branches handles multi-category fan-out. Nil limits the engine to the
	// first recognized category.
	Branches *BranchManager

	// ToolWhitelist restricts the tool catalogue per category. The
	// "default" key applies to categories without an entry; a nil map
	// exposes all tools.
	ToolWhitelist map[string][]string

	// MaxIterations bounds reasoning rounds per run.
	MaxIterations int

	// MaxModelCalls caps model calls per run; 0 means unlimited.
	MaxModelCalls int

	Observer core.Observer
	Logger   logging.Logger
}

// Engine drives one workflow run at a time through the step sequence. The
// engine itself is stateless across runs; all mutable state lives in the
// per-run SessionContext, so a single engine value may serve sequential runs
// while parallel branches each get their own instance.
type Engine struct {
	main model.Model
	opts Options
}

// New creates an engine around the main reasoning model.
func New(main model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxIterations: DefaultMaxIterations,
		Observer:      core.NopObserver{},
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.IntentModel == nil {
		opts.IntentModel = main
	}
	if opts.EntityModel == nil {
		opts.EntityModel = main
	}
	if opts.PlanningModel == nil {
		opts.PlanningModel = main
	}
	return &Engine{main: main, opts: opts}
}

// Run executes one full workflow for the raw user submission. The submission
// may be plain text or the structured JSON request shape. Recoverable errors
// (intent, entity, parse, tool) are folded into the run; the returned error
// is reserved for fatal conditions such as cancellation, model failure in
// the reasoning path or exhausted run bounds.
func (e *Engine) Run(ctx context.Context, rawInput string) (*core.WorkflowResult, error) {
	req := ParseRequest(rawInput)

	session := core.NewSessionContext()
	session.Metadata = req.Metadata
	session.Attachments = req.Attachments
	session.AddMessage(core.NewUserMessage(req.Input))

	e.opts.Observer.StepStart("new_user_msg", map[string]any{"input": req.Input})
	e.opts.Observer.StepComplete("new_user_msg", map[string]any{"input": req.Input})

	return e.RunSession(ctx, session, startEvent{input: req.Input})
}

// Resume executes the planning and reasoning phases for an already prepared
// session, skipping intent and entity recognition. Branch execution enters
// here after the base run classified the input.
func (e *Engine) Resume(ctx context.Context, session *core.SessionContext) (*core.WorkflowResult, error) {
	return e.RunSession(ctx, session, planningEvent{input: session.LastUserMessage()})
}

// RunSession drives the event loop from the given entry event.
func (e *Engine) RunSession(ctx context.Context, session *core.SessionContext, entry event) (*core.WorkflowResult, error) {
	r := &run{
		eng:     e,
		session: session,
		limiter: core.NewModelLimiter(e.opts.MaxModelCalls),
	}
	return r.loop(ctx, entry)
}

// run holds the per-run state the engine threads through its steps.
type run struct {
	eng        *Engine
	session    *core.SessionContext
	limiter    *core.ModelLimiter
	iterations int
}

func (r *run) loop(ctx context.Context, ev event) (*core.WorkflowResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		switch e := ev.(type) {
		case startEvent:
			ev = intentEvent{input: e.input}
		case intentEvent:
			ev, err = r.intentCheck(ctx, e)
		case entityEvent:
			ev, err = r.entityExtract(ctx, e)
		case analysisEvent:
			ev, err = r.planGate(ctx, e)
		case planningEvent:
			ev, err = r.generatePlan(ctx, e)
		case prepEvent:
			ev, err = r.prepareHistory(ctx)
		case inputEvent:
			ev, err = r.reason(ctx, e)
		case toolCallEvent:
			ev, err = r.dispatchTools(ctx, e)
		case stopEvent:
			result := e.result
			return &result, nil
		default:
			return nil, fmt.Errorf("workflow: unhandled event %T", ev)
		}
		if err != nil {
			return nil, err
		}
	}
}

// intentCheck classifies the input. Any failure falls open into the normal
// flow with no categories set.
func (r *run) intentCheck(ctx context.Context, ev intentEvent) (event, error) {
	obs := r.eng.opts.Observer
	obs.StepStart("intent_recognition", map[string]any{"input": ev.input})

	prompt := fmt.Sprintf(intentPrompt, categoryList(), ev.input)
	full, err := r.stream(ctx, r.eng.opts.IntentModel, core.PhaseIntent, []core.Message{core.NewUserMessage(prompt)})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.eng.opts.Logger.Warn("intent recognition failed, continuing", "error", err)
		obs.StepComplete("intent_recognition", map[string]any{"error": err.Error(), "fallback_to_normal": true})
		return entityEvent{input: ev.input}, nil
	}

	verdict := parseIntent(stream.ExtractFinalContent(full))
	r.session.Categories = verdict.Categories

	if verdict.QuickResponse && verdict.StandardAnswer != "" {
		obs.WorkflowEvent("quick_response_triggered", verdict.StandardAnswer, map[string]any{"user_input": ev.input})
		obs.StepComplete("intent_recognition", map[string]any{"quick_response_triggered": true})
		return stopEvent{result: core.WorkflowResult{
			Category: r.session.Category,
			Status:   core.StatusCompleted,
			Response: verdict.StandardAnswer,
		}}, nil
	}

	obs.WorkflowEvent("intent_recognition_complete", "continuing normal flow", map[string]any{
		"workflow_categories": verdict.Categories,
	})
	obs.StepComplete("intent_recognition", map[string]any{"quick_response_triggered": false})
	return entityEvent{input: ev.input}, nil
}

// entityExtract recognizes entities and selects the category template. A
// failed extraction degrades to an empty entity list.
func (r *run) entityExtract(ctx context.Context, ev entityEvent) (event, error) {
	obs := r.eng.opts.Observer
	obs.StepStart("entity_recognition", map[string]any{"input": ev.input})

	var entities []core.Entity
	prompt := fmt.Sprintf(entityPrompt, ev.input)
	full, err := r.stream(ctx, r.eng.opts.EntityModel, core.PhaseEntity, []core.Message{core.NewUserMessage(prompt)})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.eng.opts.Logger.Warn("entity recognition failed, continuing", "error", err)
	} else {
		entities = parseEntities(stream.ExtractFinalContent(full))
	}

	template := ""
	if len(r.session.Categories) > 0 {
		r.session.Category = r.session.Categories[0]
		template = templates.GetOrDefault(r.session.Category)
	}
	r.session.Entities = entities
	r.session.Template = template
	r.session.MergeEntities(entities)

	obs.WorkflowEvent("entity_recognition_complete", fmt.Sprintf("recognized %d entities", len(entities)), map[string]any{
		"entities_count": len(entities),
	})
	obs.StepComplete("entity_recognition", map[string]any{"entities_count": len(entities)})

	return analysisEvent{input: ev.input, entities: entities, template: template}, nil
}

// planGate decides between single-category continuation and parallel
// fan-out. Zero categories continue without any template.
func (r *run) planGate(ctx context.Context, ev analysisEvent) (event, error) {
	categories := r.session.Categories

	if len(categories) > 1 && r.eng.opts.Branches != nil {
		branches := r.eng.opts.Branches
		results := branches.RunBranches(ctx, r.session, categories, 0)
		// Pools and bound contexts are run-scoped; release them once the
		// group has produced its results.
		branches.Clear()
		return stopEvent{result: mergeBranchResults(categories, results)}, nil
	}

	if len(categories) > 0 {
		r.session.Category = categories[0]
		if r.session.Template == "" {
			r.session.Template = templates.GetOrDefault(r.session.Category)
		}
	}
	return planningEvent{input: ev.input}, nil
}

// mergeBranchResults aggregates branch outcomes in the supplied category
// order. Failed branches surface as explicit notes; they never suppress the
// output of completed ones.
func mergeBranchResults(categories []string, results map[string]core.WorkflowResult) core.WorkflowResult {
	merged := core.WorkflowResult{
		Category: "综合",
		Status:   core.StatusCompleted,
		Response: fmt.Sprintf("并行执行完成，处理了 %d 个工作流程分类", len(categories)),
	}
	for _, category := range categories {
		result, ok := results[category]
		if !ok {
			merged.Reasoning = append(merged.Reasoning, fmt.Sprintf("[%s] 执行failed: 未获取到执行结果", category))
			continue
		}
		if result.Status == core.StatusCompleted {
			for _, line := range result.Reasoning {
				merged.Reasoning = append(merged.Reasoning, fmt.Sprintf("[%s] %s", category, line))
			}
			for _, src := range result.Sources {
				merged.Sources = append(merged.Sources, fmt.Sprintf("[%s] %s", category, src))
			}
			continue
		}
		errText := result.Err
		if errText == "" {
			errText = "未知错误"
		}
		merged.Reasoning = append(merged.Reasoning, fmt.Sprintf("[%s] 执行%s: %s", category, result.Status, errText))
	}
	return merged
}

// generatePlan produces the research plan. Re-entry with an existing plan is
// a no-op; the plan store is consulted at most once per run.
func (r *run) generatePlan(ctx context.Context, ev planningEvent) (event, error) {
	obs := r.eng.opts.Observer
	obs.StepStart("generate_plan", map[string]any{"input": ev.input})

	if strings.TrimSpace(r.session.Plan) != "" {
		obs.StepComplete("generate_plan", map[string]any{"plan_generated": false, "reused_existing": true})
		return prepEvent{}, nil
	}

	if r.session.PlanExample == "" && !r.session.RetrievedPlanExample && r.eng.opts.Plans != nil {
		example, err := r.eng.opts.Plans.GetPlan(ctx, ev.input, r.session.Category)
		if err != nil && !errors.Is(err, planstore.ErrNotFound) {
			r.eng.opts.Logger.Warn("plan example retrieval failed", "error", err)
		}
		r.session.RetrievedPlanExample = true
		if example != "" {
			r.session.PlanExample = example
		}
	}

	catalogue, _ := r.toolCatalogue(ctx)
	prompt := fmt.Sprintf(planningPrompt,
		ev.input,
		r.session.PlanExample,
		catalogue,
		r.session.Template,
		formatMetadata(r.session.Metadata),
	)
	full, err := r.stream(ctx, r.eng.opts.PlanningModel, core.PhasePlanning, []core.Message{core.NewUserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}
	plan := stream.ExtractFinalContent(full)
	r.session.Plan = plan

	if strings.TrimSpace(plan) != "" && r.eng.opts.Plans != nil {
		if err := r.eng.opts.Plans.PutPlan(ctx, ev.input, plan, r.session.Category); err != nil {
			r.eng.opts.Logger.Warn("plan persistence failed", "error", err)
		}
	}

	obs.WorkflowEvent("plan_generation_complete", truncatePlan(plan), map[string]any{
		"plan_generated": strings.TrimSpace(plan) != "",
	})
	obs.StepComplete("generate_plan", map[string]any{"plan_generated": strings.TrimSpace(plan) != ""})
	return prepEvent{}, nil
}

// prepareHistory refreshes the plan against the trace and assembles the
// message list for the next reasoning round.
func (r *run) prepareHistory(ctx context.Context) (event, error) {
	if strings.TrimSpace(r.session.Plan) != "" && len(r.session.Reasoning) > 0 {
		msgs := []core.Message{core.NewUserMessage(fmt.Sprintf(planUpdatePrompt, r.session.Plan))}
		msgs = append(msgs, buildReasoningHistory(r.session.Reasoning)...)
		for _, m := range r.session.Messages {
			if m.Role == core.RoleAssistant {
				msgs = append(msgs, m)
			}
		}

		full, err := r.stream(ctx, r.eng.opts.PlanningModel, core.PhasePlanning, msgs)
		if err != nil {
			return nil, fmt.Errorf("plan update failed: %w", err)
		}
		if updated := stream.ExtractFinalContent(full); strings.TrimSpace(updated) != "" {
			r.session.Plan = updated
		}
	}
	return inputEvent{messages: r.buildHistory(ctx)}, nil
}

// buildHistory renders system header, conversation and trace into the model
// input for one reasoning round.
func (r *run) buildHistory(ctx context.Context) []core.Message {
	catalogue, names := r.toolCatalogue(ctx)
	header := fmt.Sprintf(reactSystemHeader,
		catalogue,
		strings.Join(names, ", "),
		r.session.Plan,
		formatMetadata(r.session.Metadata),
	)

	msgs := []core.Message{{Role: core.RoleSystem, Content: header}}
	msgs = append(msgs, r.session.Messages...)
	msgs = append(msgs, buildReasoningHistory(r.session.Reasoning)...)
	return msgs
}

// reason executes one reasoning round. Parse failures are recoverable; the
// model sees the error as an observation in the next round.
func (r *run) reason(ctx context.Context, ev inputEvent) (event, error) {
	r.iterations++
	if limit := r.eng.opts.MaxIterations; limit > 0 && r.iterations > limit {
		return nil, fmt.Errorf("reasoning did not converge after %d iterations", limit)
	}

	obs := r.eng.opts.Observer
	obs.StepStart("llm_reasoning", map[string]any{"iteration": r.iterations})
	obs.WorkflowEvent("llm_request", "正在向模型发送推理请求...", r.categoryMetadata())

	full, err := r.stream(ctx, r.eng.main, core.PhaseReasoning, ev.messages)
	if err != nil {
		return nil, fmt.Errorf("reasoning model call failed: %w", err)
	}

	step, err := ParseReasoning(stream.ExtractFinalContent(full))
	if err != nil {
		r.session.AppendStep(core.ObservationStep{
			Observation: fmt.Sprintf("There was an error in parsing my reasoning: %v", err),
		})
		obs.StepComplete("llm_reasoning", map[string]any{"parse_error": err.Error()})
		return prepEvent{}, nil
	}
	r.session.AppendStep(step)
	obs.StepComplete("llm_reasoning", map[string]any{"step": step.Content()})

	switch s := step.(type) {
	case core.FinalStep:
		r.session.AddMessage(core.NewAssistantMessage(s.Response))
		return stopEvent{result: core.WorkflowResult{
			Category:  r.session.Category,
			Status:    core.StatusCompleted,
			Response:  s.Response,
			Reasoning: r.session.ReasoningText(),
			Sources:   append([]string(nil), r.session.Sources...),
		}}, nil
	case core.ActionStep:
		return toolCallEvent{calls: []core.ToolCall{{Name: s.Action, Args: s.Args}}}, nil
	case core.MilestoneStep:
		return prepEvent{}, nil
	default:
		return prepEvent{}, nil
	}
}

// dispatchTools executes the requested tool calls. Search results flow
// through the chunk filter before entering trace and sources; dispatch
// errors become observations and the loop continues.
func (r *run) dispatchTools(ctx context.Context, ev toolCallEvent) (event, error) {
	obs := r.eng.opts.Observer
	category := r.categoryOrDefault()

	for _, call := range ev.calls {
		if r.eng.opts.Dispatcher == nil {
			r.session.AppendStep(core.ObservationStep{
				Observation: fmt.Sprintf("tool %s is not available: no dispatcher configured", call.Name),
			})
			continue
		}

		obs.ToolCallStart(call.Name, call.Args, category)
		result, err := r.eng.opts.Dispatcher.Dispatch(ctx, call, r.session)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			obs.ToolCallComplete(call.Name, err.Error(), category)
			r.session.AppendStep(core.ObservationStep{Observation: fmt.Sprintf("tool %s failed: %v", call.Name, err)})
			continue
		}
		obs.ToolCallComplete(call.Name, result.Text, category)

		if result.IsSearch {
			chunks := result.Chunks
			query, _ := call.Args["query"].(string)
			if r.eng.opts.Filter != nil && query != "" {
				chunks = r.eng.opts.Filter.Filter(ctx, chunks, query, category)
			}
			r.session.RelevantChunks = chunks
			for _, chunk := range chunks {
				r.session.AppendSource(chunk)
			}
			r.session.AppendStep(core.ObservationStep{Observation: strings.Join(chunks, "\n\n")})
			continue
		}

		r.session.AppendSource(result.Text)
		r.session.AppendStep(core.ObservationStep{Observation: result.Text})
	}
	return prepEvent{}, nil
}

// stream runs one model call through the splitter, forwarding thinking and
// output segments to the observer.
func (r *run) stream(ctx context.Context, m model.Model, phase string, msgs []core.Message) (string, error) {
	if err := r.limiter.Increment(); err != nil {
		return "", err
	}

	md := r.categoryMetadata()
	obs := r.eng.opts.Observer
	sp := stream.NewSplitter(
		func(delta string) { obs.StreamingContent(phase, core.ContentThinking, delta, md) },
		func(delta string) { obs.StreamingContent(phase, core.ContentOutput, delta, md) },
	)
	deltas, errs := m.StreamChat(ctx, msgs)
	full, err := sp.Collect(ctx, deltas, errs)
	r.eng.opts.Logger.Debug("model call finished",
		"phase", phase,
		"calls_used", r.limiter.Used(),
		"calls_remaining", r.limiter.Remaining(),
	)
	return full, err
}

// toolCatalogue lists the tools visible to the current category, rendered
// for prompt inclusion. Transport failures degrade to an empty catalogue.
func (r *run) toolCatalogue(ctx context.Context) (string, []string) {
	if r.eng.opts.Dispatcher == nil {
		return "No tools available", nil
	}
	infos, err := r.eng.opts.Dispatcher.Transport().ListTools(ctx)
	if err != nil {
		r.eng.opts.Logger.Warn("listing tools failed", "error", err)
		return "No tools available", nil
	}
	allowed := r.allowedTools()
	return renderToolCatalogue(infos, allowed), toolNames(infos, allowed)
}

// allowedTools resolves the whitelist for the current category, falling back
// to the "default" entry, then to everything.
func (r *run) allowedTools() []string {
	mapping := r.eng.opts.ToolWhitelist
	if len(mapping) == 0 {
		return nil
	}
	if list, ok := mapping[r.session.Category]; ok {
		return list
	}
	return mapping["default"]
}

func (r *run) categoryOrDefault() string {
	if r.session.Category != "" {
		return r.session.Category
	}
	return templates.DefaultCategory
}

func (r *run) categoryMetadata() map[string]any {
	md := map[string]any{}
	if r.session.Category != "" {
		md["category"] = r.session.Category
	}
	return md
}

func truncatePlan(plan string) string {
	runes := []rune(plan)
	if len(runes) <= 200 {
		return plan
	}
	return string(runes[:200]) + "..."
}
