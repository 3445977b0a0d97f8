package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/parley/ai/backend"
	"github.com/hrygo/parley/ai/core/llm"
	"github.com/hrygo/parley/ai/events"
	"github.com/hrygo/parley/ai/metrics"
	"github.com/hrygo/parley/ai/prompt"
	"github.com/hrygo/parley/ai/routing"
	"github.com/hrygo/parley/ai/toolcall"
)

// Orchestrator owns the turn state machine. All collaborators are
// read-only after construction, so one orchestrator serves concurrent
// requests without locking.
type Orchestrator struct {
	classifier *routing.Classifier
	registry   *backend.Registry
	composer   *prompt.Composer
	client     llm.Client
	catalog    *toolcall.Catalog
	injector   *toolcall.Injector
	executor   *toolcall.Executor
	decomposer *Decomposer
	synth      *Synthesizer
	exporter   *metrics.PrometheusExporter
	config     *Config
}

// New creates an orchestrator. The exporter may be nil when metrics are
// not collected.
func New(
	client llm.Client,
	registry *backend.Registry,
	catalog *toolcall.Catalog,
	executor *toolcall.Executor,
	exporter *metrics.PrometheusExporter,
	opts ...Option,
) *Orchestrator {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	return &Orchestrator{
		classifier: routing.NewClassifier(),
		registry:   registry,
		composer:   prompt.NewComposer(catalog),
		client:     client,
		catalog:    catalog,
		injector:   toolcall.NewInjector(catalog),
		executor:   executor,
		decomposer: NewDecomposer(config.MaxSubTasks),
		synth:      NewSynthesizer(),
		exporter:   exporter,
		config:     config,
	}
}

// ProcessTurn answers one request, emitting typed events through cb as
// it goes. The turn always reaches Done with some reply; per-request
// errors degrade the reply rather than propagating.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req Request, cb events.Callback) *Turn {
	turn := newTurn(req)
	emit := events.WrapSafe(cb)

	ctx, cancel := context.WithTimeout(ctx, o.config.TurnBudget)
	defer cancel()

	if o.exporter != nil {
		o.exporter.TurnStarted()
		defer o.exporter.TurnFinished()
		defer func() {
			// A turn that bottomed out on the reply of last resort is a
			// degraded turn, not a success.
			success := !strings.HasSuffix(turn.FinalReply, fallbackReply)
			o.exporter.RecordTurn(string(turn.Classification.Class), turnMode(turn), time.Since(turn.start), success)
		}()
	}

	classifyStart := time.Now()
	turn.Classification = o.classifier.Classify(req.Utterance, req.HasMedia)
	turn.mark("classify", classifyStart)

	slog.Info("orchestrator: classified",
		"turn_id", turn.ID,
		"class", turn.Classification.Class,
		"confidence", turn.Classification.Confidence)

	if o.exporter != nil {
		o.exporter.RecordClassification(string(turn.Classification.Class))
	}
	o.send(emit, events.TypeClassification, events.ClassificationEvent{
		Class:      string(turn.Classification.Class),
		Confidence: turn.Classification.Confidence,
	})

	if tasks := o.decomposer.Split(req.Utterance); len(tasks) > 1 {
		o.runDecomposed(ctx, turn, tasks, emit, "compound", "")
		return turn
	}

	if streamed, err := o.runSingleShot(ctx, turn, emit); err != nil {
		slog.Warn("orchestrator: single-shot failed, decomposing",
			"turn_id", turn.ID,
			"error", err)
		o.runDecomposed(ctx, turn, o.decomposer.SplitOrWhole(req.Utterance), emit, "timeout", streamed)
		return turn
	}

	o.finish(turn, emit)
	return turn
}

// runSingleShot drives the classify-to-synthesize chain for one
// utterance. A generation failure is returned to the caller along with
// the delta text already streamed, so the decomposition fallback can
// account for it; everything after generation degrades in place.
func (o *Orchestrator) runSingleShot(ctx context.Context, turn *Turn, emit events.SafeCallback) (string, error) {
	req := turn.Request

	profile, err := o.registry.Resolve(turn.Classification.Class)
	if err != nil {
		// Boot validation makes this unreachable; degrade anyway.
		slog.Error("orchestrator: no backend profile", "class", turn.Classification.Class, "error", err)
		turn.FinalReply = fallbackReply
		o.send(emit, events.TypeDelta, events.DeltaEvent{Text: fallbackReply})
		return "", nil
	}

	turn.State = StateInjecting
	injected := o.injector.TryInject(req.Utterance, turn.Classification.Class)
	if injected != nil && o.exporter != nil {
		o.exporter.RecordInjection(injected.Tool)
	}

	turn.State = StateComposing
	composeStart := time.Now()
	system := o.composer.Compose(profile)
	messages := llm.FormatMessages(system, req.Utterance, req.History)
	turn.mark("compose", composeStart)

	turn.State = StateGenerating
	genStart := time.Now()
	extractor := toolcall.NewExtractor(o.catalog)

	genCtx, genCancel := context.WithTimeout(ctx, o.generationBudget(ctx))
	defer genCancel()

	contentChan, statsChan, errChan := o.client.GenerateStream(genCtx, profile, messages)

	emitted := 0
	for delta := range contentChan {
		extractor.Feed(delta)
		if visible := extractor.Visible(); len(visible) > emitted {
			o.send(emit, events.TypeDelta, events.DeltaEvent{Text: visible[emitted:]})
			emitted = len(visible)
		}
	}
	genErr := <-errChan
	stats := <-statsChan
	turn.mark("generate", genStart)

	if stats != nil && o.exporter != nil {
		o.exporter.RecordGeneration(profile.Model, string(turn.Classification.Class), time.Since(genStart))
		o.exporter.RecordGenerationTokens(profile.Model, "prompt", stats.PromptTokens)
		o.exporter.RecordGenerationTokens(profile.Model, "completion", stats.CompletionTokens)
	}

	if genErr != nil {
		return extractor.Visible()[:emitted], genErr
	}

	turn.State = StateExtracting
	invocation := extractor.Finish()
	if visible := extractor.Visible(); len(visible) > emitted {
		o.send(emit, events.TypeDelta, events.DeltaEvent{Text: visible[emitted:]})
	}

	// The model-emitted invocation wins; the injected one is the
	// fallback when the model produced nothing valid.
	if invocation == nil {
		invocation = injected
	}

	o.executeAndSynthesize(ctx, turn, invocation, extractor.Visible(), emit)
	return "", nil
}

// executeAndSynthesize runs at most one tool invocation and assembles
// the final reply.
func (o *Orchestrator) executeAndSynthesize(ctx context.Context, turn *Turn, invocation *toolcall.Invocation, prose string, emit events.SafeCallback) {
	if invocation != nil {
		turn.State = StateExecuting
		turn.Invocation = invocation

		o.send(emit, events.TypeToolStart, events.ToolStartEvent{
			Tool:   invocation.Tool,
			Source: string(invocation.Source),
		})

		execStart := time.Now()
		result := o.executor.Execute(ctx, invocation, turn.Request.CallerID)
		turn.mark("execute", execStart)
		turn.Result = result

		if o.exporter != nil {
			o.exporter.RecordToolExecution(invocation.Tool, string(invocation.Source),
				time.Since(execStart), result.Success, string(result.ErrorKind))
		}
		o.send(emit, events.TypeToolResult, events.ToolResultEvent{
			Tool:      invocation.Tool,
			Success:   result.Success,
			ErrorKind: string(result.ErrorKind),
			Message:   result.Message,
		})
	}

	turn.State = StateSynthesizing
	turn.FinalReply = o.synth.SingleShot(prose, turn.Result)
	// The prose was already streamed delta by delta; emit only what the
	// synthesizer appended so the delta concatenation equals the reply.
	if tail := strings.TrimPrefix(turn.FinalReply, prose); tail != "" {
		o.send(emit, events.TypeDelta, events.DeltaEvent{Text: tail})
	}
}

// runDecomposed splits the turn into sub-tasks, executes them under the
// dependency scheduler, and synthesizes one combined reply. Each
// sub-task gets an equal share of the remaining budget so the shares
// never sum past the parent deadline. streamed is the delta text a
// preceding single-shot attempt already emitted; it is folded into the
// reply so the delta concatenation still reconstructs it.
func (o *Orchestrator) runDecomposed(ctx context.Context, turn *Turn, tasks []*SubTask, emit events.SafeCallback, trigger, streamed string) {
	turn.State = StateDecomposing
	turn.Decomposed = true

	slog.Info("orchestrator: decomposing",
		"turn_id", turn.ID,
		"trigger", trigger,
		"sub_tasks", len(tasks))

	if o.exporter != nil {
		o.exporter.RecordDecomposition(trigger)
	}

	subBudget := o.remainingBudget(ctx) / time.Duration(len(tasks))

	decomposeStart := time.Now()
	run := func(ctx context.Context, st *SubTask) {
		st.MarkRunning()
		o.send(emit, events.TypeSubtaskStart, events.SubtaskEvent{ID: st.ID, Fragment: st.Fragment})

		subCtx, cancel := context.WithTimeout(ctx, subBudget)
		defer cancel()

		subTurn, err := o.runSubTurn(subCtx, st.Fragment, turn.Request)
		if err != nil {
			st.Fail(err.Error())
		} else {
			st.Complete(subTurn)
		}

		o.send(emit, events.TypeSubtaskEnd, events.SubtaskEvent{
			ID:       st.ID,
			Fragment: st.Fragment,
			Status:   string(st.Status()),
		})
	}

	sched, err := newScheduler(tasks, o.config.MaxParallelSubTasks, run)
	if err != nil {
		slog.Error("orchestrator: scheduler setup failed", "turn_id", turn.ID, "error", err)
		reply, delta := joinStreamed(streamed, fallbackReply)
		turn.FinalReply = reply
		o.send(emit, events.TypeDelta, events.DeltaEvent{Text: delta})
		o.finish(turn, emit)
		return
	}
	if err := sched.Run(ctx); err != nil {
		slog.Error("orchestrator: scheduler run failed", "turn_id", turn.ID, "error", err)
	}
	turn.mark("decompose", decomposeStart)

	reply, delta := joinStreamed(streamed, o.synth.Combined(tasks))
	turn.FinalReply = reply
	o.send(emit, events.TypeDelta, events.DeltaEvent{Text: delta})
	o.finish(turn, emit)
}

// joinStreamed appends text after any already-streamed prefix,
// returning the full reply and the delta still to emit.
func joinStreamed(streamed, text string) (reply, delta string) {
	if streamed == "" {
		return text, text
	}
	return streamed + "\n\n" + text, "\n\n" + text
}

// runSubTurn re-enters the full chain for one fragment using the
// one-shot generation mode. If generation fails but the injector
// matched, the injected invocation still executes.
func (o *Orchestrator) runSubTurn(ctx context.Context, fragment string, parent Request) (*Turn, error) {
	req := Request{
		Utterance: fragment,
		CallerID:  parent.CallerID,
		History:   parent.History,
	}
	turn := newTurn(req)

	turn.Classification = o.classifier.Classify(fragment, false)
	if o.exporter != nil {
		o.exporter.RecordClassification(string(turn.Classification.Class))
	}

	profile, err := o.registry.Resolve(turn.Classification.Class)
	if err != nil {
		return nil, err
	}

	injected := o.injector.TryInject(fragment, turn.Classification.Class)
	if injected != nil && o.exporter != nil {
		o.exporter.RecordInjection(injected.Tool)
	}

	system := o.composer.Compose(profile)
	messages := llm.FormatMessages(system, fragment, req.History)

	genStart := time.Now()
	text, stats, genErr := o.client.Generate(ctx, profile, messages)
	turn.mark("generate", genStart)

	if stats != nil && o.exporter != nil {
		o.exporter.RecordGeneration(profile.Model, string(turn.Classification.Class), time.Since(genStart))
		o.exporter.RecordGenerationTokens(profile.Model, "prompt", stats.PromptTokens)
		o.exporter.RecordGenerationTokens(profile.Model, "completion", stats.CompletionTokens)
	}

	var invocation *toolcall.Invocation
	prose := ""
	switch {
	case genErr == nil:
		invocation = toolcall.Extract(text, o.catalog)
		prose = toolcall.StripToken(text)
		if invocation == nil {
			invocation = injected
		}
	case injected != nil:
		slog.Warn("orchestrator: sub-task generation failed, using injected invocation",
			"turn_id", turn.ID,
			"error", genErr)
		invocation = injected
	default:
		return nil, genErr
	}

	o.executeAndSynthesize(ctx, turn, invocation, prose, nil)
	turn.State = StateDone
	return turn, nil
}

func (o *Orchestrator) finish(turn *Turn, emit events.SafeCallback) {
	turn.State = StateDone
	turn.Timings["total"] = time.Since(turn.start).Milliseconds()

	o.send(emit, events.TypeDone, events.DoneEvent{
		Reply:      turn.FinalReply,
		Decomposed: turn.Decomposed,
		Timings:    turn.Timings,
	})

	slog.Info("orchestrator: turn done",
		"turn_id", turn.ID,
		"class", turn.Classification.Class,
		"decomposed", turn.Decomposed,
		"executed_tool", turn.Invocation != nil,
		"total_ms", turn.Timings["total"])
}

func (o *Orchestrator) send(emit events.SafeCallback, eventType string, data any) {
	if emit != nil {
		emit(eventType, data)
	}
}

// generationBudget bounds the single-shot generation call to a fraction
// of the remaining turn budget, leaving headroom to decompose if the
// call times out.
func (o *Orchestrator) generationBudget(ctx context.Context) time.Duration {
	remaining := o.remainingBudget(ctx)
	budget := time.Duration(float64(remaining) * o.config.GenerationFraction)
	if budget <= 0 {
		budget = time.Millisecond
	}
	return budget
}

func (o *Orchestrator) remainingBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return o.config.TurnBudget
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	return remaining
}

func turnMode(turn *Turn) string {
	if turn.Decomposed {
		return "decomposed"
	}
	return "single_shot"
}
