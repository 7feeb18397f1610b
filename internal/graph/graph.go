package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/workflow"

	"go.opentelemetry.io/otel/attribute"
)

// ErrNoTriageResult is returned when the terminal node left no result.
var ErrNoTriageResult = errors.New("workflow finished without a triage result")

// Agents binds the LLM-backed nodes. Escalation is built in.
type Agents struct {
	Translator Agent
	Supervisor Agent
	Billing    Agent
	Technical  Agent
	General    Agent
}

// Options carries the workflow's collaborators. Zero values are valid.
type Options struct {
	Checkpoints  CheckpointStore
	Tracer       *observability.TracerProvider
	Metrics      *observability.MetricsCollector
	StoreMetrics *observability.StoreMetrics
	Logger       logging.Logger
	Listeners    []workflow.Listener
	Now          func() time.Time
}

// Workflow is the compiled triage graph.
type Workflow struct {
	nodes        map[string]Agent
	checkpoints  CheckpointStore
	tracer       *observability.TracerProvider
	metrics      *observability.MetricsCollector
	storeMetrics *observability.StoreMetrics
	logger       logging.Logger
	listeners    []workflow.Listener
	now          func() time.Time
}

// Result is the outcome of one invocation.
type Result struct {
	Thread ThreadID
	State  *State
	Run    workflow.Snapshot
}

// New compiles the graph, failing when a node has no agent.
func New(agents Agents, opts Options) (*Workflow, error) {
	nodes := map[string]Agent{
		NodeTranslator: agents.Translator,
		NodeSupervisor: agents.Supervisor,
		NodeBilling:    agents.Billing,
		NodeTechnical:  agents.Technical,
		NodeGeneral:    agents.General,
		NodeEscalate:   NewEscalateNode(),
	}
	for _, name := range []string{NodeTranslator, NodeSupervisor, NodeBilling, NodeTechnical, NodeGeneral} {
		if nodes[name] == nil {
			return nil, fmt.Errorf("compile workflow: node %q has no agent", name)
		}
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NewNoopTracerProvider()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Workflow")
	}
	return &Workflow{
		nodes:        nodes,
		checkpoints:  opts.Checkpoints,
		tracer:       tracer,
		metrics:      opts.Metrics,
		storeMetrics: opts.StoreMetrics,
		logger:       logger,
		listeners:    opts.Listeners,
		now:          now,
	}, nil
}

// Checkpoints returns the configured checkpoint store (nil when disabled).
func (w *Workflow) Checkpoints() CheckpointStore {
	return w.checkpoints
}

// Invoke runs one pass for ticket on thread, resuming from the thread's
// checkpoint when one exists.
func (w *Workflow) Invoke(ctx context.Context, ticket domain.Ticket, thread ThreadID) (result *Result, err error) {
	if err := thread.Validate(); err != nil {
		return nil, err
	}
	if err := ticket.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ticket: %w", err)
	}
	ticket.TicketID = thread.TicketID

	ctx = observability.ContextWithSessionID(ctx, thread.CustomerID)
	ctx = observability.ContextWithTicketID(ctx, thread.TicketID)
	ctx, span := w.tracer.StartSpan(ctx, observability.SpanWorkflow, attribute.String("triage.thread_id", thread.String()))
	start := w.now()
	action := "none"
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		w.metrics.RecordTriageRun(ctx, action, status, w.now().Sub(start))
		span.SetAttributes(attribute.String(observability.AttrAction, action))
		observability.EndSpan(span, err)
	}()

	state, step := w.loadState(ctx, ticket, thread)
	run := workflow.NewRun(thread.String(), w.logger)
	for _, listener := range w.listeners {
		run.AddListener(listener)
	}
	result = &Result{Thread: thread, State: state}

	for node := NodeTranslator; node != ""; node = w.next(node, state) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Run = run.Snapshot()
			return result, fmt.Errorf("workflow stopped before %s: %w", node, ctxErr)
		}
		if err := w.runNode(ctx, run, node, state); err != nil {
			result.Run = run.Snapshot()
			return result, err
		}
		if isTerminal(node) {
			w.appendOutcome(state)
		}
		step++
		w.saveCheckpoint(ctx, thread, state, Metadata{Step: step, Node: node, Source: SourceLoop, WrittenAt: w.now()})
	}

	result.Run = run.Snapshot()
	if state.TriageResult == nil {
		w.logger.Error("thread %s: %v", thread, ErrNoTriageResult)
		return result, ErrNoTriageResult
	}
	action = string(state.TriageResult.RecommendedAction)
	w.logger.Info("thread %s triaged: action=%s urgency=%s path=%v",
		thread, action, state.TriageResult.Urgency, result.Run.Order)
	return result, nil
}

func (w *Workflow) loadState(ctx context.Context, ticket domain.Ticket, thread ThreadID) (*State, int) {
	if w.checkpoints == nil {
		return NewState(ticket), 0
	}
	cp, err := w.checkpoints.Get(ctx, thread)
	if err != nil {
		w.storeMetrics.RecordCheckpointError("get")
		w.logger.Warn("thread %s: load checkpoint failed, starting fresh: %v", thread, err)
		return NewState(ticket), 0
	}
	if cp == nil || cp.State == nil {
		return NewState(ticket), 0
	}
	w.logger.Debug("thread %s: resuming from step %d (%s)", thread, cp.Metadata.Step, cp.Metadata.Node)
	return ResumeState(cp.State, ticket), cp.Metadata.Step
}

func (w *Workflow) runNode(ctx context.Context, run *workflow.Run, node string, state *State) error {
	state.Iteration++
	state.CurrentAgent = node

	ctx, span := w.tracer.StartSpan(ctx, observability.SpanNode, observability.NodeAttrs(node, state.Iteration)...)
	if _, _, err := run.StartNode(node); err != nil {
		observability.EndSpan(span, err)
		return err
	}

	start := w.now()
	err := w.nodes[node].Execute(ctx, state)
	w.metrics.RecordNodeExecution(ctx, node, statusOf(err), w.now().Sub(start))
	observability.EndSpan(span, err)

	if err != nil {
		_, _, _ = run.CompleteNodeFailure(node, err)
		return fmt.Errorf("node %s: %w", node, err)
	}
	_, _, _ = run.CompleteNodeSuccess(node, nodeOutput(node, state))
	return nil
}

func (w *Workflow) next(node string, state *State) string {
	switch node {
	case NodeTranslator:
		return NodeSupervisor
	case NodeSupervisor:
		return Route(state)
	default:
		return ""
	}
}

func (w *Workflow) saveCheckpoint(ctx context.Context, thread ThreadID, state *State, meta Metadata) {
	if w.checkpoints == nil {
		return
	}
	// The node already ran; record it even if the caller has gone away.
	if err := w.checkpoints.Put(context.WithoutCancel(ctx), thread, state, meta); err != nil {
		w.storeMetrics.RecordCheckpointError("put")
		w.logger.Warn("thread %s: checkpoint after %s failed: %v", thread, meta.Node, err)
		return
	}
	w.storeMetrics.RecordCheckpointWrite(meta.Node)
}

// appendOutcome adds the terminal ai turn: the suggested response, or the
// reasoning when there is none.
func (w *Workflow) appendOutcome(state *State) {
	if state.TriageResult == nil {
		return
	}
	content := state.TriageResult.SuggestedResponse
	if content == "" {
		content = state.TriageResult.Reasoning
	}
	state.AppendAI(content, w.now().UTC())
}

func isTerminal(node string) bool {
	switch node {
	case NodeBilling, NodeTechnical, NodeGeneral, NodeEscalate:
		return true
	}
	return false
}

func nodeOutput(node string, state *State) any {
	switch node {
	case NodeTranslator:
		return state.Translation
	case NodeSupervisor:
		return state.SupervisorDecision
	default:
		return state.TriageResult
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
