package segue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// defaultRequestTimeout bounds a whole request when the caller sets no
// deadline. The effective deadline is the earlier of the two.
const defaultRequestTimeout = 5 * time.Minute

// Orchestrator is the entry point: it owns per-request state, drives the
// routing graph under a global deadline, and aggregates handler results
// into the assistant reply. All collaborators are injected; the zero
// configuration is a chat-only assistant.
type Orchestrator struct {
	llm        Provider
	classifier *Classifier
	dispatcher *Dispatcher
	retriever  Retriever
	delegate   Delegate
	memory     MemoryStore
	tracer     Tracer
	logger     *slog.Logger
	timeout    time.Duration

	caps  Capabilities
	graph *Graph
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClassifier replaces the default keyword-only classifier.
func WithClassifier(c *Classifier) Option { return func(o *Orchestrator) { o.classifier = c } }

// WithDispatcher sets the tool dispatcher. Without one the orchestrator has
// no ticketing or wiki capability.
func WithDispatcher(d *Dispatcher) Option { return func(o *Orchestrator) { o.dispatcher = d } }

// WithRetriever enables the knowledge-lookup handler.
func WithRetriever(r Retriever) Option { return func(o *Orchestrator) { o.retriever = r } }

// WithDelegate enables the delegation handler.
func WithDelegate(d Delegate) Option { return func(o *Orchestrator) { o.delegate = d } }

// WithMemory persists conversation turns around each request.
func WithMemory(m MemoryStore) Option { return func(o *Orchestrator) { o.memory = m } }

// WithTracer sets the tracer for request spans.
func WithTracer(t Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithRequestTimeout overrides the 5-minute default request bound.
func WithRequestTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.timeout = d } }

// New creates an Orchestrator around an LLM provider.
func New(llm Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:     llm,
		logger:  nopLogger,
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = NewClassifier()
	}
	if o.dispatcher == nil {
		o.dispatcher = NewDispatcher()
	}
	o.caps = o.capabilities()
	o.graph = o.buildGraph()
	return o
}

// capabilities snapshots which collaborators exist. Remote-registry checks
// use a short probe context so a dead tool server cannot stall startup.
func (o *Orchestrator) capabilities() Capabilities {
	ctx, cancel := context.WithTimeout(context.Background(), infoCallTimeout)
	defer cancel()
	return Capabilities{
		Ticketing:  o.dispatcher.HasTicketing(ctx),
		Wiki:       o.dispatcher.HasWiki(ctx),
		Retrieval:  o.retriever != nil,
		Delegation: o.delegate != nil,
	}
}

// buildGraph compiles the routing state machine.
func (o *Orchestrator) buildGraph() *Graph {
	g := NewGraph(o.logger)
	g.AddNode(NodeIntentDetection, o.recovered(NodeIntentDetection, o.handleIntentDetection))
	g.AddNode(NodeJiraCreation, o.recovered(NodeJiraCreation, o.handleJiraCreation))
	g.AddNode(NodeEvaluation, o.recovered(NodeEvaluation, o.handleEvaluation))
	g.AddNode(NodeConfluence, o.recovered(NodeConfluence, o.handleConfluence))
	g.AddNode(NodeRAGQuery, o.recovered(NodeRAGQuery, o.handleRAGQuery))
	g.AddNode(NodeGeneralChat, o.recovered(NodeGeneralChat, o.handleGeneralChat))
	g.AddNode(NodeDelegation, o.recovered(NodeDelegation, o.handleDelegation))

	g.SetEntry(NodeIntentDetection)
	g.AddConditionalEdge(NodeIntentDetection, o.routeByIntent)
	g.AddEdge(NodeJiraCreation, NodeEvaluation)
	g.AddConditionalEdge(NodeEvaluation, o.routeAfterEvaluation)
	g.AddEdge(NodeConfluence, NodeEnd)
	g.AddEdge(NodeRAGQuery, NodeEnd)
	g.AddEdge(NodeGeneralChat, NodeEnd)
	g.AddEdge(NodeDelegation, NodeEnd)
	return g
}

// recovered wraps a handler so a panic becomes an internal error instead of
// unwinding through the router.
func (o *Orchestrator) recovered(name string, fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, state *State) (err error) {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("handler panicked", "node", name, "panic", r)
				err = NewToolError(ErrInternal, "handler %s panicked: %v", name, r)
			}
		}()
		return fn(ctx, state)
	}
}

// Handle processes one request. It never returns an error: unrecoverable
// internal conditions become a user-addressable apology in the reply and an
// entry in the diagnostics.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (string, Diagnostics) {
	start := time.Now()
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = NewID()
	}

	ctx, span := startSpan(ctx, o.tracer, "orchestrator.handle",
		StringAttr("correlation_id", correlationID))
	defer span.End()

	deadline := time.Now().Add(o.timeout)
	if !req.Deadline.IsZero() && req.Deadline.Before(deadline) {
		deadline = req.Deadline
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	state := &State{
		UserInput: req.UserInput,
		History:   req.History,
	}
	// Seed the transcript with the most recent history plus this turn.
	if n := len(req.History); n > historyWindow {
		state.Messages = append(state.Messages, req.History[n-historyWindow:]...)
	} else {
		state.Messages = append(state.Messages, req.History...)
	}
	state.appendMessage(UserMessage(req.UserInput))

	diag := Diagnostics{CorrelationID: correlationID}

	path, err := o.graph.Run(ctx, state)
	diag.Path = path
	diag.Hops = len(path)
	if err != nil {
		kind := KindOf(err)
		o.logger.Error("routing ended abnormally", "correlation_id", correlationID, "err", err)
		span.Error(err)
		diag.Errors = append(diag.Errors, err.Error())
		state.appendMessage(AssistantMessage(FailureMessage(kind)))
	}

	// The reply is always the last assistant message. Guarantee one exists
	// even when a handler misbehaved.
	reply := state.lastAssistant()
	if reply == "" {
		reply = FailureMessage(ErrInternal)
		state.appendMessage(AssistantMessage(reply))
	}

	if state.Intent != nil {
		diag.Decision = *state.Intent
	}
	diag.Ticket = state.Ticket
	diag.Page = state.Page
	diag.Evaluation = state.Evaluation
	collectResultErrors(&diag, state)
	diag.Elapsed = time.Since(start)

	o.persistTurn(req, reply)

	span.SetAttr(
		StringAttr("intent", diag.Decision.Intent.String()),
		IntAttr("hops", diag.Hops),
	)
	o.logger.Info("request handled",
		"correlation_id", correlationID,
		"intent", diag.Decision.Intent.String(),
		"hops", diag.Hops,
		"elapsed", diag.Elapsed)
	return reply, diag
}

// collectResultErrors copies handler failures into the diagnostics.
func collectResultErrors(diag *Diagnostics, state *State) {
	for name, res := range map[string]*ToolResult{"ticket": state.Ticket, "page": state.Page} {
		if res != nil && !res.Success && res.ErrMsg != "" {
			diag.Errors = append(diag.Errors, fmt.Sprintf("%s: %s: %s", name, res.ErrKind, res.ErrMsg))
		}
	}
	if state.Delegation != nil && state.Delegation.Err != "" {
		diag.Errors = append(diag.Errors, "delegation: "+state.Delegation.Err)
	}
}

// persistTurn writes the user and assistant messages to the memory store
// when one is configured. Persistence is best-effort and detached from the
// request deadline.
func (o *Orchestrator) persistTurn(req Request, reply string) {
	if o.memory == nil || req.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.memory.AppendMessage(ctx, req.ConversationID, RoleUser, req.UserInput); err != nil {
		o.logger.Warn("persisting user turn failed", "err", err)
		return
	}
	if err := o.memory.AppendMessage(ctx, req.ConversationID, RoleAssistant, reply); err != nil {
		o.logger.Warn("persisting assistant turn failed", "err", err)
	}
}
