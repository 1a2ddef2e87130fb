package segue

import (
	"context"
	"log/slog"
)

// Node names in the routing graph.
const (
	NodeIntentDetection = "intent_detection"
	NodeJiraCreation    = "jira_creation"
	NodeEvaluation      = "evaluation"
	NodeConfluence      = "confluence_creation"
	NodeRAGQuery        = "rag_query"
	NodeGeneralChat     = "general_chat"
	NodeDelegation      = "agent_delegation"
	// NodeEnd is the terminal sink. Edges resolving to it stop traversal.
	NodeEnd = "end"
)

// maxHops caps node transitions per run. The compiled graph is acyclic, so
// the cap only fires on misconfiguration.
const maxHops = 10

// HandlerFunc is one node's work. Handlers mutate state and never return an
// error for user-facing failures — those become assistant messages and
// structured result slots. A returned error is an internal condition the
// orchestrator converts into an apology.
type HandlerFunc func(ctx context.Context, state *State) error

// EdgeFunc resolves the next node name from the post-handler state.
type EdgeFunc func(state *State) string

// Graph is a compiled routing state machine: named handler nodes joined by
// unconditional or conditional edges, one entry, one sink.
type Graph struct {
	nodes  map[string]HandlerFunc
	edges  map[string]EdgeFunc
	entry  string
	logger *slog.Logger
}

// NewGraph creates an empty graph.
func NewGraph(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = nopLogger
	}
	return &Graph{
		nodes:  make(map[string]HandlerFunc),
		edges:  make(map[string]EdgeFunc),
		logger: logger,
	}
}

// AddNode registers a handler under a name.
func (g *Graph) AddNode(name string, fn HandlerFunc) {
	g.nodes[name] = fn
}

// AddEdge wires an unconditional transition.
func (g *Graph) AddEdge(from, to string) {
	g.edges[from] = func(*State) string { return to }
}

// AddConditionalEdge wires a state-dependent transition.
func (g *Graph) AddConditionalEdge(from string, resolve EdgeFunc) {
	g.edges[from] = resolve
}

// SetEntry names the entry node.
func (g *Graph) SetEntry(name string) {
	g.entry = name
}

// Run walks the graph from the entry node, invoking each handler and
// following its edge until the sink, the hop cap, or the deadline. Returns
// the traversal path. An error means an internal condition (unknown node,
// hop cap, deadline) the caller must convert into an apology.
func (g *Graph) Run(ctx context.Context, state *State) ([]string, error) {
	if g.entry == "" {
		return nil, NewToolError(ErrInternal, "graph has no entry node")
	}

	var path []string
	current := g.entry
	for hops := 0; current != NodeEnd; hops++ {
		if hops >= maxHops {
			return path, NewToolError(ErrInternal, "hop limit %d exceeded at %q", maxHops, current)
		}
		if err := ctx.Err(); err != nil {
			return path, NewToolError(ErrTimeout, "deadline reached before %q", current)
		}

		fn, ok := g.nodes[current]
		if !ok {
			return path, NewToolError(ErrInternal, "unknown node %q", current)
		}
		path = append(path, current)
		g.logger.Debug("entering node", "node", current, "hop", hops)

		if err := fn(ctx, state); err != nil {
			return path, err
		}

		edge, ok := g.edges[current]
		if !ok {
			// No outgoing edge behaves as an edge to the sink.
			break
		}
		next := edge(state)
		if next == "" {
			next = NodeEnd
		}
		state.nextAction = next
		current = next
	}
	return path, nil
}
