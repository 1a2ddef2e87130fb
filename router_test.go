package segue

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func noopNode(ctx context.Context, state *State) error { return nil }

func TestGraphRunLinear(t *testing.T) {
	g := NewGraph(nil)
	var order []string
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, state *State) error {
			order = append(order, name)
			return nil
		}
	}
	g.AddNode("a", record("a"))
	g.AddNode("b", record("b"))
	g.AddNode("c", record("c"))
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", NodeEnd)
	g.SetEntry("a")

	path, err := g.Run(context.Background(), &State{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(path, want) || !reflect.DeepEqual(order, want) {
		t.Errorf("path = %v, order = %v", path, order)
	}
}

func TestGraphConditionalEdge(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("decide", func(ctx context.Context, state *State) error {
		state.RAGContext = "go right"
		return nil
	})
	g.AddNode("left", noopNode)
	g.AddNode("right", noopNode)
	g.AddConditionalEdge("decide", func(state *State) string {
		if state.RAGContext != "" {
			return "right"
		}
		return "left"
	})
	g.SetEntry("decide")

	path, err := g.Run(context.Background(), &State{})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"decide", "right"}; !reflect.DeepEqual(path, want) {
		t.Errorf("path = %v", path)
	}
}

func TestGraphMissingEdgeIsSink(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("only", noopNode)
	g.SetEntry("only")

	path, err := g.Run(context.Background(), &State{})
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 1 {
		t.Errorf("path = %v", path)
	}
}

func TestGraphEmptyEdgeResolvesToEnd(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("only", noopNode)
	g.AddConditionalEdge("only", func(*State) string { return "" })
	g.SetEntry("only")

	if _, err := g.Run(context.Background(), &State{}); err != nil {
		t.Fatal(err)
	}
}

func TestGraphHopLimit(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("loop", noopNode)
	g.AddEdge("loop", "loop")
	g.SetEntry("loop")

	path, err := g.Run(context.Background(), &State{})
	if err == nil {
		t.Fatal("self-loop should hit the hop limit")
	}
	if KindOf(err) != ErrInternal {
		t.Errorf("kind = %v", KindOf(err))
	}
	if len(path) != maxHops {
		t.Errorf("hops before cap = %d, want %d", len(path), maxHops)
	}
}

func TestGraphDeadline(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("slow", func(ctx context.Context, state *State) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	g.AddNode("after", noopNode)
	g.AddEdge("slow", "after")
	g.SetEntry("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	path, err := g.Run(ctx, &State{})
	if err == nil {
		t.Fatal("expired context should stop traversal")
	}
	if KindOf(err) != ErrTimeout {
		t.Errorf("kind = %v", KindOf(err))
	}
	// The first node ran; the deadline check fires before the second.
	if len(path) != 1 || path[0] != "slow" {
		t.Errorf("path = %v", path)
	}
}

func TestGraphUnknownNode(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("a", noopNode)
	g.AddEdge("a", "ghost")
	g.SetEntry("a")

	if _, err := g.Run(context.Background(), &State{}); err == nil {
		t.Fatal("edge to an unregistered node should fail")
	}
}

func TestGraphNoEntry(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("a", noopNode)
	if _, err := g.Run(context.Background(), &State{}); err == nil {
		t.Fatal("graph without an entry should fail")
	}
}

func TestGraphHandlerErrorStops(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("fail", func(ctx context.Context, state *State) error {
		return NewToolError(ErrInternal, "node blew up")
	})
	g.AddNode("after", noopNode)
	g.AddEdge("fail", "after")
	g.SetEntry("fail")

	path, err := g.Run(context.Background(), &State{})
	if err == nil {
		t.Fatal("want handler error")
	}
	if len(path) != 1 {
		t.Errorf("path = %v", path)
	}
}

func TestStateTranscript(t *testing.T) {
	s := &State{}
	if s.lastAssistant() != "" {
		t.Error("empty transcript should yield empty reply")
	}
	s.appendMessage(UserMessage("hi"))
	s.appendMessage(AssistantMessage("first"))
	s.appendMessage(UserMessage("more"))
	s.appendMessage(AssistantMessage("second"))
	if got := s.lastAssistant(); got != "second" {
		t.Errorf("lastAssistant = %q", got)
	}
}
