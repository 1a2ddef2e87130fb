package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/seguehq/segue"
)

// The global provider defaults to no-op when Init has not run, so the
// tracer must be safe to use without any exporter configured.
func TestTracerWithoutInit(t *testing.T) {
	tr := NewTracer()
	ctx, span := tr.Start(context.Background(), "test.span",
		segue.StringAttr("intent", "jira_creation"),
		segue.IntAttr("hops", 3),
		segue.BoolAttr("success", true),
	)
	if ctx == nil {
		t.Fatal("Start returned nil context")
	}
	span.SetAttr(segue.StringAttr("k", "v"))
	span.Event("checkpoint", segue.IntAttr("n", 1))
	span.Error(errors.New("boom"))
	span.End()
}
