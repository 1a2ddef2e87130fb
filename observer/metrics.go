package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/seguehq/segue"
)

// RecordIntent counts one classification decision.
func (i *Instruments) RecordIntent(ctx context.Context, d segue.IntentDecision) {
	i.IntentDecisions.Add(ctx, 1, metric.WithAttributes(
		AttrIntent.String(d.Intent.String()),
		AttrIntentSource.String(d.Source.String()),
	))
}

// RecordTool counts one tool dispatch outcome.
func (i *Instruments) RecordTool(ctx context.Context, kind string, res segue.ToolResult) {
	status := "ok"
	if !res.Success {
		status = res.ErrKind.String()
	}
	i.ToolDispatches.Add(ctx, 1, metric.WithAttributes(
		AttrToolKind.String(kind),
		AttrToolMethod.String(res.Method.String()),
		AttrToolStatus.String(status),
	))
}

// RecordRequest records one end-to-end request duration.
func (i *Instruments) RecordRequest(ctx context.Context, elapsed time.Duration) {
	i.RequestDuration.Record(ctx, float64(elapsed.Milliseconds()))
}
