package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "ai-docchat-be/chat"

// TurnSpan wraps the span covering one chat turn, from graph start to the save decision.
type TurnSpan struct {
	span trace.Span
}

func StartTurn(ctx context.Context, threadID, turnID string) (context.Context, TurnSpan) {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "chat.turn",
		trace.WithAttributes(
			attribute.String("docchat.thread_id", threadID),
			attribute.String("docchat.turn_id", turnID),
		),
	)
	return ctx, TurnSpan{span: span}
}

// End records the route and outcome. A non-nil err marks the span as failed.
func (t TurnSpan) End(route, outcome string, err error) {
	t.span.SetAttributes(
		attribute.String("docchat.route", route),
		attribute.String("docchat.outcome", outcome),
	)
	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	}
	t.span.End()
}
