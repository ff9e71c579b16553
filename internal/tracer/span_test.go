package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"ai-docchat-be/internal/config"
)

func TestStartTurn_RecordsRouteAndOutcome(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tests := []struct {
		name   string
		err    error
		status codes.Code
	}{
		{"success", nil, codes.Unset},
		{"failure", errors.New("model down"), codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, span := StartTurn(context.Background(), "t1", "turn-1")
			span.End("retrieve", tt.name, tt.err)

			ended := rec.Ended()
			require.NotEmpty(t, ended)
			last := ended[len(ended)-1]
			assert.Equal(t, "chat.turn", last.Name())
			assert.Equal(t, tt.status, last.Status().Code)

			attrs := map[string]string{}
			for _, kv := range last.Attributes() {
				attrs[string(kv.Key)] = kv.Value.AsString()
			}
			assert.Equal(t, "t1", attrs["docchat.thread_id"])
			assert.Equal(t, "retrieve", attrs["docchat.route"])
			assert.Equal(t, tt.name, attrs["docchat.outcome"])
		})
	}
}

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown := Init(context.Background(), "svc", "1.0", config.TracingConfig{Enabled: false})
	assert.NoError(t, shutdown(context.Background()))
}
