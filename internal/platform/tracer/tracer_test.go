package tracer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"

	"boxoffice/internal/platform/tracer"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanAdmissionCheck,
		tracer.String(tracer.AttrEndpointType, "payment"),
		tracer.Bool(tracer.AttrAllowed, true),
	)

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Int64(tracer.AttrCount, 3))
	span.AddEvent(tracer.EventAccessListHit, tracer.String(tracer.AttrReason, "whitelisted"))
	span.End(nil)
}

func TestNoopTracer_SpanEndWithError(t *testing.T) {
	_, span := tracer.NewNoop().Start(context.Background(), tracer.SpanCounterStore)
	require.NotNil(t, span)
	span.End(errors.New("redis down"))
}

func TestOTelTracer_WithNoopProvider(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	ctx, span := tr.Start(context.Background(), tracer.SpanAdmissionCheck,
		tracer.Float64(tracer.AttrMultiplier, 2),
	)
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.SetAttributes(tracer.Int64(tracer.AttrLimit, 5))
	span.End(errors.New("store timeout"))
}

func TestAttributeConstructors(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		attr := tracer.String("key", "value")
		assert.Equal(t, "key", attr.Key)
		assert.Equal(t, "value", attr.Value)
	})

	t.Run("Int64", func(t *testing.T) {
		attr := tracer.Int64("count", 42)
		assert.Equal(t, int64(42), attr.Value)
	})

	t.Run("Duration", func(t *testing.T) {
		attr := tracer.Duration("latency", 150*1e6)
		assert.Equal(t, int64(150), attr.Value)
	})
}

func TestDefaultInstrumentationName(t *testing.T) {
	assert.Equal(t, attribute.Key("ratelimit.endpoint_type"), attribute.Key(tracer.AttrEndpointType))
	assert.Equal(t, "boxoffice/ratelimit", tracer.InstrumentationName)
}
