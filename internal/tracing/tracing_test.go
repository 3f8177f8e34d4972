package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{ServiceName: "test-svc", SampleRatio: 0.1})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()), "shutdown twice is fine")

	_, span := Tracer("test-tracer").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid(), "noop spans carry no context")
}

func TestResourceAttrs(t *testing.T) {
	attrs := resourceAttrs(Options{Network: "sepolia"})
	require.Len(t, attrs, 2)
	assert.Equal(t, "tipjar", attrs[0].Value.AsString())
	assert.Equal(t, "tipjar.network", string(attrs[1].Key))
	assert.Equal(t, "sepolia", attrs[1].Value.AsString())

	assert.Len(t, resourceAttrs(Options{ServiceName: "x"}), 1)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
