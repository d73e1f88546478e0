package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_GetSetKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "event_type", Value: []byte("review.submitted")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "review.submitted", c.Get("event_type"))
	assert.Equal(t, "", c.Get("missing"))

	c.Set("traceparent", "00-abc")
	c.Set("event_type", "coffee.aggregate_corrected")

	assert.Equal(t, "coffee.aggregate_corrected", c.Get("event_type"))
	assert.ElementsMatch(t, []string{"event_type", "traceparent"}, c.Keys())
	assert.Len(t, headers, 2)
}

func TestHeaderCarrier_RoundTripsTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	var headers []kafka.Header
	prop.Inject(ctx, NewHeaderCarrier(&headers))

	out := prop.Extract(context.Background(), NewHeaderCarrier(&headers))
	got := trace.SpanContextFromContext(out)
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}
