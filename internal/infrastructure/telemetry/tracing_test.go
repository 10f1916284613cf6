package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestStartServiceSpan(t *testing.T) {
	recorder := withRecorder(t)
	billID := uuid.New()

	ctx, span := StartServiceSpan(context.Background(), "payment", "record",
		WithAttribute(SpanAttrBillID, billID),
		WithSpanKind(trace.SpanKindServer),
	)
	SetAttributes(span, SpanAttrAmount, "40.00", SpanAttrConsumption, uint64(15), 42, "ignored")
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "payment.record", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Contains(t, spans[0].Attributes(), attribute.String(SpanAttrBillID, billID.String()))
	assert.Contains(t, spans[0].Attributes(), attribute.Int64(SpanAttrConsumption, 15))
	assert.Len(t, spans[0].Attributes(), 3)
}

func TestRecordError(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSpan(context.Background(), "bill.cancel")
	RecordError(span, errors.New("bill already paid"))
	RecordError(span, nil)
	AddEvent(span, "retry", "attempt", 2)
	span.End()

	ended := recorder.Ended()[0]
	assert.Equal(t, codes.Error, ended.Status().Code)
	assert.Equal(t, "bill already paid", ended.Status().Description)
	require.Len(t, ended.Events(), 2)
	assert.Equal(t, "retry", ended.Events()[1].Name)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestToAttribute(t *testing.T) {
	assert.Equal(t, attribute.Bool("b", true), toAttribute("b", true))
	assert.Equal(t, attribute.Int("i", 3), toAttribute("i", 3))
	assert.Equal(t, attribute.StringSlice("s", []string{"a"}), toAttribute("s", []string{"a"}))
	assert.Equal(t, attribute.String("x", "{1}"), toAttribute("x", struct{ N int }{1}))
}
