package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/observability"
)

func newTracedService(t *testing.T) (*Service, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	obs, err := observability.NewWithProviders(tp, mp)
	require.NoError(t, err)
	svc, _ := newService(t, WithObservability(obs))
	return svc, recorder, reader
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTelemetry_SpansPerOperation(t *testing.T) {
	svc, recorder, _ := newTracedService(t)
	ctx := context.Background()

	rec, err := svc.ImportBytes(ctx, []byte("traced"), "t.txt", "")
	require.NoError(t, err)
	result := svc.Extract(ctx, rec)
	require.True(t, result.OK())

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, artifacts.JobImport, spans[0].Name())
	assert.Equal(t, artifacts.JobExtractText, spans[1].Name())

	id, ok := spanAttr(spans[0], observability.AttrArtifactID)
	require.True(t, ok)
	assert.Equal(t, rec.ArtifactID, id.AsString())

	name, ok := spanAttr(spans[1], observability.AttrExtractor)
	require.True(t, ok)
	assert.Equal(t, "text", name.AsString())

	derived, ok := spanAttr(spans[1], observability.AttrDerived)
	require.True(t, ok)
	assert.Equal(t, int64(1), derived.AsInt64())
}

func TestTelemetry_FailureCarriesReasonCode(t *testing.T) {
	svc, recorder, reader := newTracedService(t)
	ctx := context.Background()

	_, err := svc.ImportBytes(ctx, []byte{0x01}, "x.unknown", "")
	require.Error(t, err)

	rec, err := svc.ImportBytes(ctx, []byte{}, "e.pdf", "")
	require.NoError(t, err)
	require.False(t, svc.Extract(ctx, rec).OK())

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	code, ok := spanAttr(spans[0], observability.AttrReasonCode)
	require.True(t, ok)
	assert.Equal(t, string(artifacts.ReasonImportUnsupportedType), code.AsString())

	assert.Equal(t, codes.Unset, spans[1].Status().Code)

	assert.Equal(t, codes.Error, spans[2].Status().Code)
	code, ok = spanAttr(spans[2], observability.AttrReasonCode)
	require.True(t, ok)
	assert.Equal(t, string(artifacts.ReasonExtractParseError), code.AsString())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var errorsTotal int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "derive.errors.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				errorsTotal += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), errorsTotal)
}
