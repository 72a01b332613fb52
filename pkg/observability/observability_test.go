package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
)

func newRecordingProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	p, err := NewWithProviders(tp, mp)
	require.NoError(t, err)
	return p, recorder, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "derive", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.Equal(t, 5*time.Second, config.BatchTimeout)
	require.False(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, done := p.TrackOperation(context.Background(), artifacts.JobImport)
	require.NotNil(t, ctx)
	done(nil)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderWithNilConfig(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "derive", p.config.ServiceName)
}

func TestNilProviderIsUsable(t *testing.T) {
	var p *Provider
	ctx := context.Background()

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
	p.RecordRequest(ctx)
	p.RecordError(ctx, errors.New("boom"))
	p.RecordDuration(ctx, time.Millisecond)
	p.RecordStored(ctx, 10)

	_, done := p.TrackOperation(ctx, artifacts.JobExtractText)
	done(errors.New("boom"))
}

func TestTrackOperation(t *testing.T) {
	p, recorder, reader := newRecordingProvider(t)

	ctx, done := p.TrackOperation(context.Background(), artifacts.JobImport, AttrMediaType.String("text/plain"))
	require.NotNil(t, ctx)
	done(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, artifacts.JobImport, spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), AttrOperation.String(artifacts.JobImport))
	assert.Contains(t, spans[0].Attributes(), AttrMediaType.String("text/plain"))

	assert.Equal(t, int64(1), sumOf(t, reader, "derive.operations.total"))
	assert.Equal(t, int64(0), sumOf(t, reader, "derive.errors.total"))
	assert.Equal(t, int64(0), sumOf(t, reader, "derive.operations.active"))
}

func TestTrackOperationWithReasonCode(t *testing.T) {
	p, recorder, reader := newRecordingProvider(t)

	_, done := p.TrackOperation(context.Background(), artifacts.JobExtractText)
	done(artifacts.NewError(artifacts.ReasonExtractOCRRequired, nil, "scanned"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), AttrReasonCode.String(string(artifacts.ReasonExtractOCRRequired)))
	assert.Equal(t, int64(1), sumOf(t, reader, "derive.errors.total"))
}

func TestTrackOperationWithPlainError(t *testing.T) {
	p, recorder, _ := newRecordingProvider(t)

	_, done := p.TrackOperation(context.Background(), artifacts.JobImport)
	done(errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("error.type", "*errors.errorString"))
}

func TestRecordStored(t *testing.T) {
	p, _, reader := newRecordingProvider(t)

	p.RecordStored(context.Background(), 512, AttrStoreType.String("fs"))
	p.RecordStored(context.Background(), 10)

	assert.Equal(t, int64(522), sumOf(t, reader, "derive.store.bytes"))
}

func TestAnnotateSpan(t *testing.T) {
	p, recorder, _ := newRecordingProvider(t)
	rec := artifacts.NewRecord([]byte("x"), "loc", "x.txt", "text/plain", nil)

	_, span := p.StartSpan(context.Background(), "annotate")
	AnnotateSpan(span, ArtifactAttributes(rec)...)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), AttrArtifactID.String(rec.ArtifactID))
	assert.Contains(t, spans[0].Attributes(), AttrByteSize.Int64(1))
}

func TestShutdownWithoutProviders(t *testing.T) {
	p, _, _ := newRecordingProvider(t)
	require.NoError(t, p.Shutdown(context.Background()))
}
