package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
)

// derive semantic convention attributes.
var (
	AttrOperation  = attribute.Key("derive.operation")
	AttrReasonCode = attribute.Key("derive.reason_code")
	AttrStoreType  = attribute.Key("derive.store.type")

	AttrArtifactID = attribute.Key("derive.artifact.id")
	AttrMediaType  = attribute.Key("derive.artifact.media_type")
	AttrByteSize   = attribute.Key("derive.artifact.byte_size")
	AttrExtractor  = attribute.Key("derive.extractor")
	AttrDerived    = attribute.Key("derive.derived.count")
)

// ArtifactAttributes describes a record on a span.
func ArtifactAttributes(rec artifacts.Record) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrArtifactID.String(rec.ArtifactID),
		AttrMediaType.String(rec.MediaType),
		AttrByteSize.Int64(rec.ByteSize),
	}
}

// AnnotateSpan adds attributes to the span in ctx, if any.
func AnnotateSpan(span trace.Span, attrs ...attribute.KeyValue) {
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}
