// Package pipeline wires detection, storage and the extractor registry
// into the two units of work: importing a source blob and deriving text
// from a stored artifact.
//
// Import failures are returned as *artifacts.Error. Extraction failures
// are values inside the returned DerivationResult.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/detect"
	"github.com/Mindburn-Labs/derive/pkg/extractors"
	"github.com/Mindburn-Labs/derive/pkg/observability"
)

// DefaultMaxImportBytes bounds a single import.
const DefaultMaxImportBytes int64 = 256 << 20

// Service runs imports and extractions against one store.
type Service struct {
	store          artifacts.Store
	registry       *extractors.Registry
	obs            *observability.Provider
	logger         *slog.Logger
	maxImportBytes int64
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry replaces the default extractor registry.
func WithRegistry(r *extractors.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithObservability records spans and metrics through p.
func WithObservability(p *observability.Provider) Option {
	return func(s *Service) { s.obs = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxImportBytes caps the size of an import. Zero disables the cap.
func WithMaxImportBytes(n int64) Option {
	return func(s *Service) { s.maxImportBytes = n }
}

// New creates a Service over store with the default registry.
func New(store artifacts.Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		registry:       extractors.DefaultRegistry(),
		logger:         slog.Default().With("component", "pipeline"),
		maxImportBytes: DefaultMaxImportBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() artifacts.Store { return s.store }

// Registry returns the extractor registry.
func (s *Service) Registry() *extractors.Registry { return s.registry }

// ImportFile imports the file at path under its base name.
func (s *Service) ImportFile(ctx context.Context, path, declaredType string) (artifacts.Record, error) {
	f, err := os.Open(path) //nolint:gosec // caller-chosen input file
	if err != nil {
		return artifacts.Record{}, artifacts.NewError(artifacts.ReasonImportReadError, err, "open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	return s.Import(ctx, f, filepath.Base(path), declaredType)
}

// ImportBytes imports an in-memory blob.
func (s *Service) ImportBytes(ctx context.Context, data []byte, filename, declaredType string) (artifacts.Record, error) {
	return s.Import(ctx, bytes.NewReader(data), filename, declaredType)
}

// Import reads src in full, checks that some signal places it in a
// supported family and stores it. A rejected import writes nothing.
func (s *Service) Import(ctx context.Context, src io.Reader, filename, declaredType string) (rec artifacts.Record, err error) {
	ctx, done := s.obs.TrackOperation(ctx, artifacts.JobImport)
	defer func() { done(err) }()

	data, err := s.readSource(src)
	if err != nil {
		s.logger.WarnContext(ctx, "import read failed", "filename", filename, "reason_code", artifacts.ReasonImportReadError, "error", err)
		return artifacts.Record{}, err
	}

	head := data
	if len(head) > artifacts.SniffBytes {
		head = head[:artifacts.SniffBytes]
	}
	ext := detect.Extension(filename)
	mediaType := detect.DetectMediaType(filename, declaredType, head)

	if !detect.IsSupportedImport(mediaType, ext, head) {
		err = artifacts.NewError(artifacts.ReasonImportUnsupportedType, nil, "unsupported file type: %q (%s)", ext, mediaType)
		s.logger.InfoContext(ctx, "import rejected", "filename", filename, "media_type", mediaType, "reason_code", artifacts.ReasonImportUnsupportedType)
		return artifacts.Record{}, err
	}

	loc, err := s.store.StoreBytes(ctx, data)
	if err != nil {
		err = artifacts.NewError(artifacts.ReasonStorageWriteError, err, "store %s: %v", filename, err)
		s.logger.ErrorContext(ctx, "import store failed", "filename", filename, "reason_code", artifacts.ReasonStorageWriteError, "error", err)
		return artifacts.Record{}, err
	}
	s.obs.RecordStored(ctx, len(data), observability.AttrOperation.String(artifacts.JobImport))

	rec = artifacts.NewRecord(data, loc, filename, mediaType, nil)
	observability.AnnotateSpan(trace.SpanFromContext(ctx), observability.ArtifactAttributes(rec)...)
	s.logger.InfoContext(ctx, "artifact imported",
		"artifact_id", rec.ArtifactID,
		"filename", filename,
		"media_type", mediaType,
		"byte_size", rec.ByteSize,
	)
	return rec, nil
}

func (s *Service) readSource(src io.Reader) ([]byte, error) {
	if src == nil {
		return nil, artifacts.NewError(artifacts.ReasonImportReadError, nil, "nil source")
	}
	r := src
	if s.maxImportBytes > 0 {
		r = io.LimitReader(src, s.maxImportBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, artifacts.NewError(artifacts.ReasonImportReadError, err, "read source: %v", err)
	}
	if s.maxImportBytes > 0 && int64(len(data)) > s.maxImportBytes {
		return nil, artifacts.NewError(artifacts.ReasonImportReadError, nil, "source exceeds %d bytes", s.maxImportBytes)
	}
	return data, nil
}

// Extract selects a backend for rec, runs it and stores every derived
// item. It never returns an error value; failures are in the result.
func (s *Service) Extract(ctx context.Context, rec artifacts.Record) artifacts.DerivationResult {
	ctx, done := s.obs.TrackOperation(ctx, artifacts.JobExtractText, observability.ArtifactAttributes(rec)...)
	result := s.extract(ctx, rec)
	if f := result.Failure(); f != nil {
		s.logger.InfoContext(ctx, "extraction failed",
			"artifact_id", rec.ArtifactID,
			"reason_code", f.ReasonCode,
			"detail", f.Detail,
		)
		done(artifacts.NewError(f.ReasonCode, nil, "%s", f.Detail))
		return result
	}
	observability.AnnotateSpan(trace.SpanFromContext(ctx), observability.AttrDerived.Int(len(result.Derived())))
	s.logger.InfoContext(ctx, "extraction completed", "artifact_id", rec.ArtifactID, "derived", len(result.Derived()))
	done(nil)
	return result
}

func (s *Service) extract(ctx context.Context, rec artifacts.Record) artifacts.DerivationResult {
	head, err := s.store.ReadHead(ctx, rec.StorageLocation, artifacts.SniffBytes)
	if err != nil {
		return artifacts.Failed(artifacts.Failure(artifacts.ReasonExtractParseError, "read %s: %v", rec.ArtifactID, err))
	}

	ext := detect.Extension(rec.OriginalFilename)
	backend, ok := s.registry.Select(rec.MediaType, ext, head)
	if !ok {
		return artifacts.Failed(artifacts.Failure(artifacts.ReasonExtractUnsupportedType, "unsupported file type: %q (%s)", ext, rec.MediaType))
	}
	observability.AnnotateSpan(trace.SpanFromContext(ctx), observability.AttrExtractor.String(backend.Name()))
	s.logger.DebugContext(ctx, "extractor selected", "artifact_id", rec.ArtifactID, "extractor", backend.Name())

	items, failure := backend.Extract(ctx, rec, s.store, head)
	if failure != nil {
		return artifacts.Failed(failure)
	}
	if len(items) == 0 {
		return artifacts.Failed(artifacts.Failure(artifacts.ReasonExtractEmptyContent, "%s produced no content for %s", backend.Name(), rec.ArtifactID))
	}

	derived := make([]artifacts.Record, 0, len(items))
	for _, item := range items {
		loc, err := s.store.StoreBytes(ctx, item.Content)
		if err != nil {
			return artifacts.Failed(artifacts.Failure(artifacts.ReasonStorageWriteError, "store %s: %v", item.OutputFilename, err))
		}
		s.obs.RecordStored(ctx, len(item.Content), observability.AttrOperation.String(artifacts.JobExtractText))
		child := artifacts.NewRecord(item.Content, loc, item.OutputFilename, item.MediaType, item.Metadata)
		s.logger.DebugContext(ctx, "derived artifact stored", "artifact_id", child.ArtifactID, "parent", rec.ArtifactID)
		derived = append(derived, child)
	}
	return artifacts.Succeeded(derived)
}

// Explain reports how every registered backend scores rec, keyed by
// backend name. Extract picks the highest positive score.
func (s *Service) Explain(ctx context.Context, rec artifacts.Record) (map[string]int, error) {
	head, err := s.store.ReadHead(ctx, rec.StorageLocation, artifacts.SniffBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rec.ArtifactID, err)
	}
	return s.registry.Scores(rec.MediaType, detect.Extension(rec.OriginalFilename), head), nil
}

// VerifyError lists why a stored blob no longer matches its record.
type VerifyError struct {
	ArtifactID string
	Reasons    []string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("artifact %s failed verification: %v", e.ArtifactID, e.Reasons)
}

// Verify re-reads the blob behind rec and checks its size, digest and id.
func (s *Service) Verify(ctx context.Context, rec artifacts.Record) error {
	ok, reasons, err := artifacts.Verify(ctx, s.store, rec)
	if err != nil {
		return err
	}
	if !ok {
		return &VerifyError{ArtifactID: rec.ArtifactID, Reasons: reasons}
	}
	return nil
}

// IsVerifyError reports whether err is a verification mismatch.
func IsVerifyError(err error) bool {
	var ve *VerifyError
	return errors.As(err, &ve)
}
