// Tracing and metrics are disabled by default. Enable them at startup:
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "derive",
//		OTLPEndpoint: "otel-collector:4317",
//		Enabled:      true,
//	})
//	defer p.Shutdown(ctx)
//
// Wrap a unit of work:
//
//	ctx, done := p.TrackOperation(ctx, artifacts.JobImport)
//	rec, err := importer.Import(ctx, src, name, "")
//	done(err)
//
// Errors that carry an artifacts reason code are recorded with the
// derive.reason_code attribute on both the span and the error counter.
package observability
