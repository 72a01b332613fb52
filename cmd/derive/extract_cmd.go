package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/canonicalize"
)

// extractLine is one output document of `derive extract`.
type extractLine struct {
	Artifact artifacts.Record           `json:"artifact"`
	Depth    int                        `json:"depth"`
	Scores   map[string]int             `json:"scores,omitempty"`
	Result   artifacts.DerivationResult `json:"result"`
}

// runExtractCmd implements `derive extract`.
//
// Positional FILEs are imported first. With --records, already stored
// records are read as JSON lines instead. --recursive also derives text
// from attachments found along the way, down to --max-depth levels, and
// never visits the same artifact twice. --explain adds every backend's
// selection score to each line. Only failures of the top-level
// artifacts affect the exit code.
func runExtractCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("extract", stderr)
	declared := fs.StringP("type", "t", "", "declared media type for imported FILEs")
	recordsPath := fs.String("records", "", `read records as JSON lines from PATH ("-" for stdin)`)
	recursive := fs.BoolP("recursive", "r", false, "derive text from extracted attachments too")
	maxDepth := fs.Int("max-depth", 3, "attachment nesting limit for --recursive")
	explain := fs.Bool("explain", false, "include each backend's selection score in the output")
	if err := fs.Parse(args); err != nil {
		return exitRuntime
	}
	if fs.NArg() == 0 && *recordsPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: FILE arguments or --records is required")
		return exitRuntime
	}
	if *maxDepth < 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --max-depth must not be negative")
		return exitRuntime
	}
	if !*recursive {
		*maxDepth = 0
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, *configPath, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitRuntime
	}
	defer a.close(ctx)

	var roots []artifacts.Record
	code := exitOK
	for _, path := range fs.Args() {
		rec, err := a.svc.ImportFile(ctx, path, *declared)
		if err != nil {
			reportFailure(stderr, path, err)
			code = exitFailed
			continue
		}
		roots = append(roots, rec)
	}
	if *recordsPath != "" {
		recs, err := readRecords(*recordsPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitRuntime
		}
		roots = append(roots, recs...)
	}

	w := &treeWalker{app: a, out: stdout, maxDepth: *maxDepth, explain: *explain, visited: map[string]bool{}}
	for _, rec := range roots {
		ok, err := w.walk(ctx, rec, 0)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: write output: %v\n", err)
			return exitRuntime
		}
		if !ok {
			code = exitFailed
		}
	}
	return code
}

type treeWalker struct {
	app      *app
	out      io.Writer
	maxDepth int
	explain  bool
	visited  map[string]bool
}

// walk extracts rec and, below maxDepth, its attachments. It reports
// whether rec itself succeeded.
func (w *treeWalker) walk(ctx context.Context, rec artifacts.Record, depth int) (bool, error) {
	if w.visited[rec.ArtifactID] {
		return true, nil
	}
	w.visited[rec.ArtifactID] = true

	line := extractLine{Artifact: rec, Depth: depth}
	if w.explain {
		scores, err := w.app.svc.Explain(ctx, rec)
		if err != nil {
			w.app.logger.WarnContext(ctx, "explain failed", "artifact_id", rec.ArtifactID, "error", err)
		}
		line.Scores = scores
	}
	line.Result = w.app.svc.Extract(ctx, rec)
	if err := canonicalize.WriteLine(w.out, line); err != nil {
		return false, err
	}
	result := line.Result
	if !result.OK() || depth >= w.maxDepth {
		return result.OK(), nil
	}

	for _, child := range result.Derived() {
		if child.Metadata[artifacts.MetaSource] != artifacts.SourceAttachment {
			continue
		}
		if _, err := w.walk(ctx, child, depth+1); err != nil {
			return true, err
		}
	}
	return true, nil
}

// readRecords decodes a stream of JSON records from path or stdin.
func readRecords(path string) ([]artifacts.Record, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path) //nolint:gosec // operator-supplied records file
		if err != nil {
			return nil, fmt.Errorf("open records: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only
		r = f
	}

	var out []artifacts.Record
	dec := json.NewDecoder(r)
	for {
		var rec artifacts.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(out)+1, err)
		}
		if rec.ArtifactID == "" || rec.StorageLocation == "" {
			return nil, fmt.Errorf("record %d: artifact_id and storage_location are required", len(out)+1)
		}
		out = append(out, rec)
	}
}
