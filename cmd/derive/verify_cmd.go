package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/canonicalize"
	"github.com/Mindburn-Labs/derive/pkg/pipeline"
)

type verifyLine struct {
	ArtifactID string   `json:"artifact_id"`
	Verified   bool     `json:"verified"`
	Reasons    []string `json:"reasons,omitempty"`
}

// runVerifyCmd implements `derive verify RECORDS`.
//
// Exit codes:
//
//	0 = every blob matches its record
//	1 = at least one mismatch
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("verify", stderr)
	if err := fs.Parse(args); err != nil {
		return exitRuntime
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, `Error: exactly one RECORDS path is required ("-" for stdin)`)
		return exitRuntime
	}

	recs, err := readRecords(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitRuntime
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, *configPath, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitRuntime
	}
	defer a.close(ctx)

	code := exitOK
	for _, rec := range recs {
		line := verifyLine{ArtifactID: rec.ArtifactID, Verified: true}
		var mismatch *pipeline.VerifyError
		switch err := a.svc.Verify(ctx, rec); {
		case err == nil:
		case errors.As(err, &mismatch):
			line.Verified, line.Reasons = false, mismatch.Reasons
		case errors.Is(err, artifacts.ErrNotFound):
			line.Verified, line.Reasons = false, []string{"blob not found"}
		default:
			_, _ = fmt.Fprintf(stderr, "Error: %s: %v\n", rec.ArtifactID, err)
			return exitRuntime
		}
		if !line.Verified {
			code = exitFailed
		}
		if err := canonicalize.WriteLine(stdout, line); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: write output: %v\n", err)
			return exitRuntime
		}
	}
	return code
}

// runCatCmd implements `derive cat LOCATION...`.
func runCatCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("cat", stderr)
	if err := fs.Parse(args); err != nil {
		return exitRuntime
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: at least one LOCATION is required")
		return exitRuntime
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, *configPath, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitRuntime
	}
	defer a.close(ctx)

	for _, loc := range fs.Args() {
		data, err := a.store.ReadBytes(ctx, loc)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
		if _, err := stdout.Write(data); err != nil {
			return exitRuntime
		}
	}
	return exitOK
}
