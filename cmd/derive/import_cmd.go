package main

import (
	"fmt"
	"io"

	"github.com/Mindburn-Labs/derive/pkg/canonicalize"
)

// runImportCmd implements `derive import [--type MEDIA] FILE...`.
func runImportCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("import", stderr)
	declared := fs.StringP("type", "t", "", "declared media type applied to every file")
	if err := fs.Parse(args); err != nil {
		return exitRuntime
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: at least one FILE is required")
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
	for _, path := range fs.Args() {
		rec, err := a.svc.ImportFile(ctx, path, *declared)
		if err != nil {
			reportFailure(stderr, path, err)
			code = exitFailed
			continue
		}
		if err := canonicalize.WriteLine(stdout, rec); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: write output: %v\n", err)
			return exitRuntime
		}
	}
	return code
}
