package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/canonicalize"
	"github.com/Mindburn-Labs/derive/pkg/config"
	"github.com/Mindburn-Labs/derive/pkg/detect"
	"github.com/Mindburn-Labs/derive/pkg/extractors"
)

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

// runDoctorCmd reports what this binary can parse and whether the
// configured store is reachable. Missing parsers are warnings; an
// unusable configuration or store fails the run.
func runDoctorCmd(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("doctor", stderr)
	if err := fs.Parse(args); err != nil {
		return exitRuntime
	}

	results := []checkResult{{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}}

	for _, dep := range extractors.Dependencies() {
		check := checkResult{Name: "dependency:" + dep.Name, Status: "ok", Detail: dep.Module}
		if !dep.Available {
			check.Status = "warn"
			check.Detail = fmt.Sprintf("%s not compiled in; %s extraction reports %s",
				dep.Module, strings.Join(dep.UsedBy, "/"), artifacts.ReasonExtractDependencyMissing)
		}
		results = append(results, check)
	}

	results = append(results, checkResult{
		Name:   "extractors",
		Status: "ok",
		Detail: strings.Join(extractors.DefaultRegistry().Names(), ","),
	}, checkResult{
		Name:   "import_extensions",
		Status: "ok",
		Detail: strings.Join(detect.Extensions(), ","),
	})

	ctx, cancel := signalContext()
	defer cancel()

	allOK := true
	if cfg, err := config.Load(*configPath); err != nil {
		allOK = false
		results = append(results, checkResult{Name: "config", Status: "fail", Detail: err.Error()})
	} else {
		results = append(results, checkResult{Name: "config", Status: "ok"})
		store, err := artifacts.NewStore(ctx, cfg.Storage)
		if err != nil {
			allOK = false
			results = append(results, checkResult{Name: "store", Status: "fail", Detail: err.Error()})
		} else {
			results = append(results, checkResult{Name: "store", Status: "ok", Detail: string(storeType(cfg.Storage))})
			if c, ok := store.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}

	for _, r := range results {
		if err := canonicalize.WriteLine(stdout, r); err != nil {
			return exitRuntime
		}
	}
	if !allOK {
		return exitFailed
	}
	return exitOK
}

func storeType(cfg artifacts.StoreConfig) artifacts.StoreType {
	if cfg.Type == "" {
		return artifacts.StoreTypeFS
	}
	return cfg.Type
}
