// Command derive imports source documents into a content-addressed store
// and derives plain-text renditions from them.
//
// Records and derivation results are written to stdout as canonical JSON,
// one document per line. Logs go to stderr.
//
// Exit codes:
//
//	0 = success
//	1 = an import, extraction or verification failed
//	2 = usage or runtime error
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Mindburn-Labs/derive/pkg/artifacts"
	"github.com/Mindburn-Labs/derive/pkg/config"
	"github.com/Mindburn-Labs/derive/pkg/observability"
	"github.com/Mindburn-Labs/derive/pkg/pipeline"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

const (
	exitOK      = 0
	exitFailed  = 1
	exitRuntime = 2
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitRuntime
	}

	switch args[1] {
	case "import":
		return runImportCmd(args[2:], stdout, stderr)
	case "extract":
		return runExtractCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "cat":
		return runCatCmd(args[2:], stdout, stderr)
	case "doctor":
		return runDoctorCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "derive %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitRuntime
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: derive <command> [flags] [args]

Commands:
  import   FILE...     store source files and print their records
  extract  FILE...     import then derive text renditions (--records for stored records)
  verify   RECORDS     re-check stored blobs against JSON-lines records ("-" for stdin)
  cat      LOCATION... write stored blobs to stdout
  doctor               report parser and store availability
  version              print the version

Every command accepts --config PATH (default $DERIVE_CONFIG).`)
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string, stderr io.Writer) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	return fs, configPath
}

// app holds what every store-backed command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	obs    *observability.Provider
	store  artifacts.Store
	svc    *pipeline.Service
}

func newApp(ctx context.Context, configPath string, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(stderr)
	slog.SetDefault(logger)

	obs, err := observability.New(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	store, err := artifacts.NewStore(ctx, cfg.Storage)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	svc := pipeline.New(store,
		pipeline.WithObservability(obs),
		pipeline.WithLogger(logger.With("component", "pipeline")),
		pipeline.WithMaxImportBytes(cfg.MaxImportBytes),
	)
	return &app{cfg: cfg, logger: logger, obs: obs, store: store, svc: svc}, nil
}

func (a *app) close(ctx context.Context) {
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.WarnContext(ctx, "closing store", "error", err)
		}
	}
	if err := a.obs.Shutdown(ctx); err != nil {
		a.logger.WarnContext(ctx, "observability shutdown", "error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// reportFailure prints err with its reason code when it has one.
func reportFailure(stderr io.Writer, subject string, err error) {
	var aerr *artifacts.Error
	if errors.As(err, &aerr) {
		_, _ = fmt.Fprintf(stderr, "%s: %s: %s\n", subject, aerr.Code, aerr.Detail)
		return
	}
	_, _ = fmt.Fprintf(stderr, "%s: %v\n", subject, err)
}
