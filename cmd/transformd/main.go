// Transformd is an AI code transformation daemon with an HTTP/SSE API.
//
// It accepts transformation sessions over HTTP, provisions an execution
// environment (a remote sandbox when configured, a local scratch directory
// otherwise), clones the target repository, generates and applies an LLM
// transformation plan, validates the result and publishes it to a new
// branch.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	transformd
//
//	# Configure via environment
//	SERVER_PORT=8090 PLANNER_API_KEY=sk-... transformd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/transformd/internal/analysis"
	"github.com/fyrsmithlabs/transformd/internal/config"
	"github.com/fyrsmithlabs/transformd/internal/environment"
	"github.com/fyrsmithlabs/transformd/internal/events"
	"github.com/fyrsmithlabs/transformd/internal/executor"
	"github.com/fyrsmithlabs/transformd/internal/githost"
	transporthttp "github.com/fyrsmithlabs/transformd/internal/http"
	"github.com/fyrsmithlabs/transformd/internal/logging"
	"github.com/fyrsmithlabs/transformd/internal/pipeline"
	"github.com/fyrsmithlabs/transformd/internal/planner"
	"github.com/fyrsmithlabs/transformd/internal/session"
	"github.com/fyrsmithlabs/transformd/internal/validation"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  transformd           Start the transformd daemon\n")
			fmt.Fprintf(os.Stderr, "  transformd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("transformd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the transformd server and blocks until context is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting transformd",
		zap.Int("port", cfg.Server.Port),
		zap.String("planner_provider", cfg.Planner.Provider),
		zap.Bool("sandbox_configured", cfg.Sandbox.APIKey.IsSet()),
	)

	sandbox := environment.NewHTTPSandbox(cfg.Sandbox)

	generator, err := planner.New(cfg.Planner)
	if err != nil {
		return fmt.Errorf("failed to initialize planner: %w", err)
	}

	validator, err := validation.NewRunner(cfg.Validation, sandbox, logger.Named("validation"))
	if err != nil {
		return fmt.Errorf("failed to initialize validation: %w", err)
	}

	registry := session.NewRegistry(cfg.Session, logger.Named("session"))
	emitter := events.NewEmitter()
	registry.OnExpire(emitter.Drop)
	go registry.Start(ctx)

	orch := pipeline.New(pipeline.Deps{
		Provisioner:              environment.NewProvisioner(sandbox, logger.Named("environment")),
		Sandbox:                  sandbox,
		Analyzer:                 analysis.New(sandbox, cfg.Analysis.MaxSampleFiles, logger.Named("analysis")),
		Generator:                generator,
		Executor:                 executor.New(sandbox, logger.Named("executor")),
		Validator:                validator,
		Registry:                 registry,
		Emitter:                  emitter,
		Logger:                   logger,
		BlockOnValidationFailure: cfg.Validation.BlockOnFailure,
	})

	srv, err := transporthttp.NewServer(ctx, cfg.Server, registry, emitter, orch,
		githost.NewGitHub(), logger.Named("http"))
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
