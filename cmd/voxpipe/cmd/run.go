package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxpipe/voxpipe/internal/api"
	"github.com/voxpipe/voxpipe/internal/artifacts"
	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/providers"
	"github.com/voxpipe/voxpipe/internal/providers/deepl"
	"github.com/voxpipe/voxpipe/internal/providers/openai"
	"github.com/voxpipe/voxpipe/internal/scheduler"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/internal/workers"
	"github.com/voxpipe/voxpipe/pkg/httpclient"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the processing daemon",
	Long: `Run the processing daemon: per-stage worker pools, the lease sweep,
the artifact verification schedule, and (when enabled) the status API.

The first SIGINT or SIGTERM stops claiming and drains in-flight work up
to the configured drain timeout. A second signal abandons in-flight work
immediately; abandoned leases expire and are reclaimed on the next run.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrateUp(ctx, db, logger); err != nil {
		return err
	}

	st := store.New(db.DB, logger)
	env := newWorkerEnv(cfg, st, logger)
	sched := scheduler.New(env)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	var apiServer *api.Server
	apiErr := make(chan error, 1)
	if cfg.Server.Enabled {
		apiServer = api.NewServer(cfg.Server, st, logger)
		go func() {
			apiErr <- apiServer.Start()
		}()
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case err := <-sched.Fatal():
		logger.Error("fatal pipeline inconsistency, shutting down",
			slog.String("error", err.Error()))
		_ = sched.Stop()
		shutdownAPI(cmd, apiServer)
		return &ExitError{Code: ExitFatalInconsistency, Err: err}

	case err := <-apiErr:
		_ = sched.Stop()
		if err != nil {
			return fmt.Errorf("status API: %w", err)
		}
		return nil

	case sig := <-sigs:
		logger.Info("signal received, draining in-flight work",
			slog.String("signal", sig.String()))

		// A second signal while draining abandons in-flight tasks.
		drained := make(chan struct{})
		go func() {
			select {
			case second := <-sigs:
				logger.Warn("second signal, abandoning in-flight work",
					slog.String("signal", second.String()))
				sched.Abandon()
			case <-drained:
			}
		}()

		stopErr := sched.Stop()
		close(drained)
		shutdownAPI(cmd, apiServer)

		if stopErr != nil {
			logger.Warn("drain incomplete, leases will be reclaimed on next run",
				slog.String("error", stopErr.Error()))
		}
		return nil
	}
}

// newWorkerEnv wires the store, artifact writer, provider registry, and
// retry policy into the environment the stage workers run in.
func newWorkerEnv(cfg *config.Config, st *store.Store, logger *slog.Logger) *workers.Env {
	hc := buildHTTPClient(cfg, logger)

	registry := providers.NewRegistry()
	oa := openai.New(cfg.Providers.OpenAI, hc, logger)
	registry.RegisterTranscription(oa)
	registry.RegisterTranslation(oa)
	registry.RegisterEvaluation(oa)
	registry.RegisterTranslation(deepl.New(cfg.Providers.DeepL, hc, logger))

	retrier := providers.NewRetrier(providers.RetrierConfig{
		MaxAttempts:      cfg.Retries.MaxAttempts,
		Base:             cfg.Retries.Base(),
		Cap:              cfg.Retries.Cap(),
		RateLimitCeiling: cfg.Retries.RateLimitCeiling,
	}, logger)

	return &workers.Env{
		Store:     st,
		Artifacts: artifacts.NewWriter(artifacts.NewLayout(cfg.Paths.OutputRoot), logger),
		Registry:  registry,
		Retrier:   retrier,
		Config:    cfg,
		Logger:    logger,
	}
}

func buildHTTPClient(cfg *config.Config, logger *slog.Logger) *httpclient.Client {
	hcCfg := httpclient.DefaultConfig()
	hcCfg.Logger = logger
	if cfg.Providers.Timeout > 0 {
		hcCfg.Timeout = cfg.Providers.Timeout
	}
	return httpclient.New(hcCfg)
}

func shutdownAPI(cmd *cobra.Command, srv *api.Server) {
	if srv == nil {
		return
	}
	_ = srv.Shutdown(cmd.Context())
}
