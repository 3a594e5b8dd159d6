// Package scheduler runs the processing daemon: one bounded worker pool
// per stage, a periodic sweep that reclaims expired leases, and the
// cron-driven artifact verification sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/internal/workers"
	"github.com/voxpipe/voxpipe/pkg/format"
)

// Scheduler owns the stage pools and the background maintenance loops.
//
// Claiming and running are cancelled separately: a graceful stop cancels
// claiming first and lets in-flight tasks drain up to the drain timeout;
// Abandon cancels the tasks too, leaving their leases to expire and be
// reclaimed on the next start.
type Scheduler struct {
	mu sync.Mutex

	env    *workers.Env
	logger *slog.Logger

	pollInterval  time.Duration
	sweepInterval time.Duration
	drainTimeout  time.Duration
	verifyCron    string

	instance string
	cron     *cron.Cron

	taskCtx     context.Context
	taskCancel  context.CancelFunc
	claimCtx    context.Context
	claimCancel context.CancelFunc
	wg          sync.WaitGroup

	fatal chan error
}

// New creates a scheduler over the worker environment. Loop timings come
// from the environment's config.
func New(env *workers.Env) *Scheduler {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "voxpipe"
	}

	return &Scheduler{
		env:           env,
		logger:        logger,
		pollInterval:  env.Config.Scheduler.PollInterval,
		sweepInterval: env.Config.Scheduler.LeaseSweepInterval,
		drainTimeout:  env.Config.Scheduler.DrainTimeout,
		verifyCron:    env.Config.Maintenance.VerifyCron,
		instance:      fmt.Sprintf("%s-%d", host, os.Getpid()),
		fatal:         make(chan error, 1),
	}
}

// Fatal delivers the first unrecoverable worker error: an artifact hash
// mismatch or a missing prerequisite. The daemon must exit when it fires.
func (s *Scheduler) Fatal() <-chan error {
	return s.fatal
}

// Start launches the stage pools, the lease sweeper, and the maintenance
// cron. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.taskCtx != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.taskCtx, s.taskCancel = context.WithCancel(ctx)
	s.claimCtx, s.claimCancel = context.WithCancel(s.taskCtx)

	for _, stage := range models.AllStages() {
		count := s.poolSize(stage)
		for i := 0; i < count; i++ {
			owner := fmt.Sprintf("%s-%s-%d", s.instance, stage, i)
			s.wg.Add(1)
			go s.worker(stage, owner)
		}
	}

	s.wg.Add(1)
	go s.sweepLeases()

	if s.verifyCron != "" {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.verifyCron, s.runVerifySweep)
		if err != nil {
			return fmt.Errorf("invalid maintenance.verify_cron: %w", err)
		}
		s.cron.Start()
		s.logger.Info("artifact verification scheduled",
			slog.String("schedule", format.CronDescription(s.verifyCron)))
	}

	s.logger.Info("scheduler started",
		slog.String("instance", s.instance),
		slog.Int("transcription_workers", s.env.Config.Concurrency.Transcription),
		slog.Int("translation_workers", s.env.Config.Concurrency.Translation),
		slog.Int("evaluation_workers", s.env.Config.Concurrency.Evaluation),
		slog.Duration("poll_interval", s.pollInterval),
		slog.Duration("lease_sweep_interval", s.sweepInterval))

	return nil
}

// Stop stops claiming and waits for in-flight tasks to drain, up to the
// drain timeout. Tasks still running at the deadline are abandoned; their
// leases expire and are reclaimed later.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.claimCancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.claimCancel()
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.logger.Warn("drain timeout exceeded, abandoning in-flight work",
			slog.Duration("drain_timeout", s.drainTimeout))
		s.taskCancel()
		<-done
		drainErr = fmt.Errorf("drain timeout after %s", s.drainTimeout)
	}

	s.mu.Lock()
	s.taskCtx = nil
	s.taskCancel = nil
	s.claimCtx = nil
	s.claimCancel = nil
	s.cron = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return drainErr
}

// Abandon cancels in-flight tasks immediately. Used on the second
// interrupt; leases are left to expire.
func (s *Scheduler) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskCancel != nil {
		s.taskCancel()
	}
}

// poolSize returns the worker count for a stage from its kind's cap.
func (s *Scheduler) poolSize(stage models.Stage) int {
	switch stage.Kind() {
	case models.StageKindTranscription:
		return s.env.Config.Concurrency.Transcription
	case models.StageKindTranslation:
		return s.env.Config.Concurrency.Translation
	default:
		return s.env.Config.Concurrency.Evaluation
	}
}

// leaseTTL returns the lease duration for a stage from its kind.
func (s *Scheduler) leaseTTL(stage models.Stage) time.Duration {
	switch stage.Kind() {
	case models.StageKindTranscription:
		return s.env.Config.LeaseTTL.Transcription
	case models.StageKindTranslation:
		return s.env.Config.LeaseTTL.Translation
	default:
		return s.env.Config.LeaseTTL.Evaluation
	}
}

// worker is one pool slot: claim, run, repeat. An empty claim sleeps the
// poll interval before trying again.
func (s *Scheduler) worker(stage models.Stage, owner string) {
	defer s.wg.Done()

	ttl := s.leaseTTL(stage)
	maxAttempts := s.env.Config.Retries.MaxAttempts

	for {
		select {
		case <-s.claimCtx.Done():
			return
		default:
		}

		task, err := s.env.Store.Claim(s.claimCtx, stage, owner, ttl, maxAttempts)
		if err != nil {
			if s.claimCtx.Err() != nil {
				return
			}
			s.logger.Error("claim failed",
				slog.String("stage", string(stage)),
				slog.String("error", err.Error()))
		}

		if task == nil {
			select {
			case <-s.claimCtx.Done():
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}

		s.runTask(stage, task, owner)
	}
}

// runTask executes one claimed task with the stage's worker. Fatal errors
// stop the whole scheduler; everything else has already been recorded on
// the stage row.
func (s *Scheduler) runTask(stage models.Stage, task *store.ClaimedTask, owner string) {
	var err error
	switch stage.Kind() {
	case models.StageKindTranscription:
		err = workers.NewTranscriber(s.env).Run(s.taskCtx, task, owner)
	case models.StageKindTranslation:
		err = workers.NewTranslator(s.env).Run(s.taskCtx, task, owner)
	default:
		err = workers.NewEvaluator(s.env).Run(s.taskCtx, task, owner)
	}
	if err == nil {
		return
	}

	if workers.Fatal(err) {
		s.reportFatal(err)
		return
	}

	s.logger.Error("task failed",
		slog.String("file_id", task.File.ID.String()),
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()))
}

// reportFatal delivers the first fatal error and stops all claiming and
// in-flight work.
func (s *Scheduler) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}

	s.mu.Lock()
	if s.taskCancel != nil {
		s.taskCancel()
	}
	s.mu.Unlock()
}

// sweepLeases periodically reclaims expired leases.
func (s *Scheduler) sweepLeases() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.claimCtx.Done():
			return
		case <-ticker.C:
			n, err := s.env.Store.ReclaimExpiredLeases(s.claimCtx, time.Now())
			if err != nil {
				if s.claimCtx.Err() == nil {
					s.logger.Error("lease sweep failed", slog.String("error", err.Error()))
				}
				continue
			}
			if n > 0 {
				s.logger.Info("lease sweep reclaimed stages", slog.Int("count", n))
			}
		}
	}
}

// runVerifySweep is the cron entrypoint for the artifact verification
// sweep. Hash drift is fatal to the daemon.
func (s *Scheduler) runVerifySweep() {
	checked, err := VerifyArtifacts(s.taskCtx, s.env.Store, s.env.Artifacts, s.logger)
	if err != nil {
		if workers.Fatal(err) {
			s.reportFatal(err)
			return
		}
		s.logger.Error("artifact verification sweep failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("artifact verification sweep finished", slog.Int("checked", checked))
}
