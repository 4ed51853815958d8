package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/repos"
	"github.com/yungbote/docuchat-backend/internal/types"
)

type WorkerConfig struct {
	Concurrency  int
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.IngestJobRepo
	registry *Registry
	rdb      *redis.Client
	cfg      WorkerConfig
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.IngestJobRepo, registry *Registry, rdb *redis.Client, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 2 * time.Minute
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		rdb:      rdb,
		cfg:      cfg,
	}
}

// Start launches the worker pool. Each worker wakes on the poll tick or on
// a redis wake signal and then drains the queue until a claim comes back
// empty. Delivery is at least once; handlers must tolerate re-delivery.
func (w *Worker) Start(ctx context.Context) {
	wake := make(chan struct{}, 1)
	if w.rdb != nil {
		go w.listenWake(ctx, wake)
	}
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.loop(ctx, i, wake)
	}
	w.log.Info("Job workers started", "concurrency", w.cfg.Concurrency)
}

func (w *Worker) listenWake(ctx context.Context, wake chan struct{}) {
	sub := w.rdb.Subscribe(ctx, WakeChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

func (w *Worker) loop(ctx context.Context, id int, wake chan struct{}) {
	log := w.log.With("worker", id)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
		w.drain(ctx, log)
	}
}

func (w *Worker) drain(ctx context.Context, log *logger.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.repo.ClaimNextRunnable(ctx, w.db, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
		if err != nil {
			log.Warn("ClaimNextRunnable failed", "error", err)
			return
		}
		if job == nil {
			return
		}
		w.run(ctx, log, job)
	}
}

func (w *Worker) run(ctx context.Context, log *logger.Logger, job *types.IngestJob) {
	log = log.With("job_id", job.ID, "job_name", job.JobName)

	h, ok := w.registry.Get(job.JobName)
	if !ok {
		log.Warn("No handler registered for job_name")
		w.markFailed(ctx, job, fmt.Errorf("no handler registered for job_name=%s", job.JobName))
		return
	}

	// Heartbeat while the handler runs so a live job never looks stale.
	hbCtx, stopHB := context.WithCancel(ctx)
	go func() {
		interval := w.cfg.StaleRunning / 4
		if interval < time.Second {
			interval = time.Second
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				_ = w.repo.Heartbeat(hbCtx, nil, job.ID)
			}
		}
	}()
	defer stopHB()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = h.Run(ctx, job)
	}()

	if runErr != nil {
		log.Warn("Job failed", "attempts", job.Attempts, "error", runErr)
		w.markFailed(ctx, job, runErr)
		return
	}
	now := time.Now()
	if err := w.repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":    types.JobStatusSucceeded,
		"error":     "",
		"locked_at": nil,
	}); err != nil {
		log.Warn("Failed to mark job succeeded", "error", err)
		return
	}
	log.Info("Job succeeded", "attempts", job.Attempts, "finished_at", now)
}

// markFailed records the error. Once attempts reach the max the job goes
// to dead and the claim query never picks it up again.
func (w *Worker) markFailed(ctx context.Context, job *types.IngestJob, runErr error) {
	status := types.JobStatusFailed
	if job.Attempts >= w.cfg.MaxAttempts {
		status = types.JobStatusDead
	}
	now := time.Now()
	if err := w.repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":        status,
		"error":         runErr.Error(),
		"last_error_at": now,
		"locked_at":     nil,
	}); err != nil {
		w.log.Warn("Failed to mark job failed", "job_id", job.ID, "error", err)
	}
	if status == types.JobStatusDead {
		w.log.Error("Job moved to dead letter", "job_id", job.ID, "job_name", job.JobName, "attempts", job.Attempts, "error", runErr)
	}
}
