package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docuchat-backend/internal/logger"
	"github.com/yungbote/docuchat-backend/internal/repos"
	"github.com/yungbote/docuchat-backend/internal/types"
)

// WakeChannel is published on every enqueue so idle workers pick up new
// jobs without waiting for the next poll tick.
const WakeChannel = "docuchat:ingest:wake"

type Queue struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.IngestJobRepo
	rdb  *redis.Client
}

// NewQueue builds the durable job queue. rdb may be nil; the queue then
// degrades to poll-only pickup.
func NewQueue(db *gorm.DB, baseLog *logger.Logger, repo repos.IngestJobRepo, rdb *redis.Client) *Queue {
	return &Queue{
		db:   db,
		log:  baseLog.With("component", "JobQueue"),
		repo: repo,
		rdb:  rdb,
	}
}

// Enqueue inserts a queued job row inside the caller's transaction, so a
// rolled-back upload leaves no job behind and a committed upload cannot
// lose its job. The redis wake is best-effort; a worker woken before the
// commit simply finds nothing and goes back to sleep.
func (q *Queue) Enqueue(ctx context.Context, tx *gorm.DB, jobName string, payload any) (*types.IngestJob, error) {
	if jobName == "" {
		return nil, fmt.Errorf("jobName required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	job := &types.IngestJob{
		JobName: jobName,
		Status:  types.JobStatusQueued,
		Payload: datatypes.JSON(raw),
	}
	if _, err := q.repo.Create(ctx, tx, job); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobName, err)
	}
	q.log.Debug("Job enqueued", "job_id", job.ID, "job_name", jobName)

	if q.rdb != nil {
		if err := q.rdb.Publish(ctx, WakeChannel, job.ID.String()).Err(); err != nil {
			q.log.Warn("Failed to publish job wake signal", "job_id", job.ID, "error", err)
		}
	}
	return job, nil
}
