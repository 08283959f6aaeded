package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"post-insight-pipeline/internal/logger"
	"post-insight-pipeline/services"
)

const (
	TaskEnrichBatch = "pipeline:enrich"
	TaskSyncIndex   = "index:sync"
)

type EnrichPayload struct {
	BatchSize int64 `json:"batch_size"`
	Force     bool  `json:"force"`
}

type SyncPayload struct {
	BatchSize int64 `json:"batch_size"`
}

// Task creators
func NewEnrichTask(batchSize int64, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(EnrichPayload{
		BatchSize: batchSize,
		Force:     force,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskEnrichBatch,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
	), nil
}

func NewSyncTask(batchSize int64) (*asynq.Task, error) {
	payload, err := json.Marshal(SyncPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskSyncIndex,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("default"),
	), nil
}

// Task handlers
type TaskProcessor struct {
	enricher *services.Enricher
	syncer   *services.IndexSyncer
}

func NewTaskProcessor(enricher *services.Enricher, syncer *services.IndexSyncer) *TaskProcessor {
	return &TaskProcessor{
		enricher: enricher,
		syncer:   syncer,
	}
}

func (p *TaskProcessor) EnrichBatch(ctx context.Context, t *asynq.Task) error {
	var payload EnrichPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("enrichment task started", "batch_size", payload.BatchSize, "force", payload.Force)

	summary, err := p.enricher.Run(ctx, services.EnrichOptions{
		BatchSize: payload.BatchSize,
		Force:     payload.Force,
	})
	if err != nil {
		return err // Will retry
	}

	if summary.Failed > 0 {
		logger.Warn("enrichment task completed with failures",
			"failed", summary.Failed,
			"failed_ids", summary.FailedIDs,
		)
	}
	return nil
}

func (p *TaskProcessor) SyncIndex(ctx context.Context, t *asynq.Task) error {
	var payload SyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("index sync task started", "batch_size", payload.BatchSize)

	summary, err := p.syncer.Sync(ctx, payload.BatchSize)
	if err != nil {
		return err // Will retry
	}

	if summary.Failed > 0 {
		logger.Warn("index sync task completed with failures",
			"failed", summary.Failed,
			"failed_ids", summary.FailedIDs,
		)
	}
	return nil
}
