package usecase

import (
	"context"
	"errors"
	"fmt"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	"BarPull/pkg/queue"
)

// Queue message types.
const (
	MsgBackfill = "backfill"
	MsgRepair   = "repair"
	MsgQuality  = "quality"
)

// BackfillQueueJob runs BackfillCommand messages.
type BackfillQueueJob struct{ engine *Engine }

func NewBackfillQueueJob(e *Engine) *BackfillQueueJob { return &BackfillQueueJob{engine: e} }

func (j *BackfillQueueJob) Name() string { return "backfill-job" }
func (j *BackfillQueueJob) Type() string { return MsgBackfill }

func (j *BackfillQueueJob) Handle(ctx context.Context, payload interface{}) error {
	cmd, err := queue.ParsePayload[models.BackfillCommand](payload)
	if err != nil {
		return queue.NoRetry(err)
	}
	_, err = j.engine.Backfill(ctx, *cmd)
	return retryPolicy(err)
}

// RepairQueueJob runs RepairCommand messages.
type RepairQueueJob struct{ engine *Engine }

func NewRepairQueueJob(e *Engine) *RepairQueueJob { return &RepairQueueJob{engine: e} }

func (j *RepairQueueJob) Name() string { return "repair-job" }
func (j *RepairQueueJob) Type() string { return MsgRepair }

func (j *RepairQueueJob) Handle(ctx context.Context, payload interface{}) error {
	cmd, err := queue.ParsePayload[models.RepairCommand](payload)
	if err != nil {
		return queue.NoRetry(err)
	}
	_, err = j.engine.RepairGaps(ctx, *cmd)
	return retryPolicy(err)
}

// QualityQueueJob runs QualityCommand messages.
type QualityQueueJob struct{ engine *Engine }

func NewQualityQueueJob(e *Engine) *QualityQueueJob { return &QualityQueueJob{engine: e} }

func (j *QualityQueueJob) Name() string { return "quality-job" }
func (j *QualityQueueJob) Type() string { return MsgQuality }

func (j *QualityQueueJob) Handle(ctx context.Context, payload interface{}) error {
	cmd, err := queue.ParsePayload[models.QualityCommand](payload)
	if err != nil {
		return queue.NoRetry(err)
	}
	_, err = j.engine.AssessQuality(ctx, *cmd)
	return retryPolicy(err)
}

// Jobs returns every queue job backed by e.
func Jobs(e *Engine) []queue.Job {
	return []queue.Job{NewBackfillQueueJob(e), NewRepairQueueJob(e), NewQualityQueueJob(e)}
}

// retryPolicy leaves store failures to the queue's whole-job retry and
// marks everything a rerun cannot fix.
func retryPolicy(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, domrepo.ErrConfiguration),
		errors.Is(err, domrepo.ErrNotFound),
		errors.Is(err, domrepo.ErrInstrumentInactive),
		errors.Is(err, domrepo.ErrJobInProgress):
		return queue.NoRetry(err)
	default:
		return fmt.Errorf("job failed: %w", err)
	}
}
