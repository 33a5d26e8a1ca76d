package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	domrepo "BarPull/internal/domain/repository"
	"BarPull/pkg/queue"
)

func TestRetryPolicy(t *testing.T) {
	assert.NoError(t, retryPolicy(nil))

	for _, err := range []error{
		domrepo.ErrConfiguration,
		domrepo.ErrInstrumentNotFound,
		domrepo.ErrInstrumentInactive,
		domrepo.ErrJobInProgress,
		fmt.Errorf("%w: 2h", domrepo.ErrUnsupportedTimeframe),
	} {
		got := retryPolicy(err)
		assert.True(t, queue.IsNoRetry(got), "%v", err)
		assert.ErrorIs(t, got, err)
	}

	canceled := retryPolicy(context.Canceled)
	assert.False(t, queue.IsNoRetry(canceled))
	assert.ErrorIs(t, canceled, context.Canceled)

	storeErr := retryPolicy(fmt.Errorf("save chunk: %w", domrepo.ErrStoreWrite))
	assert.False(t, queue.IsNoRetry(storeErr))
	assert.ErrorIs(t, storeErr, domrepo.ErrStoreWrite)
}

func TestQueueJobsRejectBadPayload(t *testing.T) {
	for _, j := range Jobs(nil) {
		err := j.Handle(context.Background(), "not a command")
		assert.True(t, queue.IsNoRetry(err), j.Type())
	}
	assert.Equal(t, []string{MsgBackfill, MsgRepair, MsgQuality}, jobTypes(Jobs(nil)))
}

func jobTypes(jobs []queue.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Type())
	}
	return out
}
