package jobs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/meridian/internal/contracts"
	"github.com/wonny/meridian/internal/scheduler"
	"github.com/wonny/meridian/pkg/logger"
)

type stubRunner struct {
	summary *contracts.RunSummary
	err     error
}

func (s *stubRunner) Run(ctx context.Context, window contracts.RunWindow) (*contracts.RunSummary, error) {
	return s.summary, s.err
}

func TestETLJobSuccess(t *testing.T) {
	runner := &stubRunner{
		summary: &contracts.RunSummary{RunID: "run-1", Status: contracts.RunStatusComplete},
	}
	job := NewETLJob(runner, logger.NewNop())

	require.NoError(t, job.Run(context.Background()))
}

func TestETLJobDuplicateGrainNotRetryable(t *testing.T) {
	runner := &stubRunner{
		summary: &contracts.RunSummary{RunID: "run-2", Status: contracts.RunStatusFailed},
		err:     fmt.Errorf("quality gate: %w", contracts.ErrDuplicateGrain),
	}
	job := NewETLJob(runner, logger.NewNop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrNoRetry, "a rerun would rebuild the same output")
	assert.ErrorIs(t, err, contracts.ErrDuplicateGrain)
}

func TestETLJobTransientFailureStaysRetryable(t *testing.T) {
	runner := &stubRunner{
		summary: &contracts.RunSummary{RunID: "run-3", Status: contracts.RunStatusFailed},
		err:     fmt.Errorf("aligning: %w", contracts.ErrStageTimeout),
	}
	job := NewETLJob(runner, logger.NewNop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, scheduler.ErrNoRetry)
}
