package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/meridian/pkg/logger"
)

type noopJob struct {
	name string
	ran  chan struct{}
}

func (j *noopJob) Name() string     { return j.name }
func (j *noopJob) Schedule() string { return "0 0 3 * * *" }
func (j *noopJob) Run(ctx context.Context) error {
	select {
	case j.ran <- struct{}{}:
	default:
	}
	return nil
}

func TestAddJobRejectsDuplicates(t *testing.T) {
	s := New(logger.NewNop())
	job := &noopJob{name: "etl_run", ran: make(chan struct{}, 1)}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job))
	assert.Equal(t, []string{"etl_run"}, s.GetAllJobs())
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(logger.NewNop())
	bad := &badScheduleJob{}
	assert.Error(t, s.AddJob(bad))
}

type badScheduleJob struct{}

func (badScheduleJob) Name() string                  { return "broken" }
func (badScheduleJob) Schedule() string              { return "not a schedule" }
func (badScheduleJob) Run(ctx context.Context) error { return nil }

func TestRunJobImmediately(t *testing.T) {
	s := New(logger.NewNop())
	job := &noopJob{name: "etl_run", ran: make(chan struct{}, 1)}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("etl_run"))
	select {
	case <-job.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	require.Eventually(t, func() bool {
		history, err := s.GetJobHistory("etl_run")
		return err == nil && len(history.Results) == 1 && history.Results[0].Success
	}, 5*time.Second, 10*time.Millisecond)

	assert.Error(t, s.RunJob("unknown"))
}

type nonRetryableJob struct {
	attempts atomic.Int32
}

func (j *nonRetryableJob) Name() string     { return "etl_run" }
func (j *nonRetryableJob) Schedule() string { return "0 0 3 * * *" }
func (j *nonRetryableJob) Run(ctx context.Context) error {
	j.attempts.Add(1)
	return fmt.Errorf("%w: broken build output", ErrNoRetry)
}

func TestRunJobDoesNotRetryNonRetryableErrors(t *testing.T) {
	s := New(logger.NewNop())
	job := &nonRetryableJob{}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("etl_run"))

	require.Eventually(t, func() bool {
		history, err := s.GetJobHistory("etl_run")
		return err == nil && len(history.Results) == 1
	}, 5*time.Second, 10*time.Millisecond)

	history, err := s.GetJobHistory("etl_run")
	require.NoError(t, err)
	result := history.Results[0]
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "broken build output")
	assert.Equal(t, int32(1), job.attempts.Load(), "non-retryable failure runs exactly once")
}

func TestJobHistoryBookkeeping(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{JobName: "etl_run", Success: i%3 != 0})
	}

	assert.Len(t, h.Results, 100, "history is bounded")
	assert.Len(t, h.GetLatestResults(10), 10)
	assert.InDelta(t, 0.66, h.GetSuccessRate(), 0.05)
}
