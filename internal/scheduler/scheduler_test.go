package scheduler

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	store, err := OpenMemoryStore()
	require.NoError(t, err)
	s, err := New(store, discardLogger())
	require.NoError(t, err)
	return s
}

func TestNewLoadsDefaultSettings(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	settings := s.Settings()
	assert.False(t, settings.QuietTimeEnabled)
	assert.False(t, settings.PowerOffEnabled)
	assert.Equal(t, 22*time.Hour, settings.QuietStart)
	assert.Equal(t, 4*time.Hour, settings.QuietEnd)
	assert.Equal(t, 600*time.Second, settings.PowerDelay)
}

func TestAddRejectsPastNonRepeatingJob(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	past := time.Now().UTC().Add(-time.Hour)
	job, err := s.Add(piccolospec.Job{Command: "record"}, past, nil, nil, false)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestAddAndListJob(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	start := time.Now().UTC().Add(time.Hour)
	job, err := s.Add(piccolospec.Job{Command: "record", Args: []any{"run1"}}, start, nil, nil, false)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.NotZero(t, job.ID)

	jobs, err := s.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "record", jobs[0].Job.Command)
	assert.Equal(t, piccolospec.JobActive, jobs[0].Status)
}

func TestSuspendUnsuspendDelete(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	start := time.Now().UTC().Add(time.Hour)
	job, err := s.Add(piccolospec.Job{Command: "record"}, start, nil, nil, false)
	require.NoError(t, err)

	require.NoError(t, s.Suspend(job.ID))
	jobs, err := s.Jobs()
	require.NoError(t, err)
	assert.Equal(t, piccolospec.JobSuspended, jobs[0].Status)

	// idempotent: suspending again is a no-op, not an error
	require.NoError(t, s.Suspend(job.ID))

	require.NoError(t, s.Unsuspend(job.ID))
	jobs, err = s.Jobs()
	require.NoError(t, err)
	assert.Equal(t, piccolospec.JobActive, jobs[0].Status)

	require.NoError(t, s.Delete(job.ID))
	jobs, err = s.Jobs()
	require.NoError(t, err)
	assert.Equal(t, piccolospec.JobDeleted, jobs[0].Status)
}

func TestRunnableJobsFastForwardsAndYieldsOnce(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	now := time.Now().UTC()
	start := now.Add(-35 * time.Second)
	interval := 10 * time.Second
	end := now.Add(60 * time.Second)

	_, err := s.Add(piccolospec.Job{Command: "record"}, start, &interval, &end, false)
	require.NoError(t, err)

	jobs, err := s.RunnableJobs(now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "record", jobs[0].Command)

	all, err := s.Jobs()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.WithinDuration(t, start.Add(40*time.Second), all[0].NextTime, time.Second)

	jobs, err = s.RunnableJobs(now)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRunnableJobsGatedByQuietTime(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	require.NoError(t, s.SetQuietTimeEnabled(true))
	require.NoError(t, s.SetQuietStart(22*time.Hour))
	require.NoError(t, s.SetQuietEnd(4*time.Hour))

	anchor := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(24 * time.Hour)
	now := anchor.Add(23*time.Hour + 30*time.Minute)
	start := now.Add(-time.Minute)

	_, err := s.Add(piccolospec.Job{Command: "gated"}, start, nil, nil, false)
	require.NoError(t, err)
	_, err = s.Add(piccolospec.Job{Command: "ungated"}, start, nil, nil, true)
	require.NoError(t, err)

	jobs, err := s.RunnableJobs(now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "ungated", jobs[0].Command)
}

func TestPowerWindowCrossing(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	require.NoError(t, s.SetQuietTimeEnabled(true))
	require.NoError(t, s.SetPowerOffEnabled(true))
	require.NoError(t, s.SetQuietStart(22*time.Hour))
	require.NoError(t, s.SetQuietEnd(4*time.Hour))
	require.NoError(t, s.SetPowerDelay(time.Hour))

	anchor := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(24 * time.Hour)

	outsideWindow := anchor.Add(22*time.Hour + 30*time.Minute)
	jobs, err := s.RunnableJobs(outsideWindow)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	insideWindow := anchor.Add(24*time.Hour + time.Hour) // next day, 01:00
	jobs, err = s.RunnableJobs(insideWindow)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, powerOffCommand, jobs[0].Command)

	jobs, err = s.RunnableJobs(insideWindow)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	afterWindow := anchor.Add(24*time.Hour + 4*time.Hour + 30*time.Minute) // next day, 04:30
	jobs, err = s.RunnableJobs(afterWindow)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, powerOnCommand, jobs[0].Command)
}
