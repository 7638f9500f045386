package power

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

type fakePublisher struct {
	topic    string
	payload  string
	retained bool
	calls    int
	err      error
}

func (f *fakePublisher) Connect(ctx context.Context) error { return nil }
func (f *fakePublisher) IsConnected() bool                 { return true }
func (f *fakePublisher) Disconnect()                       {}
func (f *fakePublisher) Publish(ctx context.Context, topic, payload string, retained bool) error {
	f.calls++
	f.topic = topic
	f.payload = payload
	f.retained = retained
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleJobPublishesPowerOff(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	s := NewSignaller(pub, "piccolo", discardLogger())

	s.HandleJob(context.Background(), piccolospec.Job{Command: "power_off"})

	require.Equal(t, 1, pub.calls)
	assert.Equal(t, "piccolo/power", pub.topic)
	assert.Equal(t, "off", pub.payload)
	assert.True(t, pub.retained)
}

func TestHandleJobPublishesPowerOn(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	s := NewSignaller(pub, "piccolo", discardLogger())

	s.HandleJob(context.Background(), piccolospec.Job{Command: "power_on"})

	assert.Equal(t, "on", pub.payload)
}

func TestHandleJobIgnoresUnrelatedJobs(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	s := NewSignaller(pub, "piccolo", discardLogger())

	s.HandleJob(context.Background(), piccolospec.Job{Command: "record"})

	assert.Zero(t, pub.calls)
}

func TestHandleJobsProcessesBatch(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	s := NewSignaller(pub, "piccolo", discardLogger())

	s.HandleJobs(context.Background(), []piccolospec.Job{
		{Command: "record"},
		{Command: "power_off"},
	})

	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "off", pub.payload)
}
