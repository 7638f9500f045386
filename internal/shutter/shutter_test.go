package shutter

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBackend struct {
	opens, closes int
}

func (f *fakeBackend) Open(ctx context.Context) error {
	f.opens++
	return nil
}

func (f *fakeBackend) Close(ctx context.Context) error {
	f.closes++
	return nil
}

func TestNewClosesOnStartup(t *testing.T) {
	backend := &fakeBackend{}
	s, err := New(context.Background(), "upwelling", backend, false, 600, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, Closed, s.Status())
	assert.Equal(t, 1, backend.closes)
}

func TestOpenCloseIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	s, err := New(context.Background(), "upwelling", backend, false, 600, discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, 1, backend.opens, "second open should not re-pulse the relay")
	assert.Equal(t, Open, s.Status())

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 2, backend.closes, "startup close plus the one explicit close")
	assert.Equal(t, Closed, s.Status())
}

func TestStatusChangeNotification(t *testing.T) {
	s, err := New(context.Background(), "downwelling", nil, false, 400, discardLogger())
	require.NoError(t, err)

	changes := make(chan State, 2)
	unsub := s.OnStatusChange(func(st State) { changes <- st })
	defer unsub()

	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, Open, <-changes)
	assert.Equal(t, Closed, <-changes)
}

func TestOpenForClosesAfterDuration(t *testing.T) {
	backend := &fakeBackend{}
	s, err := New(context.Background(), "upwelling", backend, false, 600, discardLogger())
	require.NoError(t, err)

	changes := make(chan State, 2)
	unsub := s.OnStatusChange(func(st State) { changes <- st })
	defer unsub()

	s.OpenFor(context.Background(), 10*time.Millisecond)

	assert.Equal(t, Open, <-changes)
	assert.Equal(t, Closed, <-changes)
	assert.Equal(t, Closed, s.Status())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	up, err := New(context.Background(), "upwelling", nil, false, 600, discardLogger())
	require.NoError(t, err)
	down, err := New(context.Background(), "downwelling", nil, true, 400, discardLogger())
	require.NoError(t, err)

	r.Add(up)
	r.Add(down)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"downwelling", "upwelling"}, r.Channels())

	got, ok := r.Get("upwelling")
	assert.True(t, ok)
	assert.Same(t, up, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}
