package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	name     string
	interval time.Duration
	runs     atomic.Int64
	wake     chan struct{}
	err      error
	started  atomic.Bool
	stopped  atomic.Bool
}

func newCountingWorker(name string, interval time.Duration) *countingWorker {
	return &countingWorker{name: name, interval: interval, wake: make(chan struct{}, 1)}
}

func (w *countingWorker) Name() string                { return w.name }
func (w *countingWorker) Interval() time.Duration     { return w.interval }
func (w *countingWorker) Wake() <-chan struct{}       { return w.wake }
func (w *countingWorker) Start(context.Context) error { w.started.Store(true); return nil }
func (w *countingWorker) Stop() error                 { w.stopped.Store(true); return nil }

func (w *countingWorker) RunOnce(ctx context.Context) (int, error) {
	w.runs.Add(1)
	return 1, w.err
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register(newCountingWorker("a", time.Hour), Config{Enabled: true}))
	assert.Error(t, r.Register(newCountingWorker("a", time.Hour), Config{Enabled: true}))
}

func TestStartRunsImmediatelyAndOnWake(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	w := newCountingWorker("reconciler", time.Hour)
	require.NoError(t, r.Register(w, Config{Enabled: true}))

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, w.started.Load())
	assert.Eventually(t, func() bool { return w.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	w.wake <- struct{}{}
	assert.Eventually(t, func() bool { return w.runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Trigger("reconciler"))
	assert.Eventually(t, func() bool { return w.runs.Load() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	assert.True(t, w.stopped.Load())
}

func TestIntervalOverride(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	w := newCountingWorker("fast", time.Hour)
	require.NoError(t, r.Register(w, Config{Enabled: true, Interval: 10 * time.Millisecond}))

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()
	assert.Eventually(t, func() bool { return w.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestDisabledWorker(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	w := newCountingWorker("off", time.Millisecond)
	require.NoError(t, r.Register(w, Config{Enabled: false}))

	require.NoError(t, r.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Stop())

	assert.Zero(t, w.runs.Load())
	assert.False(t, w.started.Load())
	assert.Error(t, r.Trigger("off"))
	assert.Error(t, r.Trigger("missing"))

	// Disabled workers can still be run by hand
	n, err := r.RunNow(context.Background(), "off")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListRecordsOutcome(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	ok := newCountingWorker("b-ok", time.Hour)
	failing := newCountingWorker("a-failing", time.Hour)
	failing.err = errors.New("boom")
	require.NoError(t, r.Register(ok, Config{Enabled: true}))
	require.NoError(t, r.Register(failing, Config{Enabled: true}))

	_, err := r.RunNow(context.Background(), "b-ok")
	require.NoError(t, err)
	_, err = r.RunNow(context.Background(), "a-failing")
	require.Error(t, err)

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "a-failing", infos[0].Name)
	assert.Equal(t, "boom", infos[0].LastError)
	assert.Equal(t, "b-ok", infos[1].Name)
	assert.Equal(t, int64(1), infos[1].Runs)
	assert.Equal(t, int64(1), infos[1].Processed)
	assert.NotNil(t, infos[1].LastRun)
	assert.Equal(t, "1h0m0s", infos[1].Interval)
}
