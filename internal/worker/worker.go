package worker

import (
	"context"
	"time"
)

// Worker is a background job the registry runs on an interval
type Worker interface {
	// Name returns the unique identifier for this worker
	Name() string

	// Interval is the time between runs
	Interval() time.Duration

	// RunOnce does one unit of work and reports how many items it processed
	RunOnce(ctx context.Context) (int, error)
}

// Waker is implemented by workers that want to run before their interval
// elapses. A value on the channel triggers an immediate run.
type Waker interface {
	Wake() <-chan struct{}
}

// Starter is implemented by workers needing setup before their first run.
// Start is called with the registry's context.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by workers needing teardown after their last run
type Stopper interface {
	Stop() error
}

// Config holds the registry settings for one worker
type Config struct {
	// Enabled determines if the worker should run
	Enabled bool `json:"enabled"`
	// Interval overrides the worker's own interval when set
	Interval time.Duration `json:"interval,omitempty"`
}

// Info provides read-only information about a registered worker
type Info struct {
	Name      string     `json:"name"`
	Enabled   bool       `json:"enabled"`
	Interval  string     `json:"interval"`
	Runs      int64      `json:"runs"`
	Processed int64      `json:"processed"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}
