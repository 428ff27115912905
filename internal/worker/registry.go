package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry manages all registered workers and their lifecycle
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*entry
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type entry struct {
	worker  Worker
	config  Config
	trigger chan struct{}

	mu        sync.Mutex
	runs      int64
	processed int64
	lastRun   time.Time
	lastErr   error
}

// NewRegistry creates a new worker registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		workers: make(map[string]*entry),
		logger:  logger.With().Str("component", "workers").Logger(),
	}
}

// Register adds a worker to the registry
func (r *Registry) Register(w Worker, config Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := w.Name()
	if _, exists := r.workers[name]; exists {
		return fmt.Errorf("worker %s already registered", name)
	}

	r.workers[name] = &entry{
		worker:  w,
		config:  config,
		trigger: make(chan struct{}, 1),
	}
	r.logger.Info().
		Str("worker", name).
		Bool("enabled", config.Enabled).
		Dur("interval", interval(w, config)).
		Msg("registered worker")
	return nil
}

// Start starts all enabled workers and begins their run loops
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for name, e := range r.workers {
		if !e.config.Enabled {
			r.logger.Info().Str("worker", name).Msg("worker is disabled, skipping")
			continue
		}
		if s, ok := e.worker.(Starter); ok {
			if err := s.Start(r.ctx); err != nil {
				r.logger.Error().Err(err).Str("worker", name).Msg("failed to start worker")
				continue
			}
		}
		r.startLoop(name, e)
	}
	return nil
}

// Stop cancels all run loops, waits for them and stops the workers
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	for name, e := range r.workers {
		s, ok := e.worker.(Stopper)
		if !ok || !e.config.Enabled {
			continue
		}
		if err := s.Stop(); err != nil {
			r.logger.Error().Err(err).Str("worker", name).Msg("error stopping worker")
		}
	}
	return nil
}

// Trigger asks a running worker to run now. Triggers are coalesced.
func (r *Registry) Trigger(name string) error {
	r.mu.RLock()
	e, exists := r.workers[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("worker %s not found", name)
	}
	if !e.config.Enabled {
		return fmt.Errorf("worker %s is disabled", name)
	}

	select {
	case e.trigger <- struct{}{}:
	default:
	}
	return nil
}

// RunNow runs a worker synchronously, whether or not it is enabled
func (r *Registry) RunNow(ctx context.Context, name string) (int, error) {
	r.mu.RLock()
	e, exists := r.workers[name]
	r.mu.RUnlock()

	if !exists {
		return 0, fmt.Errorf("worker %s not found", name)
	}
	return r.run(ctx, name, e)
}

// List returns information about registered workers, sorted by name
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.workers))
	for name, e := range r.workers {
		e.mu.Lock()
		info := Info{
			Name:      name,
			Enabled:   e.config.Enabled,
			Interval:  interval(e.worker, e.config).String(),
			Runs:      e.runs,
			Processed: e.processed,
		}
		if !e.lastRun.IsZero() {
			t := e.lastRun
			info.LastRun = &t
		}
		if e.lastErr != nil {
			info.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func interval(w Worker, config Config) time.Duration {
	if config.Interval > 0 {
		return config.Interval
	}
	if d := w.Interval(); d > 0 {
		return d
	}
	return time.Minute
}

// startLoop starts a goroutine running the worker on schedule
func (r *Registry) startLoop(name string, e *entry) {
	every := interval(e.worker, e.config)
	var wake <-chan struct{}
	if w, ok := e.worker.(Waker); ok {
		wake = w.Wake()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Run initial pass
		if _, err := r.run(r.ctx, name, e); err != nil && r.ctx.Err() == nil {
			r.logger.Error().Err(err).Str("worker", name).Msg("initial run failed")
		}

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				r.logger.Debug().Str("worker", name).Msg("stopping worker loop")
				return
			case <-ticker.C:
			case <-wake:
			case <-e.trigger:
			}
			if _, err := r.run(r.ctx, name, e); err != nil && r.ctx.Err() == nil {
				r.logger.Error().Err(err).Str("worker", name).Msg("run failed")
			}
		}
	}()

	r.logger.Info().Str("worker", name).Dur("interval", every).Msg("started worker loop")
}

// run executes one pass and records its outcome
func (r *Registry) run(ctx context.Context, name string, e *entry) (int, error) {
	n, err := e.worker.RunOnce(ctx)

	e.mu.Lock()
	e.runs++
	e.processed += int64(n)
	e.lastRun = time.Now()
	e.lastErr = err
	e.mu.Unlock()

	if err != nil {
		return n, fmt.Errorf("worker %s failed: %w", name, err)
	}
	if n > 0 {
		r.logger.Debug().Str("worker", name).Int("processed", n).Msg("worker run complete")
	}
	return n, nil
}
