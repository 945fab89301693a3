package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

// DefaultInterval is the time between cycles when none is configured.
const DefaultInterval = 30 * time.Second

// Trigger says what started a cycle.
type Trigger string

// Cycle triggers.
const (
	TriggerStartup  Trigger = "startup"
	TriggerInterval Trigger = "interval"
	TriggerRequest  Trigger = "request"
)

// Syncer runs one write-then-read cycle. *systemair.Unit satisfies it.
type Syncer interface {
	SyncOnce(ctx context.Context) (systemair.Result, error)
}

// Logger is the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Report describes one finished cycle.
type Report struct {
	CycleID   uuid.UUID
	Name      string
	Trigger   Trigger
	At        time.Time
	Result    systemair.Result
	Err       error
	Available bool
}

// Listener is notified after every cycle. OnCycle runs on the coordinator
// goroutine and must return quickly.
type Listener interface {
	OnCycle(Report)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Report)

// OnCycle calls f(r).
func (f ListenerFunc) OnCycle(r Report) { f(r) }

// Options configures a Coordinator.
type Options struct {
	// Name identifies the unit in logs and reports.
	Name string

	// Interval between the end of one cycle and the start of the next.
	// Default: DefaultInterval
	Interval time.Duration

	// CycleTimeout bounds a single cycle. Default: Interval
	CycleTimeout time.Duration

	Syncer Syncer
	Logger Logger
}

// Coordinator polls a Syncer on an interval.
//
// Thread Safety: All methods are safe for concurrent use.
type Coordinator struct {
	name         string
	interval     time.Duration
	cycleTimeout time.Duration
	syncer       Syncer
	logger       Logger

	refresh chan struct{}

	stateMu   sync.RWMutex
	ready     bool
	available bool
	last      *Report

	listenersMu sync.RWMutex
	listeners   []Listener

	started  bool
	startMu  sync.Mutex
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a coordinator. Call FirstRefresh, then Start.
func New(opts Options) (*Coordinator, error) {
	if opts.Syncer == nil {
		return nil, ErrNoSyncer
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = opts.Interval
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Coordinator{
		name:         opts.Name,
		interval:     opts.Interval,
		cycleTimeout: opts.CycleTimeout,
		syncer:       opts.Syncer,
		logger:       opts.Logger,
		refresh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}, nil
}

// Interval returns the polling interval.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// Subscribe adds a listener for cycle reports.
func (c *Coordinator) Subscribe(l Listener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// FirstRefresh runs the initial cycle. On failure the coordinator stays
// not ready and the error wraps ErrNotReady. Calling it again after a
// success runs another cycle without changing readiness.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	report := c.runCycle(ctx, TriggerStartup)
	if report.Err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, report.Err)
	}

	c.stateMu.Lock()
	c.ready = true
	c.stateMu.Unlock()

	c.logger.Info("unit ready", "unit", c.name)
	return nil
}

// Start begins periodic polling. It returns ErrNotReady until a
// FirstRefresh has succeeded.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.Ready() {
		return ErrNotReady
	}

	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("polling started", "unit", c.name, "interval", c.interval)
	return nil
}

// Stop ends polling and waits for an in-flight cycle to finish.
// Safe to call multiple times and before Start.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

// RequestRefresh asks for a cycle as soon as possible. Requests made while
// one is already pending are merged. It never blocks.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Ready reports whether the first refresh has succeeded.
func (c *Coordinator) Ready() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.ready
}

// Available reports whether the most recent cycle succeeded.
func (c *Coordinator) Available() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.available
}

// LastReport returns the most recent cycle report, if any.
func (c *Coordinator) LastReport() (Report, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		var trigger Trigger
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-timer.C:
			trigger = TriggerInterval
		case <-c.refresh:
			trigger = TriggerRequest
			timer.Stop()
		}

		c.runCycle(ctx, trigger)
		timer.Reset(c.interval)
	}
}

// runCycle executes one sync, records the outcome and notifies listeners.
func (c *Coordinator) runCycle(ctx context.Context, trigger Trigger) Report {
	cycleCtx, cancel := context.WithTimeout(ctx, c.cycleTimeout)
	defer cancel()

	report := Report{
		CycleID: uuid.New(),
		Name:    c.name,
		Trigger: trigger,
	}
	report.Result, report.Err = c.syncer.SyncOnce(cycleCtx)
	report.At = time.Now()
	report.Available = report.Err == nil

	c.stateMu.Lock()
	wasAvailable := c.available
	hadCycle := c.last != nil
	c.available = report.Available
	c.last = &report
	c.stateMu.Unlock()

	switch {
	case report.Err != nil && (wasAvailable || !hadCycle):
		c.logger.Error("sync failed, unit unavailable", "unit", c.name, "trigger", trigger, "error", report.Err)
	case report.Err != nil:
		c.logger.Debug("sync still failing", "unit", c.name, "trigger", trigger, "error", report.Err)
	case !wasAvailable && hadCycle:
		c.logger.Info("unit available again", "unit", c.name)
	default:
		c.logger.Debug("sync completed", "unit", c.name, "trigger", trigger,
			"duration_ms", report.Result.Duration.Milliseconds(), "dirty", report.Result.Dirty)
	}

	c.notify(report)
	return report
}

func (c *Coordinator) notify(report Report) {
	c.listenersMu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		c.safeNotify(l, report)
	}
}

// safeNotify isolates the loop from a panicking listener.
func (c *Coordinator) safeNotify(l Listener, report Report) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in cycle listener", "unit", c.name, "panic", r)
		}
	}()
	l.OnCycle(report)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
