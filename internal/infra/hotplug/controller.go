package hotplug

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/tutu-network/hotplug/internal/domain"
)

// Options holds the construction-time choices of a Controller.
type Options struct {
	// PrimaryCore is never taken offline (usually the boot core).
	PrimaryCore int
	Observer    Observer
	// Intn picks the offline core to bring up. Defaults to math/rand/v2.
	Intn func(n int) int
}

// Controller owns the sampling timer, the actuation worker, the per-core
// sample table and the settings.
//
// Start and Stop are serialized by mu. The tick and actuation goroutines
// never take mu; they read state and nrRunLast atomically and check the
// state on entry, so Stop can wait for them while holding mu.
type Controller struct {
	log      logr.Logger
	backend  Backend
	settings *Settings
	sampler  *Sampler
	observer Observer
	primary  int
	present  []int
	intn     func(int) int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state     atomic.Int32
	nrRunLast atomic.Int64
	lastTick  atomic.Int64 // unix nanoseconds
	runID     atomic.Pointer[string]
	kick      chan struct{}
}

// New creates a disabled controller. The bounds and the number of threshold
// levels are sized from the count of present cores; the per-core sample
// table covers ids up to the highest present one.
func New(b Backend, t domain.Tunables, opts Options, log logr.Logger) (*Controller, error) {
	present := slices.Clone(b.Topology.PresentCores())
	if len(present) == 0 {
		return nil, domain.ErrNoCores
	}
	slices.Sort(present)
	if !slices.Contains(present, opts.PrimaryCore) {
		return nil, fmt.Errorf("primary core %d: %w", opts.PrimaryCore, domain.ErrCoreOutOfRange)
	}

	settings, err := NewSettings(len(present), t)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	c := &Controller{
		log:      log.WithName("controller"),
		backend:  b,
		settings: settings,
		sampler:  NewSampler(present[len(present)-1] + 1),
		observer: opts.Observer,
		primary:  opts.PrimaryCore,
		present:  present,
		intn:     opts.Intn,
		kick:     make(chan struct{}, 1),
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.intn == nil {
		c.intn = rand.IntN
	}
	c.nrRunLast.Store(1)
	return c, nil
}

// Settings returns the live configuration surface.
func (c *Controller) Settings() *Settings {
	return c.settings
}

// State returns the lifecycle state.
func (c *Controller) State() domain.State {
	return domain.State(c.state.Load())
}

// IsEnabled reports whether the controller is running.
func (c *Controller) IsEnabled() bool {
	return c.State() == domain.Running
}

// SetEnabled starts or stops the controller.
func (c *Controller) SetEnabled(enabled bool) {
	if enabled {
		c.Start()
	} else {
		c.Stop()
	}
}

// RunID identifies the current (or last) Running period.
func (c *Controller) RunID() string {
	if id := c.runID.Load(); id != nil {
		return *id
	}
	return ""
}

// Start moves to Running, forgets every per-core baseline and fires the
// first tick immediately. Starting a running controller does nothing.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == domain.Running {
		return
	}

	c.sampler.Reset()
	runID := uuid.NewString()
	c.runID.Store(&runID)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state.Store(int32(domain.Running))

	c.wg.Add(2)
	go c.sampleLoop(ctx)
	go c.actuationLoop(ctx)

	t := c.settings.Tunables()
	c.log.Info("controller started",
		"runID", runID,
		"cores", len(c.present),
		"sampleRate", t.SampleRate,
		"bounds", t.Bounds,
		"thresholds", t.Thresholds)
}

// Stop moves to Disabled, cancels the timer and any pending or in-flight
// actuation, and returns once both goroutines have exited.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != domain.Running {
		return
	}

	c.state.Store(int32(domain.Disabled))
	c.cancel()
	c.wg.Wait()

	select {
	case <-c.kick:
	default:
	}

	c.log.Info("controller stopped", "runID", c.RunID())
}

// Restart stops and starts the controller, beginning a new run.
func (c *Controller) Restart() {
	c.Stop()
	c.Start()
}

// LastTick returns when the last tick started, or the zero time.
func (c *Controller) LastTick() time.Time {
	ns := c.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run starts the controller and stops it when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.Start()
	<-ctx.Done()
	c.Stop()
	return nil
}

// Status returns a point-in-time view of the controller.
func (c *Controller) Status() domain.Status {
	online, err := c.backend.Topology.OnlineCores()
	if err != nil {
		c.log.V(1).Info("status: online cores unavailable", "error", err.Error())
	}
	return domain.Status{
		State:       c.State(),
		RunID:       c.RunID(),
		Load:        c.sampler.Load(),
		NrRun:       int(c.nrRunLast.Load()),
		OnlineCores: online,
		TotalCores:  len(c.present),
		Tunables:    c.settings.Tunables(),
	}
}

// CoreSample exposes the sampler state of one core.
func (c *Controller) CoreSample(cpu int) (CoreSample, bool) {
	return c.sampler.CoreSample(cpu)
}

// sampleLoop re-arms the timer after every tick with the sample rate in
// effect at that moment, so ticks never overlap.
func (c *Controller) sampleLoop(ctx context.Context) {
	defer c.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.tick()
			timer.Reset(c.settings.load().SampleRate)
		}
	}
}

// actuationLoop performs the transitions requested by ticks.
func (c *Controller) actuationLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.actuate(ctx)
		}
	}
}

// tick samples, updates the demanded core count and requests actuation when
// the online count should change. It returns false if it did nothing.
func (c *Controller) tick() (domain.TickReport, bool) {
	if c.State() != domain.Running {
		return domain.TickReport{}, false
	}
	start := time.Now()
	c.lastTick.Store(start.UnixNano())
	snap := c.settings.load()

	online, err := c.backend.Topology.OnlineCores()
	if err != nil {
		c.log.Error(err, "read online cores")
		return domain.TickReport{}, false
	}
	if s, ok := c.backend.Source.(Snapshotter); ok {
		if err := s.Snapshot(); err != nil {
			c.log.Error(err, "snapshot runnable time")
			return domain.TickReport{}, false
		}
	}

	res := c.sampler.Sample(online, c.backend.Source, c.backend.Clock, snap.exp)
	nrRun := bucket(res.Load, int(c.nrRunLast.Load()), snap.Thresholds, snap.HysteresisDivisor)
	c.nrRunLast.Store(int64(nrRun))

	action := decide(nrRun, len(online), snap.Bounds)
	if action != domain.NoOp {
		c.requestActuation()
	}

	report := domain.TickReport{
		Load:     res.Load,
		NrRun:    nrRun,
		Online:   len(online),
		Action:   action,
		Skipped:  res.Skipped,
		Duration: time.Since(start),
	}
	c.observer.ObserveTick(report)
	c.log.V(2).Info("tick",
		"load", domain.LoadThreads(res.Load),
		"nrRun", nrRun,
		"online", len(online),
		"action", action.String())
	return report, true
}

// requestActuation queues at most one pending actuation.
func (c *Controller) requestActuation() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// actuate re-evaluates the decision against the current online set, picks a
// core and performs one transition. Failures are reported, never retried:
// the next tick decides again.
func (c *Controller) actuate(ctx context.Context) (domain.HotplugEvent, bool) {
	if c.State() != domain.Running || ctx.Err() != nil {
		return domain.HotplugEvent{}, false
	}
	snap := c.settings.load()

	online, err := c.backend.Topology.OnlineCores()
	if err != nil {
		c.log.Error(err, "read online cores")
		return domain.HotplugEvent{}, false
	}

	nrRun := int(c.nrRunLast.Load())
	action := decide(nrRun, len(online), snap.Bounds)

	var (
		cpu int
		ok  bool
	)
	switch action {
	case domain.BringUp:
		cpu, ok = pickOffline(online, c.present, c.intn)
	case domain.TakeDown:
		cpu, ok = c.sampler.Lightest(online, c.primary)
	default:
		return domain.HotplugEvent{}, false
	}
	if !ok {
		c.log.V(1).Info("skipping transition", "reason", domain.ErrNoCandidate.Error(),
			"action", action.String(), "online", len(online))
		return domain.HotplugEvent{}, false
	}

	ev := domain.HotplugEvent{
		ID:     uuid.NewString(),
		RunID:  c.RunID(),
		At:     time.Now(),
		Action: action,
		CPU:    cpu,
		NrRun:  nrRun,
		Online: len(online),
	}

	if action == domain.BringUp {
		err = c.backend.Actuator.BringOnline(ctx, cpu)
	} else {
		err = c.backend.Actuator.TakeOffline(ctx, cpu)
	}
	ev.Duration = time.Since(ev.At)

	if err != nil {
		ev.Error = err.Error()
		c.log.Error(err, "core transition failed", "action", action.String(), "cpu", cpu)
	} else {
		c.log.Info("core transition", "action", action.String(), "cpu", cpu, "nrRun", nrRun, "online", len(online))
	}

	c.observer.ObserveEvent(ev)
	return ev, true
}
