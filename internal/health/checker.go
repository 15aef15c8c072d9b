// Package health provides periodic health checks with auto-recovery for the
// hotplug daemon: the journal database, the cpu topology and the controller
// loop itself.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/tutu-network/hotplug/internal/infra/hotplug"
	"github.com/tutu-network/hotplug/internal/infra/metrics"
)

// DefaultInterval is how often checks run.
const DefaultInterval = 30 * time.Second

// stallFactor is how many sample periods may pass without a tick before a
// running controller counts as stalled.
const stallFactor = 50

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is satisfied by the journal database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller is the part of the hotplug controller the checks inspect.
type Controller interface {
	IsEnabled() bool
	LastTick() time.Time
	Settings() *hotplug.Settings
	Restart()
}

// Options selects what NewChecker checks. Nil collaborators are skipped.
type Options struct {
	DB         Pinger
	Topology   hotplug.Topology
	Controller Controller
	Interval   time.Duration
	Log        logr.Logger
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      logr.Logger
	now      func() time.Time
}

// NewChecker creates a health checker for the collaborators in opts.
func NewChecker(opts Options) *Checker {
	c := &Checker{
		interval: opts.Interval,
		log:      opts.Log.WithName("health"),
		now:      time.Now,
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}

	if opts.DB != nil {
		c.checks = append(c.checks, Check{
			Name: "sqlite",
			CheckFn: func(ctx context.Context) error {
				return opts.DB.Ping(ctx)
			},
		})
	}
	if opts.Topology != nil {
		c.checks = append(c.checks, Check{
			Name: "topology",
			CheckFn: func(ctx context.Context) error {
				return checkTopology(opts.Topology)
			},
		})
	}
	if opts.Controller != nil {
		c.checks = append(c.checks, Check{
			Name: "controller",
			CheckFn: func(ctx context.Context) error {
				return checkController(opts.Controller, c.now())
			},
			RecoverFn: func(ctx context.Context) error {
				opts.Controller.Restart()
				return nil
			},
		})
	}
	return c
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) error {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: c.now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			c.log.Error(err, "health check failed", "check", check.Name)
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.log.Error(rerr, "recovery failed", "check", check.Name)
				} else {
					c.log.Info("recovery attempted", "check", check.Name)
				}
			}
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

var (
	errNoOnlineCores     = errors.New("topology reports no online cores")
	errControllerStalled = errors.New("controller has not ticked")
)

func checkTopology(t hotplug.Topology) error {
	online, err := t.OnlineCores()
	if err != nil {
		return fmt.Errorf("read online cores: %w", err)
	}
	if len(online) == 0 {
		return errNoOnlineCores
	}
	return nil
}

func checkController(c Controller, now time.Time) error {
	if !c.IsEnabled() {
		return nil
	}
	last := c.LastTick()
	if last.IsZero() {
		return nil // first tick still pending
	}
	limit := stallFactor*c.Settings().Tunables().SampleRate + time.Second
	if now.Sub(last) > limit {
		return fmt.Errorf("%w for %s", errControllerStalled, now.Sub(last).Truncate(time.Millisecond))
	}
	return nil
}
