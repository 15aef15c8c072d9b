package cpu

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tutu-network/hotplug/internal/domain"
	"github.com/tutu-network/hotplug/internal/infra/hotplug"
)

// ─── Simulated Machine (for running without root or real hotplug) ───────────

// Simulated is an in-process machine: a fixed number of runnable threads is
// spread evenly over the online cores and integrated on every Snapshot.
// It implements every platform interface the controller needs.
type Simulated struct {
	clock hotplug.Clock
	delay time.Duration

	mu        sync.Mutex
	online    []bool
	fixed     []bool
	integrals []uint64
	threads   float64
	last      uint64
}

// SimulatedOptions configures NewSimulated.
type SimulatedOptions struct {
	Cores   int
	Online  int     // initially online, 0 means all
	Threads float64 // runnable threads system-wide
	// TransitionDelay is how long a core takes to change state.
	TransitionDelay time.Duration
	// FixedCores cannot be switched, like a boot core without a control.
	FixedCores []int
	Clock      hotplug.Clock
}

// NewSimulated builds a simulated machine.
func NewSimulated(opts SimulatedOptions) (*Simulated, error) {
	if opts.Cores < 1 {
		return nil, domain.ErrNoCores
	}
	if opts.Online <= 0 || opts.Online > opts.Cores {
		opts.Online = opts.Cores
	}
	if opts.Clock == nil {
		opts.Clock = MonotonicClock{}
	}

	s := &Simulated{
		clock:     opts.Clock,
		delay:     opts.TransitionDelay,
		online:    make([]bool, opts.Cores),
		fixed:     make([]bool, opts.Cores),
		integrals: make([]uint64, opts.Cores),
		threads:   max(opts.Threads, 0),
	}
	for cpu := 0; cpu < opts.Online; cpu++ {
		s.online[cpu] = true
	}
	for _, cpu := range opts.FixedCores {
		if cpu < 0 || cpu >= opts.Cores {
			return nil, fmt.Errorf("fixed core %d: %w", cpu, domain.ErrCoreOutOfRange)
		}
		s.fixed[cpu] = true
		s.online[cpu] = true
	}
	s.last = s.clock.Nanotime()
	return s, nil
}

// SetLoad changes the number of runnable threads from now on.
func (s *Simulated) SetLoad(threads float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	s.threads = max(threads, 0)
}

// Load returns the configured number of runnable threads.
func (s *Simulated) Load() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads
}

func (s *Simulated) TotalCores() int { return len(s.online) }

func (s *Simulated) PresentCores() []int {
	out := make([]int, len(s.online))
	for cpu := range out {
		out[cpu] = cpu
	}
	return out
}

func (s *Simulated) OnlineCores() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for cpu, on := range s.online {
		if on {
			out = append(out, cpu)
		}
	}
	return out, nil
}

func (s *Simulated) Nanotime() uint64 {
	return s.clock.Nanotime()
}

// Snapshot integrates the load over the time since the previous call.
func (s *Simulated) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked()
	return nil
}

func (s *Simulated) RunnableTime(cpu int) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cpu < 0 || cpu >= len(s.integrals) {
		return 0, fmt.Errorf("cpu %d: %w", cpu, domain.ErrCoreOutOfRange)
	}
	return s.integrals[cpu], nil
}

func (s *Simulated) BringOnline(ctx context.Context, cpu int) error {
	return s.transition(ctx, cpu, true)
}

func (s *Simulated) TakeOffline(ctx context.Context, cpu int) error {
	return s.transition(ctx, cpu, false)
}

func (s *Simulated) transition(ctx context.Context, cpu int, online bool) error {
	if cpu < 0 || cpu >= len(s.online) {
		return fmt.Errorf("cpu %d: %w", cpu, domain.ErrCoreOutOfRange)
	}
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fixed[cpu] {
		return fmt.Errorf("cpu %d: %w", cpu, domain.ErrCoreNotHotpluggable)
	}
	s.advanceLocked()
	s.online[cpu] = online
	return nil
}

// advanceLocked spreads threads evenly over the online cores for the time
// elapsed since the last call.
func (s *Simulated) advanceLocked() {
	now := s.clock.Nanotime()
	if now <= s.last {
		return
	}
	dt := now - s.last
	s.last = now

	n := 0
	for _, on := range s.online {
		if on {
			n++
		}
	}
	if n == 0 {
		return
	}
	perCore := s.threads / float64(n) * domain.FixedOne
	add := uint64(math.Round(perCore * float64(dt)))
	for cpu, on := range s.online {
		if on {
			s.integrals[cpu] += add
		}
	}
}
