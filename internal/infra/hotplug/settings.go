package hotplug

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tutu-network/hotplug/internal/domain"
)

// Defaults tuned for a 20ms sample over a 100ms window.
const (
	DefaultSampleRate        = 20 * time.Millisecond
	DefaultWindow            = 100 * time.Millisecond
	DefaultHysteresisDivisor = 2 // half a thread

	// defaultThresholdLevel pads generated levels by 1/4 thread.
	defaultThresholdLevel = 4
)

var defaultThresholds = []uint32{10, 18, 20}

// DefaultThresholds returns the first levels-1 thresholds for a machine with
// levels cores. Levels past the built-in table are i+1 threads plus a quarter
// thread, never below the previous level.
func DefaultThresholds(levels int) []uint32 {
	if levels <= 1 {
		return []uint32{}
	}
	out := make([]uint32, levels-1)
	for i := range out {
		switch {
		case i < len(defaultThresholds):
			out[i] = defaultThresholds[i]
		default:
			out[i] = uint32(i+1)*domain.ThresholdScale + domain.ThresholdScale/defaultThresholdLevel
		}
		if i > 0 && out[i] < out[i-1] {
			out[i] = out[i-1]
		}
	}
	return out
}

// DefaultTunables returns the defaults for a machine with totalCores cores.
func DefaultTunables(totalCores int) domain.Tunables {
	return domain.Tunables{
		SampleRate:        DefaultSampleRate,
		Window:            DefaultWindow,
		HysteresisDivisor: DefaultHysteresisDivisor,
		Bounds:            domain.Bounds{Min: 1, Max: uint32(totalCores)},
		Thresholds:        DefaultThresholds(totalCores),
	}
}

// SmoothingFactor returns e^(-rate/window) in fixed point.
// 20ms over 100ms gives 1677.
func SmoothingFactor(rate, window time.Duration) uint64 {
	if rate <= 0 || window <= 0 {
		return domain.FixedOne
	}
	f := math.Exp(-float64(rate)/float64(window)) * domain.FixedOne
	return uint64(math.Round(f))
}

// snapshot is an immutable view of the tunables plus derived values.
type snapshot struct {
	domain.Tunables
	exp uint64
}

// Settings is the runtime configuration surface. Readers load a consistent
// snapshot without locking; writers serialize on mu, validate a copy and
// publish it atomically, so a rejected change never leaves partial state.
type Settings struct {
	mu      sync.Mutex
	total   int
	current atomic.Pointer[snapshot]
}

// NewSettings validates t against a machine with totalCores cores. Empty
// thresholds select the defaults; bounds are clamped.
func NewSettings(totalCores int, t domain.Tunables) (*Settings, error) {
	if totalCores < 1 {
		return nil, domain.ErrNoCores
	}
	if len(t.Thresholds) == 0 {
		t.Thresholds = DefaultThresholds(totalCores)
	}
	t.Thresholds = slices.Clone(t.Thresholds)
	t.Bounds = clampBounds(t.Bounds.Min, t.Bounds.Max, totalCores)

	s := &Settings{total: totalCores}
	snap := &snapshot{Tunables: t}
	if err := s.validate(snap); err != nil {
		return nil, err
	}
	snap.exp = SmoothingFactor(t.SampleRate, t.Window)
	s.current.Store(snap)
	return s, nil
}

// Tunables returns a copy of the current settings.
func (s *Settings) Tunables() domain.Tunables {
	t := s.load().Tunables
	t.Thresholds = slices.Clone(t.Thresholds)
	return t
}

// Bounds returns the current core bounds.
func (s *Settings) Bounds() domain.Bounds {
	return s.load().Bounds
}

// Thresholds returns the configurable thresholds, eighths of a thread.
func (s *Settings) Thresholds() []uint32 {
	return slices.Clone(s.load().Thresholds)
}

// TotalCores is the number of cores the settings were sized for.
func (s *Settings) TotalCores() int {
	return s.total
}

// SetBounds clamps both values into [1, TotalCores]; if min ends up above
// max, min is lowered to max. The applied bounds are returned.
func (s *Settings) SetBounds(minCores, maxCores uint32) domain.Bounds {
	b := clampBounds(minCores, maxCores, s.total)
	_ = s.update(func(snap *snapshot) error {
		snap.Bounds = b
		return nil
	})
	return b
}

// SetSampleRate sets the sampling period in milliseconds.
func (s *Settings) SetSampleRate(ms uint32) error {
	return s.update(func(snap *snapshot) error {
		snap.SampleRate = time.Duration(ms) * time.Millisecond
		return nil
	})
}

// SetWindow sets the smoothing window in milliseconds.
func (s *Settings) SetWindow(ms uint32) error {
	return s.update(func(snap *snapshot) error {
		snap.Window = time.Duration(ms) * time.Millisecond
		return nil
	})
}

// SetHysteresisDivisor sets the hysteresis band to 1/d of a thread.
func (s *Settings) SetHysteresisDivisor(d uint32) error {
	return s.update(func(snap *snapshot) error {
		snap.HysteresisDivisor = d
		return nil
	})
}

// SetThresholds replaces the configurable thresholds. Exactly
// TotalCores()-1 non-decreasing values are accepted.
func (s *Settings) SetThresholds(levels []uint32) error {
	return s.update(func(snap *snapshot) error {
		snap.Thresholds = slices.Clone(levels)
		return nil
	})
}

// Apply replaces every tunable at once, with the same validation as the
// individual setters.
func (s *Settings) Apply(t domain.Tunables) error {
	return s.update(func(snap *snapshot) error {
		snap.SampleRate = t.SampleRate
		snap.Window = t.Window
		snap.HysteresisDivisor = t.HysteresisDivisor
		snap.Bounds = clampBounds(t.Bounds.Min, t.Bounds.Max, s.total)
		snap.Thresholds = slices.Clone(t.Thresholds)
		return nil
	})
}

func (s *Settings) load() *snapshot {
	return s.current.Load()
}

// update applies fn to a copy of the current snapshot and publishes it only
// if the result is valid.
func (s *Settings) update(fn func(*snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()
	next.Thresholds = slices.Clone(next.Thresholds)
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.validate(&next); err != nil {
		return err
	}
	next.exp = SmoothingFactor(next.SampleRate, next.Window)
	s.current.Store(&next)
	return nil
}

func (s *Settings) validate(snap *snapshot) error {
	if snap.SampleRate < time.Millisecond {
		return domain.ErrInvalidSampleRate
	}
	if snap.Window < time.Millisecond {
		return domain.ErrInvalidWindow
	}
	if snap.HysteresisDivisor == 0 {
		return domain.ErrInvalidHysteresis
	}
	if want := s.total - 1; len(snap.Thresholds) != want {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrThresholdCount, len(snap.Thresholds), want)
	}
	for i := 1; i < len(snap.Thresholds); i++ {
		if snap.Thresholds[i] < snap.Thresholds[i-1] {
			return fmt.Errorf("%w: level %d (%d) is below level %d (%d)",
				domain.ErrThresholdOrder, i, snap.Thresholds[i], i-1, snap.Thresholds[i-1])
		}
	}
	return nil
}

// clampBounds keeps both values in [1, total] and min <= max.
func clampBounds(minCores, maxCores uint32, total int) domain.Bounds {
	hi := uint32(total)
	minCores = min(max(minCores, 1), hi)
	maxCores = min(max(maxCores, 1), hi)
	if minCores > maxCores {
		minCores = maxCores
	}
	return domain.Bounds{Min: minCores, Max: maxCores}
}
