package hotplug

import (
	"math"
	"sync"

	"github.com/tutu-network/hotplug/internal/domain"
)

// CoreSample is the sampler's state for one core.
type CoreSample struct {
	PreviousIntegral  uint64
	Average           uint32 // runnable threads, fixed point
	HasBaseline       bool
	PreviousTimestamp uint64
	// Fresh is set once Average has been computed since the core last came
	// online (or since the controller last started).
	Fresh bool
}

// SampleResult is the outcome of one sampling pass.
type SampleResult struct {
	Sum     uint64 // sum of fresh per-core averages
	Load    uint64 // smoothed system-wide load
	Skipped int    // online cores that produced no average this pass
}

// Sampler keeps one CoreSample per core id and the smoothed system load.
// Sample runs on the tick goroutine while Lightest may be called from the
// actuation goroutine, so both go through mu.
type Sampler struct {
	mu      sync.RWMutex
	samples []CoreSample
	seen    []bool
	load    uint64
}

// NewSampler allocates the per-core table for core ids in [0, size).
func NewSampler(size int) *Sampler {
	return &Sampler{
		samples: make([]CoreSample, size),
		seen:    make([]bool, size),
	}
}

// Reset invalidates every baseline so the next pass only records integrals.
// Stored averages and the smoothed load are kept but no longer fresh.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.samples {
		s.samples[i].HasBaseline = false
		s.samples[i].Fresh = false
	}
}

// Sample reads every online core once and folds the per-core averages into
// the smoothed load using the smoothing factor exp (fixed point, <= FixedOne).
// Cores missing from online lose their baseline but keep their last average,
// marked stale.
func (s *Sampler) Sample(online []int, src RunnableSource, clock Clock, exp uint64) SampleResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.seen {
		s.seen[i] = false
	}

	var res SampleResult
	for _, cpu := range online {
		if cpu < 0 || cpu >= len(s.samples) {
			res.Skipped++
			continue
		}
		s.seen[cpu] = true

		integral, err := src.RunnableTime(cpu)
		now := clock.Nanotime()
		if err != nil {
			res.Skipped++
			continue
		}

		avg, ok := s.samples[cpu].observe(integral, now)
		if !ok {
			res.Skipped++
			continue
		}
		res.Sum += uint64(avg)
	}

	for cpu, seen := range s.seen {
		if !seen {
			s.samples[cpu].HasBaseline = false
			s.samples[cpu].Fresh = false
		}
	}

	s.load = smooth(s.load, res.Sum, exp)
	res.Load = s.load
	return res
}

// Load returns the current smoothed load.
func (s *Sampler) Load() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load
}

// CoreSample returns a copy of the state for cpu.
func (s *Sampler) CoreSample(cpu int) (CoreSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cpu < 0 || cpu >= len(s.samples) {
		return CoreSample{}, false
	}
	return s.samples[cpu], true
}

// observe records a new integral reading and returns the average number of
// runnable threads since the previous one. The first reading after the core
// came online, and readings whose timestamp did not advance, only rebase.
func (cs *CoreSample) observe(integral, now uint64) (uint32, bool) {
	prevIntegral, prevTime, hadBaseline := cs.PreviousIntegral, cs.PreviousTimestamp, cs.HasBaseline

	cs.PreviousIntegral = integral
	cs.PreviousTimestamp = now
	cs.HasBaseline = true

	if !hadBaseline || now <= prevTime {
		return 0, false
	}

	avg := integralDelta(prevIntegral, integral) / (now - prevTime)
	if avg > math.MaxUint32 {
		avg = math.MaxUint32
	}
	cs.Average = uint32(avg)
	cs.Fresh = true
	return cs.Average, true
}

// integralDelta returns cur - prev for a counter that may have wrapped once.
func integralDelta(prev, cur uint64) uint64 {
	if cur < prev {
		return (math.MaxUint64 - prev) + cur + 1
	}
	return cur - prev
}

// smooth is a single-pole low-pass filter:
// load' = load*exp + sum*(1-exp), all fixed point.
func smooth(load, sum, exp uint64) uint64 {
	return (load*exp + sum*(domain.FixedOne-exp)) >> domain.FShift
}
