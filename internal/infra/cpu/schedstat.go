package cpu

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/tutu-network/hotplug/internal/domain"
)

// DefaultSchedstatPath is the scheduler statistics file.
const DefaultSchedstatPath = "/proc/schedstat"

// Schedstat derives per-core runnable time from /proc/schedstat. For each
// cpuN line the seventh and eighth counters are the nanoseconds tasks spent
// running and waiting on that runqueue; their sum is the integral of
// runnable threads over time, returned shifted to fixed point.
type Schedstat struct {
	path string

	mu     sync.RWMutex
	values map[int]uint64
}

// NewSchedstat reads path once to check that it is usable.
func NewSchedstat(path string) (*Schedstat, error) {
	if path == "" {
		path = DefaultSchedstatPath
	}
	s := &Schedstat{path: path}
	if err := s.Snapshot(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot re-reads the file for every core at once.
func (s *Schedstat) Snapshot() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	values, err := parseSchedstat(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// RunnableTime returns the value captured by the last Snapshot.
func (s *Schedstat) RunnableTime(cpu int) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[cpu]
	if !ok {
		return 0, fmt.Errorf("cpu %d: no schedstat line", cpu)
	}
	return v, nil
}

func parseSchedstat(data []byte) (map[int]uint64, error) {
	values := make(map[int]uint64)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 9 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		cpu, err := strconv.Atoi(strings.TrimPrefix(fields[0], "cpu"))
		if err != nil {
			continue
		}
		running, err := strconv.ParseUint(fields[7], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cpu%d running time: %w", cpu, err)
		}
		waiting, err := strconv.ParseUint(fields[8], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cpu%d wait time: %w", cpu, err)
		}
		// wraps; the sampler takes modular deltas
		values[cpu] = (running + waiting) << domain.FShift
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
