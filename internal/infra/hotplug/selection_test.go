package hotplug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplerWithAverages(avgs ...uint32) *Sampler {
	s := NewSampler(len(avgs))
	for cpu, avg := range avgs {
		s.samples[cpu].Average = avg
		s.samples[cpu].HasBaseline = true
		s.samples[cpu].Fresh = true
	}
	return s
}

func TestLightest_NeverPicksPrimary(t *testing.T) {
	s := samplerWithAverages(0, 900, 800, 700)

	cpu, ok := s.Lightest([]int{0, 1, 2, 3}, 0)
	require.True(t, ok)
	assert.Equal(t, 3, cpu)

	_, ok = s.Lightest([]int{0}, 0)
	assert.False(t, ok, "only the primary core is online")
}

func TestLightest_CustomPrimary(t *testing.T) {
	s := samplerWithAverages(500, 0, 900)

	cpu, ok := s.Lightest([]int{0, 1, 2}, 1)
	require.True(t, ok)
	assert.Equal(t, 0, cpu)
}

func TestLightest_TiesGoToLowestID(t *testing.T) {
	s := samplerWithAverages(0, 300, 100, 100, 100)

	cpu, ok := s.Lightest([]int{4, 3, 2, 1, 0}, 0)
	require.True(t, ok)
	assert.Equal(t, 2, cpu)
}

func TestLightest_IgnoresOfflineCores(t *testing.T) {
	s := samplerWithAverages(0, 500, 0, 400)

	// core 2 holds a stale zero average from when it was online
	cpu, ok := s.Lightest([]int{0, 1, 3}, 0)
	require.True(t, ok)
	assert.Equal(t, 3, cpu)
}

func TestLightest_PrefersFreshAverages(t *testing.T) {
	s := samplerWithAverages(0, 500, 0, 400)
	// core 2 just came back online and still carries its old zero average
	s.samples[2].Fresh = false

	cpu, ok := s.Lightest([]int{0, 1, 2, 3}, 0)
	require.True(t, ok)
	assert.Equal(t, 3, cpu)

	// with no fresh candidate left, stale averages still decide
	s.samples[1].Fresh = false
	s.samples[3].Fresh = false
	cpu, ok = s.Lightest([]int{0, 1, 2, 3}, 0)
	require.True(t, ok)
	assert.Equal(t, 2, cpu)
}

func TestOfflineCores(t *testing.T) {
	assert.Equal(t, []int{1, 3}, offlineCores([]int{0, 2}, []int{0, 1, 2, 3}))
	assert.Empty(t, offlineCores([]int{0, 1}, []int{0, 1}))
	assert.Equal(t, []int{0, 1}, offlineCores([]int{7}, []int{0, 1}))
}

func TestOfflineCores_SparsePresent(t *testing.T) {
	// ids 2 and 3 do not exist and must never be offered
	assert.Equal(t, []int{4, 5}, offlineCores([]int{0, 1}, []int{0, 1, 4, 5}))
}

func TestPickOffline(t *testing.T) {
	var sizes []int
	intn := func(n int) int {
		sizes = append(sizes, n)
		return n - 1
	}

	cpu, ok := pickOffline([]int{0, 2}, []int{0, 1, 2, 3}, intn)
	require.True(t, ok)
	assert.Equal(t, 3, cpu)
	assert.Equal(t, []int{2}, sizes)

	_, ok = pickOffline([]int{0, 1}, []int{0, 1}, intn)
	assert.False(t, ok)
}

func TestPickOffline_UsesEveryCandidate(t *testing.T) {
	seen := map[int]bool{}
	i := 0
	intn := func(n int) int {
		i++
		return i % n
	}
	for range 12 {
		cpu, ok := pickOffline([]int{0}, []int{0, 1, 2, 3}, intn)
		require.True(t, ok)
		seen[cpu] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seen)
}
