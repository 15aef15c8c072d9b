package hotplug

import "slices"

// offlineCores lists the present cores missing from online.
func offlineCores(online, present []int) []int {
	var offline []int
	for _, cpu := range present {
		if !slices.Contains(online, cpu) {
			offline = append(offline, cpu)
		}
	}
	return offline
}

// pickOffline chooses an offline core uniformly at random so the same core
// does not always take the wear of coming up first.
func pickOffline(online, present []int, intn func(int) int) (int, bool) {
	offline := offlineCores(online, present)
	if len(offline) == 0 {
		return 0, false
	}
	return offline[intn(len(offline))], true
}

// Lightest returns the online core with the lowest average load, excluding
// primary. Ties go to the lowest core id. Only the online set is consulted,
// so averages left behind by offline cores never win. Cores that have not
// produced an average since they came online are considered only when no
// other core qualifies.
func (s *Sampler) Lightest(online []int, primary int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fresh, stale := -1, -1
	for _, cpu := range online {
		if cpu == primary || cpu < 0 || cpu >= len(s.samples) {
			continue
		}
		if s.samples[cpu].Fresh {
			fresh = s.lighter(fresh, cpu)
		} else {
			stale = s.lighter(stale, cpu)
		}
	}
	if fresh >= 0 {
		return fresh, true
	}
	return stale, stale >= 0
}

// lighter returns whichever of best and cpu has the lower average, preferring
// the lower id on a tie. best < 0 means no candidate yet.
func (s *Sampler) lighter(best, cpu int) int {
	if best < 0 {
		return cpu
	}
	a, b := s.samples[cpu].Average, s.samples[best].Average
	if a < b || (a == b && cpu < best) {
		return cpu
	}
	return best
}
