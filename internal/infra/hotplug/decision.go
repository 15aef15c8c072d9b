package hotplug

import (
	"github.com/tutu-network/hotplug/internal/domain"
)

// bucket returns the number of cores justified by load: the smallest level k
// (1-indexed) whose threshold is not exceeded, or len(thresholds)+1 when the
// load is above all of them. A level at or above last is widened by the
// hysteresis band, so climbing needs more load than staying.
func bucket(load uint64, last int, thresholds []uint32, hysteresisDivisor uint32) int {
	band := uint64(domain.ThresholdScale / hysteresisDivisor)

	nrRun := 1
	for ; nrRun <= len(thresholds); nrRun++ {
		level := uint64(thresholds[nrRun-1])
		if last <= nrRun {
			level += band
		}
		if load <= level<<(domain.FShift-domain.ThresholdShift) {
			break
		}
	}
	return nrRun
}

// decide maps the demanded core count and the current online count onto one
// action. An online count outside the bounds is always pulled back first;
// otherwise the demand is clamped into the bounds and the online count moves
// one step toward it. A demand outside the bounds is clamped rather than
// ignored, so the online count still settles on the nearest bound.
// TakeDown is never returned at online == Min and BringUp never at
// online == Max.
func decide(nrRun, online int, b domain.Bounds) domain.Action {
	lo, hi := int(b.Min), int(b.Max)

	switch {
	case online > hi:
		return domain.TakeDown
	case online < lo:
		return domain.BringUp
	}

	target := min(max(nrRun, lo), hi)
	switch {
	case online > target:
		return domain.TakeDown
	case online < target:
		return domain.BringUp
	default:
		return domain.NoOp
	}
}
