package cpu

import (
	"github.com/tutu-network/hotplug/internal/infra/hotplug"
)

// NewLinuxBackend wires sysfs topology and actuation with /proc/schedstat
// load and the monotonic clock.
func NewLinuxBackend(sysfsRoot, schedstatPath string) (hotplug.Backend, *Sysfs, error) {
	sysfs, err := NewSysfs(sysfsRoot)
	if err != nil {
		return hotplug.Backend{}, nil, err
	}
	stat, err := NewSchedstat(schedstatPath)
	if err != nil {
		return hotplug.Backend{}, nil, err
	}
	return hotplug.Backend{
		Topology: sysfs,
		Source:   stat,
		Clock:    MonotonicClock{},
		Actuator: sysfs,
	}, sysfs, nil
}

// Backend returns s as every collaborator of the controller.
func (s *Simulated) Backend() hotplug.Backend {
	return hotplug.Backend{Topology: s, Source: s, Clock: s, Actuator: s}
}
