// Package hotplug decides how many CPU cores should be online.
//
// A Controller samples the runnable-thread load of every online core, smooths
// it into one system-wide value, maps that value onto a number of cores with
// thresholds and hysteresis, and nudges the online count by at most one core
// per decision. The platform (where load comes from, how cores are switched)
// is supplied through the interfaces in this file.
package hotplug

import (
	"context"

	"github.com/tutu-network/hotplug/internal/domain"
)

// RunnableSource reports, per core, a monotonically increasing integral of
// runnable threads over time. The integral is in fixed point (FShift bits)
// thread-nanoseconds and is allowed to wrap around.
type RunnableSource interface {
	RunnableTime(cpu int) (uint64, error)
}

// Snapshotter is implemented by sources that read every core at once.
// Snapshot is called once at the start of each tick.
type Snapshotter interface {
	Snapshot() error
}

// Clock returns monotonic time in nanoseconds.
type Clock interface {
	Nanotime() uint64
}

// Actuator powers cores up and down. Both calls may block.
type Actuator interface {
	BringOnline(ctx context.Context, cpu int) error
	TakeOffline(ctx context.Context, cpu int) error
}

// Topology describes the cores of the machine. Core ids may have gaps:
// PresentCores lists the ids that exist, ascending, and TotalCores is their
// count.
type Topology interface {
	OnlineCores() ([]int, error)
	PresentCores() []int
	TotalCores() int
}

// Backend bundles the platform collaborators a Controller depends on.
type Backend struct {
	Topology Topology
	Source   RunnableSource
	Clock    Clock
	Actuator Actuator
}

// Observer receives tick reports and transition events. Calls come from the
// controller's goroutines and must not block for long.
type Observer interface {
	ObserveTick(r domain.TickReport)
	ObserveEvent(e domain.HotplugEvent)
}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) ObserveTick(r domain.TickReport) {
	for _, obs := range o {
		obs.ObserveTick(r)
	}
}

func (o Observers) ObserveEvent(e domain.HotplugEvent) {
	for _, obs := range o {
		obs.ObserveEvent(e)
	}
}

type nopObserver struct{}

func (nopObserver) ObserveTick(domain.TickReport)   {}
func (nopObserver) ObserveEvent(domain.HotplugEvent) {}
