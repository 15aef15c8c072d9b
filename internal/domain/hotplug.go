// Package domain holds the pure types shared by the hotplug controller,
// its platform backends and its control surfaces.
package domain

import "time"

// ─── Fixed Point ────────────────────────────────────────────────────────────

// Load values are fixed point with FShift fractional bits, so FixedOne is
// one runnable thread.
const (
	FShift   = 11
	FixedOne = 1 << FShift

	// ThresholdShift is the precision of configured thresholds: they are
	// expressed in eighths of a runnable thread.
	ThresholdShift = 3
	ThresholdScale = 1 << ThresholdShift
)

// ─── Actions ────────────────────────────────────────────────────────────────

// Action is the outcome of a single decision.
type Action int

const (
	NoOp Action = iota
	BringUp
	TakeDown
)

// String returns the action name used in logs, metrics and the journal.
func (a Action) String() string {
	switch a {
	case NoOp:
		return "noop"
	case BringUp:
		return "bring_up"
	case TakeDown:
		return "take_down"
	default:
		return "unknown"
	}
}

// MarshalText encodes the action by name.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an action name; unknown names decode to NoOp.
func (a *Action) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bring_up":
		*a = BringUp
	case "take_down":
		*a = TakeDown
	default:
		*a = NoOp
	}
	return nil
}

// ─── Controller State ───────────────────────────────────────────────────────

// State is the controller lifecycle state.
type State int32

const (
	Disabled State = iota
	Running
)

// String returns human-readable state.
func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name; unknown names decode to Disabled.
func (s *State) UnmarshalText(b []byte) error {
	if string(b) == "running" {
		*s = Running
	} else {
		*s = Disabled
	}
	return nil
}

// ─── Configuration ──────────────────────────────────────────────────────────

// Bounds is the allowed range of online cores. Min <= Max always holds for
// values produced by the controller.
type Bounds struct {
	Min uint32 `json:"min"`
	Max uint32 `json:"max"`
}

// Tunables is an immutable snapshot of the runtime-adjustable settings.
type Tunables struct {
	SampleRate        time.Duration `json:"sample_rate"`
	Window            time.Duration `json:"window"`
	HysteresisDivisor uint32        `json:"hysteresis_divisor"`
	Bounds            Bounds        `json:"bounds"`
	Thresholds        []uint32      `json:"thresholds"` // first N-1 levels, eighths of a thread
}

// ─── Reports ────────────────────────────────────────────────────────────────

// TickReport summarizes one sampling tick.
type TickReport struct {
	Load     uint64        `json:"load"` // smoothed, fixed point
	NrRun    int           `json:"nr_run"`
	Online   int           `json:"online"`
	Action   Action        `json:"action"`
	Skipped  int           `json:"skipped"` // cores without a usable sample
	Duration time.Duration `json:"duration"`
}

// HotplugEvent records one attempted core transition.
type HotplugEvent struct {
	ID       string        `json:"id"`
	RunID    string        `json:"run_id"`
	At       time.Time     `json:"at"`
	Action   Action        `json:"action"`
	CPU      int           `json:"cpu"`
	NrRun    int           `json:"nr_run"`
	Online   int           `json:"online"` // online count before the transition
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the transition was applied.
func (e HotplugEvent) Succeeded() bool {
	return e.Error == ""
}

// Status is a point-in-time view of the controller.
type Status struct {
	State       State    `json:"state"`
	RunID       string   `json:"run_id,omitempty"`
	Load        uint64   `json:"load"`
	NrRun       int      `json:"nr_run"`
	OnlineCores []int    `json:"online_cores"`
	TotalCores  int      `json:"total_cores"`
	Tunables    Tunables `json:"tunables"`
}

// LoadThreads converts a fixed-point load to runnable threads.
func LoadThreads(load uint64) float64 {
	return float64(load) / FixedOne
}
