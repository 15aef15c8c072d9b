package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Configuration surface errors. Rejected before any state is mutated.
	ErrThresholdCount    = errors.New("wrong number of threshold values")
	ErrThresholdOrder    = errors.New("threshold values must be non-decreasing")
	ErrInvalidSampleRate = errors.New("sample rate must be at least 1ms")
	ErrInvalidWindow     = errors.New("smoothing window must be at least 1ms")
	ErrInvalidHysteresis = errors.New("hysteresis divisor must be at least 1")

	// Actuation errors
	ErrNoCandidate         = errors.New("no core eligible for the requested transition")
	ErrCoreNotHotpluggable = errors.New("core has no online control")
	ErrCoreOutOfRange      = errors.New("core id out of range")

	// Platform errors
	ErrNoCores = errors.New("platform reports no cores")
)
