package core

import (
	"math"
	"time"
)

// UCFState is the six-field display state animated during a ritual.
type UCFState struct {
	Harmony    float64 `json:"harmony"`
	Prana      float64 `json:"prana"`
	Drishti    float64 `json:"drishti"`
	Klesha     float64 `json:"klesha"`
	Resilience float64 `json:"resilience"`
	Zoom       float64 `json:"zoom"`
}

// InitialUCF is the state every ritual starts from.
func InitialUCF() UCFState {
	return UCFState{
		Harmony:    0.68,
		Prana:      0.5363,
		Drishti:    0.5023,
		Klesha:     0.0,
		Resilience: 1.1191,
		Zoom:       1.0228,
	}
}

// TargetUCF is the state rituals ease toward.
func TargetUCF() UCFState {
	return UCFState{
		Harmony:    0.85,
		Prana:      0.75,
		Drishti:    0.80,
		Klesha:     0.05,
		Resilience: 1.10,
		Zoom:       1.15,
	}
}

// modulationRate scales the eased progress into a per-step factor.
const modulationRate = 0.15

// Modulate moves cur toward target by an ease-in-out factor of progress.
// Progress is clamped to [0,1]; the factor never exceeds modulationRate,
// so no field overshoots the target.
func Modulate(cur, target UCFState, progress float64) UCFState {
	progress = Clamp(progress, 0, 1)
	smooth := 0.5 - 0.5*math.Cos(progress*math.Pi)
	f := smooth * modulationRate

	step := func(c, t float64) float64 { return c + (t-c)*f }

	return UCFState{
		Harmony:    math.Min(1.0, step(cur.Harmony, target.Harmony)),
		Prana:      math.Min(1.0, step(cur.Prana, target.Prana)),
		Drishti:    math.Min(1.0, step(cur.Drishti, target.Drishti)),
		Klesha:     math.Max(0.0, step(cur.Klesha, target.Klesha)),
		Resilience: step(cur.Resilience, target.Resilience),
		Zoom:       step(cur.Zoom, target.Zoom),
	}
}

// Settle adjusts a final state by the ritual outcome.
// Klesha drops to 0.02 on approval and rises to 0.15 on rejection;
// harmony shifts by the quality delta from 0.85.
func (s UCFState) Settle(quality float64, approved bool) UCFState {
	out := s
	out.Harmony = Clamp(s.Harmony+(quality-DefaultQualityScore)*0.2, 0, 1)
	if approved {
		out.Klesha = 0.02
	} else {
		out.Klesha = 0.15
	}
	return out
}

// TrajectoryPoint is a UCF state recorded at a ritual step.
type TrajectoryPoint struct {
	UCFState
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// Fixed trajectory steps and their progress values.
const (
	StepInvocation = 12
	StepRollCall   = 24
	StepCreative   = 84
	StepComplete   = 108
)

// DefaultQualityScore is used when no assessor is available or parseable.
const DefaultQualityScore = 0.85

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScaleFixed converts a float to the fixed-point integer used in storage.
func ScaleFixed(v float64, scale int) int {
	return int(math.Round(v * float64(scale)))
}

// UnscaleFixed reverses ScaleFixed.
func UnscaleFixed(v int, scale int) float64 {
	return float64(v) / float64(scale)
}

// Storage scales.
const (
	QualityScale = 100
	UCFScale     = 10000
)
