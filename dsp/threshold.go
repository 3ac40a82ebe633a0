package dsp

import "math"

// floorMin keeps the noise floor strictly positive so the ratio driving
// classification stays defined even over digital silence.
const floorMin = 1e-6

// ThresholdConfig tunes the adaptive key-state classifier. Decay rates
// are expressed as time constants in seconds so the same configuration
// behaves identically whether the tracker is fed per sample (bandpass
// path, 44100 updates/s) or per block (Goertzel path, a few hundred
// updates/s).
type ThresholdConfig struct {
	// OnRatio is the envelope/noise-floor ratio that arms a key-down.
	OnRatio float64
	// OffRatio is the lower ratio that arms a key-up. The gap between
	// the two is the hysteresis dead zone.
	OffRatio float64
	// DropRatio arms a key-up when the envelope falls below this
	// fraction of the tracked active signal level, catching fading
	// signals whose ratio never crosses OffRatio.
	DropRatio float64

	// ConfirmDuration is how long the envelope must sustain a pending
	// state before the change commits (converted to an update count).
	ConfirmDuration float64
	// MinStateDuration is the wall-clock floor between two reported
	// transitions, a second debounce independent of the counter.
	MinStateDuration float64
	// CalibrationDuration seeds the estimators; no events are emitted
	// while it runs.
	CalibrationDuration float64

	// PeakDecayTC governs how fast the signal peak estimate releases.
	PeakDecayTC float64
	// ActiveDecayTC governs the active-signal-level release while keyed.
	ActiveDecayTC float64
	// FloorFallTC is the fast blend toward samples below the floor.
	FloorFallTC float64
	// FloorRiseTC is the slow creep toward samples above the floor.
	FloorRiseTC float64
}

// DefaultThresholdConfig returns the tuning used by both processor
// paths.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		OnRatio:             2.5,
		OffRatio:            1.8,
		DropRatio:           0.25,
		ConfirmDuration:     0.004,
		MinStateDuration:    0.015,
		CalibrationDuration: 0.25,
		PeakDecayTC:         1.0,
		ActiveDecayTC:       0.2,
		FloorFallTC:         0.02,
		FloorRiseTC:         2.0,
	}
}

// ThresholdTracker converts a continuous envelope/magnitude stream into
// debounced key-down/key-up transitions. No fixed amplitude threshold
// exists anywhere: classification runs on the ratio of the envelope to
// a tracked noise floor, so the same tuning works across wide absolute
// level variation.
type ThresholdTracker struct {
	cfg ThresholdConfig

	confirmCount     int
	calibrationCount int
	peakDecay        float64
	activeDecay      float64
	floorFallAlpha   float64
	floorRiseAlpha   float64
	calibrationAlpha float64

	updates    int
	peak       float64
	floor      float64
	active     float64
	keyDown    bool
	armed      bool
	lastChange float64
	hasChange  bool

	aboveCount int
	belowCount int
}

// NewThresholdTracker builds a tracker for the given update rate
// (updates per second: the sample rate for per-sample feeding, or
// sampleRate/blockSize for per-block feeding).
func NewThresholdTracker(cfg ThresholdConfig, updateRate float64) *ThresholdTracker {
	t := &ThresholdTracker{cfg: cfg}
	dt := 1 / updateRate

	t.confirmCount = int(math.Round(cfg.ConfirmDuration * updateRate))
	if t.confirmCount < 1 {
		t.confirmCount = 1
	}
	t.calibrationCount = int(math.Round(cfg.CalibrationDuration * updateRate))

	t.peakDecay = math.Exp(-dt / cfg.PeakDecayTC)
	t.activeDecay = math.Exp(-dt / cfg.ActiveDecayTC)
	t.floorFallAlpha = 1 - math.Exp(-dt/cfg.FloorFallTC)
	t.floorRiseAlpha = 1 - math.Exp(-dt/cfg.FloorRiseTC)
	// During calibration the floor follows the input both ways at the
	// fast rate so it lands on the ambient level quickly.
	t.calibrationAlpha = t.floorFallAlpha

	t.floor = floorMin
	t.armed = true
	return t
}

// Update feeds one envelope value with its timestamp in seconds.
// It reports at most one committed state change.
func (t *ThresholdTracker) Update(value, timestamp float64) (changed, keyDown bool) {
	t.updates++

	// Peak: rise immediately, release multiplicatively.
	if value > t.peak {
		t.peak = value
	} else {
		t.peak *= t.peakDecay
	}

	if t.updates <= t.calibrationCount {
		t.floor += (value - t.floor) * t.calibrationAlpha
		t.clampFloor()
		return false, t.keyDown
	}

	// Noise floor: fall fast, creep up slowly. The slow upward creep
	// keeps the floor from sticking low after the background rises.
	if value < t.floor {
		t.floor += (value - t.floor) * t.floorFallAlpha
	} else {
		t.floor += (value - t.floor) * t.floorRiseAlpha
	}
	t.clampFloor()

	ratio := value / t.floor

	if !t.keyDown {
		// Re-arm only after the envelope has actually fallen into the
		// quiet zone. Without this the decaying tail of the previous
		// element, still high relative to the floor, would key down
		// again as soon as the debounce window expired.
		if ratio <= t.cfg.OffRatio {
			t.armed = true
		}

		if t.armed && ratio >= t.cfg.OnRatio {
			if t.aboveCount < t.confirmCount {
				t.aboveCount++
			}
			if t.belowCount > 0 {
				t.belowCount--
			}
		} else if t.aboveCount > 0 {
			t.aboveCount--
		}

		if t.aboveCount >= t.confirmCount && t.minDurationElapsed(timestamp) {
			t.commit(true, timestamp)
			t.armed = false
			t.active = value
			return true, true
		}
		return false, false
	}

	// Key is down: track the active signal level so a relative drop can
	// end the element even when the noise-floor ratio stays high.
	if value > t.active {
		t.active = value
	} else {
		t.active *= t.activeDecay
	}

	dropped := value < t.active*t.cfg.DropRatio
	if ratio <= t.cfg.OffRatio || dropped {
		if t.belowCount < t.confirmCount {
			t.belowCount++
		}
		if t.aboveCount > 0 {
			t.aboveCount--
		}
	} else if t.belowCount > 0 {
		t.belowCount--
	}

	if t.belowCount >= t.confirmCount && t.minDurationElapsed(timestamp) {
		t.commit(false, timestamp)
		return true, false
	}
	return false, true
}

func (t *ThresholdTracker) minDurationElapsed(timestamp float64) bool {
	if !t.hasChange {
		return true
	}
	return timestamp-t.lastChange >= t.cfg.MinStateDuration
}

func (t *ThresholdTracker) commit(down bool, timestamp float64) {
	t.keyDown = down
	t.lastChange = timestamp
	t.hasChange = true
	t.aboveCount = 0
	t.belowCount = 0
}

func (t *ThresholdTracker) clampFloor() {
	if t.floor < floorMin {
		t.floor = floorMin
	}
}

// Calibrating reports whether the tracker is still seeding estimates.
func (t *ThresholdTracker) Calibrating() bool {
	return t.updates < t.calibrationCount
}

// KeyDown returns the current committed key state.
func (t *ThresholdTracker) KeyDown() bool { return t.keyDown }

// NoiseFloor returns the tracked background level (always > 0).
func (t *ThresholdTracker) NoiseFloor() float64 { return t.floor }

// Peak returns the tracked signal peak estimate.
func (t *ThresholdTracker) Peak() float64 { return t.peak }

// SNR approximates signal quality as peak over noise floor.
func (t *ThresholdTracker) SNR() float64 { return t.peak / t.floor }

// Reset returns the tracker to its post-construction state, including a
// fresh calibration window.
func (t *ThresholdTracker) Reset() {
	t.updates = 0
	t.peak = 0
	t.floor = floorMin
	t.active = 0
	t.keyDown = false
	t.armed = true
	t.lastChange = 0
	t.hasChange = false
	t.aboveCount = 0
	t.belowCount = 0
}
