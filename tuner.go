package cw

import (
	"github.com/jsvana/carrier-wave/dsp"
)

// pitchTuner accumulates audio into a ring and periodically runs FFT
// pitch detection over it, letting the fixed-frequency processors
// follow a drifting or mistuned tone.
type pitchTuner struct {
	detector *dsp.PitchDetector

	ring   []float64
	pos    int
	filled int

	// sinceRun counts samples since the last detection pass.
	sinceRun    int
	runInterval int
}

// newPitchTuner sizes the ring to the detector's FFT length and runs a
// detection pass every runInterval samples.
func newPitchTuner(cfg dsp.PitchDetectorConfig, runInterval int) *pitchTuner {
	return &pitchTuner{
		detector:    dsp.NewPitchDetector(cfg),
		ring:        make([]float64, cfg.FFTSize),
		runInterval: runInterval,
	}
}

// push folds samples into the ring and, when due, runs a detection
// pass in oldest-first order. Returns the detected frequency when a
// pass ran and locked.
func (pt *pitchTuner) push(samples []float32) (freq float64, found bool) {
	for _, s := range samples {
		pt.ring[pt.pos] = float64(s)
		pt.pos = (pt.pos + 1) % len(pt.ring)
		if pt.filled < len(pt.ring) {
			pt.filled++
		}
	}
	pt.sinceRun += len(samples)
	if pt.filled < len(pt.ring) || pt.sinceRun < pt.runInterval {
		return 0, false
	}
	pt.sinceRun = 0

	ordered := make([]float64, len(pt.ring))
	n := copy(ordered, pt.ring[pt.pos:])
	copy(ordered[n:], pt.ring[:pt.pos])
	return pt.detector.Detect(ordered)
}

func (pt *pitchTuner) reset() {
	pt.detector.Reset()
	pt.pos = 0
	pt.filled = 0
	pt.sinceRun = 0
}
