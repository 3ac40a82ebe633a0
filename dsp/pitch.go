package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// PitchDetectorConfig tunes the FFT-based dominant-frequency search.
type PitchDetectorConfig struct {
	SampleRate float64
	// FFTSize sets the frequency resolution (1024 or 2048 works well).
	FFTSize int
	// MinFreq/MaxFreq bound the search so low-frequency rumble never
	// wins the peak.
	MinFreq float64
	MaxFreq float64
	// SmoothingAlpha blends new detections into the locked frequency;
	// smaller is smoother.
	SmoothingAlpha float64
	// MaxJumpHz discards single-frame jumps larger than this once a
	// lock exists.
	MaxJumpHz float64
	// NoiseThreshold is the minimum peak magnitude treated as a signal.
	NoiseThreshold float64
}

// DefaultPitchDetectorConfig returns settings suited to CW sidetones
// at common audio rates.
func DefaultPitchDetectorConfig() PitchDetectorConfig {
	return PitchDetectorConfig{
		SampleRate:     48000,
		FFTSize:        2048,
		MinFreq:        400,
		MaxFreq:        1000,
		SmoothingAlpha: 0.3,
		MaxJumpHz:      50,
		NoiseThreshold: 0.001,
	}
}

// PitchDetector finds the dominant tone in an audio slice. It is used to
// seed the pipeline's tone frequency before a session and to sanity-check
// the adaptive Goertzel scan. Peak bins are refined with parabolic
// interpolation, so accuracy is well under one FFT bin.
type PitchDetector struct {
	config   PitchDetectorConfig
	lastFreq float64
	hasLock  bool
	win      []float64
}

// NewPitchDetector creates a detector with a precomputed Blackman
// window.
func NewPitchDetector(cfg PitchDetectorConfig) *PitchDetector {
	return &PitchDetector{
		config: cfg,
		win:    window.Blackman(cfg.FFTSize),
	}
}

// Reset drops the frequency lock (call when changing inputs).
func (pd *PitchDetector) Reset() {
	pd.lastFreq = 0
	pd.hasLock = false
}

// Detect analyzes the most recent FFTSize samples of the slice and
// returns the detected frequency. found is false while the peak is
// below the noise threshold or the slice is too short.
func (pd *PitchDetector) Detect(samples []float64) (freq float64, found bool) {
	if len(samples) < pd.config.FFTSize {
		return pd.lastFreq, pd.hasLock
	}

	spectrum := pd.computeFFT(samples)
	peakFreq, peakMag := pd.findPeak(spectrum)
	return pd.updateState(peakFreq, peakMag)
}

func (pd *PitchDetector) computeFFT(samples []float64) []complex128 {
	input := samples[len(samples)-pd.config.FFTSize:]
	windowed := make([]float64, len(input))
	for i, v := range input {
		windowed[i] = v * pd.win[i]
	}
	return fft.FFTReal(windowed)
}

func (pd *PitchDetector) findPeak(spectrum []complex128) (freq, mag float64) {
	binRes := pd.config.SampleRate / float64(pd.config.FFTSize)
	minBin := int(pd.config.MinFreq / binRes)
	maxBin := int(pd.config.MaxFreq / binRes)

	maxMag := -1.0
	maxIndex := -1
	for i := minBin; i < maxBin && i < len(spectrum)/2; i++ {
		m := cmplx.Abs(spectrum[i])
		if m > maxMag {
			maxMag = m
			maxIndex = i
		}
	}
	if maxIndex == -1 {
		return 0, 0
	}
	if maxIndex <= 0 || maxIndex >= len(spectrum)-1 {
		return float64(maxIndex) * binRes, maxMag
	}

	// Parabolic interpolation over the peak and its neighbors recovers
	// the true peak position between bins.
	y1 := cmplx.Abs(spectrum[maxIndex-1])
	y2 := maxMag
	y3 := cmplx.Abs(spectrum[maxIndex+1])

	delta := 0.0
	if denom := 2 * (2*y2 - y1 - y3); denom != 0 {
		delta = (y3 - y1) / denom
	}
	return (float64(maxIndex) + delta) * binRes, maxMag
}

func (pd *PitchDetector) updateState(detectedFreq, magnitude float64) (freq float64, found bool) {
	if magnitude < pd.config.NoiseThreshold {
		return pd.lastFreq, false
	}

	if pd.hasLock {
		if math.Abs(detectedFreq-pd.lastFreq) > pd.config.MaxJumpHz {
			// A jump this large is interference, not drift. Coast on
			// the locked frequency.
			return pd.lastFreq, true
		}
		pd.lastFreq = (1-pd.config.SmoothingAlpha)*pd.lastFreq + pd.config.SmoothingAlpha*detectedFreq
	} else {
		pd.lastFreq = detectedFreq
		pd.hasLock = true
	}
	return pd.lastFreq, true
}
