package dsp

import (
	"math"
	"testing"
)

const (
	testSampleRate = 48000.0
	testFFTSize    = 2048
)

func sineWave(freq, durationSec, sampleRate float64) []float64 {
	n := int(durationSec * sampleRate)
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	return data
}

func TestPitchDetectorAccuracy(t *testing.T) {
	cfg := PitchDetectorConfig{
		SampleRate:     testSampleRate,
		FFTSize:        testFFTSize,
		MinFreq:        400,
		MaxFreq:        1000,
		SmoothingAlpha: 1.0, // no smoothing, inspect single-frame results
		MaxJumpHz:      1000,
		NoiseThreshold: 0.1,
	}
	pd := NewPitchDetector(cfg)

	// A frequency landing exactly on a bin.
	// Resolution = 48000 / 2048 = 23.4375 Hz; bin 25 = 585.9375 Hz.
	target := 585.9375
	got, found := pd.Detect(sineWave(target, 0.1, testSampleRate))
	if !found {
		t.Fatal("expected detection on a clean tone")
	}
	if math.Abs(got-target) > 0.1 {
		t.Errorf("on-bin detection = %v, want %v", got, target)
	}

	// 600 Hz falls between bins, so this exercises the parabolic
	// interpolation.
	pd.Reset()
	got, _ = pd.Detect(sineWave(600.0, 0.1, testSampleRate))
	if math.Abs(got-600.0) > 1.0 {
		t.Errorf("interpolated detection = %v, want 600 within 1 Hz", got)
	}
}

func TestPitchDetectorJumpRejection(t *testing.T) {
	cfg := PitchDetectorConfig{
		SampleRate:     testSampleRate,
		FFTSize:        testFFTSize,
		MinFreq:        300,
		MaxFreq:        1200,
		SmoothingAlpha: 0.1,
		MaxJumpHz:      50.0,
		NoiseThreshold: 0.1,
	}
	pd := NewPitchDetector(cfg)

	// Lock onto 600 Hz first.
	tone := sineWave(600.0, 0.1, testSampleRate)
	for i := 0; i < 5; i++ {
		pd.Detect(tone)
	}

	// A sudden 800 Hz burst exceeds MaxJumpHz and must not pull the
	// lock.
	got, _ := pd.Detect(sineWave(800.0, 0.1, testSampleRate))
	if math.Abs(got-600.0) > 10.0 {
		t.Errorf("lock jumped to %v on interference, want near 600", got)
	}
}

func TestPitchDetectorSilence(t *testing.T) {
	cfg := PitchDetectorConfig{
		SampleRate:     testSampleRate,
		FFTSize:        testFFTSize,
		MinFreq:        300,
		MaxFreq:        1200,
		NoiseThreshold: 1.0,
	}
	pd := NewPitchDetector(cfg)

	quiet := sineWave(600.0, 0.1, testSampleRate)
	for i := range quiet {
		quiet[i] *= 0.001
	}
	if _, found := pd.Detect(quiet); found {
		t.Error("detected a signal below the noise threshold")
	}
}

func TestPitchDetectorShortInput(t *testing.T) {
	pd := NewPitchDetector(DefaultPitchDetectorConfig())
	if _, found := pd.Detect(make([]float64, 100)); found {
		t.Error("detected a signal in an undersized slice")
	}
}
