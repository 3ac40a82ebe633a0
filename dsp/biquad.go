package dsp

import "math"

// Bandpass is a second-order IIR bandpass section tuned with the audio
// EQ cookbook formulas (constant 0 dB peak gain). Processing uses the
// direct form II transposed recurrence; the two delay-state values carry
// across buffer boundaries so a tone spanning two buffers is filtered
// without a discontinuity at the seam.
type Bandpass struct {
	sampleRate float64
	freq       float64
	q          float64

	// coefficients (normalized by a0)
	b0, b1, b2 float64
	a1, a2     float64

	// delay line
	z1, z2 float64
}

// NewBandpass creates a bandpass filter centered on freq with the given
// Q factor. A Q around 8-12 gives a usable CW passband at 700 Hz.
func NewBandpass(sampleRate, freq, q float64) *Bandpass {
	f := &Bandpass{
		sampleRate: sampleRate,
		q:          q,
	}
	f.SetFrequency(freq)
	return f
}

// Frequency returns the current center frequency in Hz.
func (f *Bandpass) Frequency() float64 { return f.freq }

// SetFrequency retunes the filter and clears the delay line. State
// recorded under the old coefficients is meaningless under the new ones.
func (f *Bandpass) SetFrequency(freq float64) {
	f.freq = freq

	omega := 2 * math.Pi * freq / f.sampleRate
	alpha := math.Sin(omega) / (2 * f.q)

	a0 := 1 + alpha
	f.b0 = alpha / a0
	f.b1 = 0
	f.b2 = -alpha / a0
	f.a1 = -2 * math.Cos(omega) / a0
	f.a2 = (1 - alpha) / a0

	f.z1 = 0
	f.z2 = 0
}

// Process filters a single sample.
func (f *Bandpass) Process(in float64) float64 {
	out := in*f.b0 + f.z1
	f.z1 = in*f.b1 - out*f.a1 + f.z2
	f.z2 = in*f.b2 - out*f.a2
	return out
}

// Reset zeroes the delay line without touching the tuning.
func (f *Bandpass) Reset() {
	f.z1 = 0
	f.z2 = 0
}
