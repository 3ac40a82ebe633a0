package dsp

import "math"

// EnvelopeFollower turns the filtered tone waveform into an amplitude
// signal. Each sample is rectified and smoothed with an asymmetric
// one-pole follower: a short attack time constant so the envelope jumps
// onto a keyed tone quickly, and a longer decay so it rides over the
// zero crossings of the carrier instead of chattering at the tone
// frequency. The envelope value persists across buffers.
type EnvelopeFollower struct {
	attack float64
	decay  float64

	envelope float64
}

// NewEnvelopeFollower derives the attack/decay coefficients from time
// constants in seconds via exp(-1/(tc*sampleRate)).
func NewEnvelopeFollower(sampleRate, attackTC, decayTC float64) *EnvelopeFollower {
	return &EnvelopeFollower{
		attack: math.Exp(-1 / (attackTC * sampleRate)),
		decay:  math.Exp(-1 / (decayTC * sampleRate)),
	}
}

// Process feeds one filtered sample and returns the updated envelope.
func (e *EnvelopeFollower) Process(sample float64) float64 {
	mag := math.Abs(sample)

	coeff := e.decay
	if mag > e.envelope {
		coeff = e.attack
	}
	e.envelope = coeff*e.envelope + (1-coeff)*mag
	return e.envelope
}

// Envelope returns the current envelope value.
func (e *EnvelopeFollower) Envelope() float64 { return e.envelope }

// Reset clears the envelope state.
func (e *EnvelopeFollower) Reset() { e.envelope = 0 }
