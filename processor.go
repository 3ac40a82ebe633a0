// Package cw implements a real-time CW (Morse) decoding pipeline: tone
// isolation, envelope extraction, adaptive key-state classification,
// timing-based decoding and transcript assembly.
package cw

// KeyEvent is one committed key-state transition with its timestamp in
// seconds on the audio clock.
type KeyEvent struct {
	Down      bool
	Timestamp float64
}

// Result is the immutable snapshot a signal processor produces for each
// audio buffer. Events are ordered and alternate in state; peak and
// noise floor are normalized to 0-1 for display only; classification
// inside the processor never sees these normalized values.
type Result struct {
	KeyEvents     []KeyEvent
	PeakAmplitude float64
	KeyDown       bool
	Envelope      []float32
	Calibrating   bool
	NoiseFloor    float64
	SNR           float64
	ToneFrequency float64
}

// SignalProcessor turns raw audio buffers into key events plus
// telemetry. Implementations are stateful and strictly single-writer:
// buffers must be processed in arrival order by one goroutine.
type SignalProcessor interface {
	ToneFrequency() float64
	Process(samples []float32, timestamp float64) Result
	SetToneFrequency(freq float64)
	Reset()
}

// displayTracker maintains the running max-peak used purely to map peak
// amplitude and noise floor into a 0-1 range for meters. Fast rise,
// slow decay, decoupled from the classification thresholds.
type displayTracker struct {
	maxPeak float64
	decay   float64
}

func newDisplayTracker() displayTracker {
	return displayTracker{
		maxPeak: 1e-3,
		decay:   0.9995,
	}
}

func (d *displayTracker) update(value float64) {
	if value > d.maxPeak {
		d.maxPeak = value
	} else {
		d.maxPeak *= d.decay
		if d.maxPeak < 1e-3 {
			d.maxPeak = 1e-3
		}
	}
}

// normalize maps a value onto 0-1 against the running max peak.
func (d *displayTracker) normalize(value float64) float64 {
	n := value / d.maxPeak
	if n > 1 {
		return 1
	}
	if n < 0 {
		return 0
	}
	return n
}

func (d *displayTracker) reset() {
	d.maxPeak = 1e-3
}

// visBuffer keeps a bounded, downsampled window of recent envelope
// values for waveform display. Memory is fixed regardless of session
// length.
type visBuffer struct {
	samples []float32
	head    int
	full    bool
	stride  int
	counter int
}

func newVisBuffer(capacity, stride int) visBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if stride < 1 {
		stride = 1
	}
	return visBuffer{
		samples: make([]float32, capacity),
		stride:  stride,
	}
}

func (v *visBuffer) push(value float64) {
	v.counter++
	if v.counter < v.stride {
		return
	}
	v.counter = 0
	v.samples[v.head] = float32(value)
	v.head = (v.head + 1) % len(v.samples)
	if v.head == 0 {
		v.full = true
	}
}

// snapshot returns the window oldest-first in a fresh slice, safe to
// hand out in an immutable Result.
func (v *visBuffer) snapshot() []float32 {
	if !v.full {
		out := make([]float32, v.head)
		copy(out, v.samples[:v.head])
		return out
	}
	out := make([]float32, len(v.samples))
	n := copy(out, v.samples[v.head:])
	copy(out[n:], v.samples[:v.head])
	return out
}

func (v *visBuffer) reset() {
	v.head = 0
	v.full = false
	v.counter = 0
}
