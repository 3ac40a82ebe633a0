package cw

import (
	"github.com/jsvana/carrier-wave/dsp"
)

// BandpassProcessor is the fixed-frequency signal path: biquad bandpass
// → envelope follower → adaptive threshold, all updated per sample.
type BandpassProcessor struct {
	sampleRate float64

	filter    *dsp.Bandpass
	envelope  *dsp.EnvelopeFollower
	threshold *dsp.ThresholdTracker

	display displayTracker
	vis     visBuffer
}

// NewBandpassProcessor builds the bandpass path for the given tone
// frequency and Q factor.
func NewBandpassProcessor(sampleRate, toneFreq, q float64, thresholdCfg dsp.ThresholdConfig) *BandpassProcessor {
	return &BandpassProcessor{
		sampleRate: sampleRate,
		filter:     dsp.NewBandpass(sampleRate, toneFreq, q),
		envelope:   dsp.NewEnvelopeFollower(sampleRate, envelopeAttackTC, envelopeDecayTC),
		threshold:  dsp.NewThresholdTracker(thresholdCfg, sampleRate),
		display:    newDisplayTracker(),
		vis:        newVisBuffer(visCapacity, visStrideFor(sampleRate)),
	}
}

// Envelope follower time constants: attack short enough to resolve a
// 24 ms dit at 50 WPM, decay long enough to bridge carrier cycles.
const (
	envelopeAttackTC = 0.001
	envelopeDecayTC  = 0.004
)

// visCapacity bounds the display window; visStrideFor keeps it covering
// roughly the last second of audio at any sample rate.
const visCapacity = 256

func visStrideFor(sampleRate float64) int {
	stride := int(sampleRate) / visCapacity
	if stride < 1 {
		stride = 1
	}
	return stride
}

// ToneFrequency returns the filter's center frequency.
func (p *BandpassProcessor) ToneFrequency() float64 { return p.filter.Frequency() }

// SetToneFrequency retunes the bandpass filter. The filter clears its
// own delay line as part of retuning.
func (p *BandpassProcessor) SetToneFrequency(freq float64) {
	p.filter.SetFrequency(freq)
}

// Process runs one buffer through the chain and returns the snapshot
// for it. Timestamps for key events are interpolated from the buffer
// start by sample position.
func (p *BandpassProcessor) Process(samples []float32, timestamp float64) Result {
	var events []KeyEvent

	for i, s := range samples {
		filtered := p.filter.Process(float64(s))
		env := p.envelope.Process(filtered)

		t := timestamp + float64(i)/p.sampleRate
		if changed, down := p.threshold.Update(env, t); changed {
			events = append(events, KeyEvent{Down: down, Timestamp: t})
		}

		p.display.update(env)
		p.vis.push(env)
	}

	return Result{
		KeyEvents:     events,
		PeakAmplitude: p.display.normalize(p.threshold.Peak()),
		KeyDown:       p.threshold.KeyDown(),
		Envelope:      p.vis.snapshot(),
		Calibrating:   p.threshold.Calibrating(),
		NoiseFloor:    p.display.normalize(p.threshold.NoiseFloor()),
		SNR:           p.threshold.SNR(),
		ToneFrequency: p.filter.Frequency(),
	}
}

// Reset clears filter delay state, envelope, threshold and display
// state together. A partial reset would let a new session inherit a
// stale noise floor.
func (p *BandpassProcessor) Reset() {
	p.filter.Reset()
	p.envelope.Reset()
	p.threshold.Reset()
	p.display.reset()
	p.vis.reset()
}
