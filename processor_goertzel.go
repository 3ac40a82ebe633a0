package cw

import (
	"github.com/jsvana/carrier-wave/dsp"
)

// GoertzelProcessor is the block-based signal path. In fixed mode a
// single Goertzel filter tracks the configured tone; in adaptive mode a
// filter bank scans a frequency range each block and the strongest bin
// drives detection.
type GoertzelProcessor struct {
	sampleRate float64
	blockSize  int

	filter *dsp.Goertzel
	bank   *dsp.GoertzelBank

	threshold *dsp.ThresholdTracker

	// pending carries the tail of the previous buffer that did not
	// fill a whole block. It is prepended to the next buffer so no
	// sample is dropped or processed twice.
	pending []float32

	// detectedFreq is the smoothed scan result in adaptive mode.
	detectedFreq float64

	display displayTracker
	vis     visBuffer
}

// freqSmoothingAlpha damps block-to-block jitter of the adaptive scan.
const freqSmoothingAlpha = 0.2

// NewGoertzelProcessor builds a fixed-frequency Goertzel path.
func NewGoertzelProcessor(sampleRate, toneFreq float64, blockSize int, thresholdCfg dsp.ThresholdConfig) *GoertzelProcessor {
	updateRate := sampleRate / float64(blockSize)
	return &GoertzelProcessor{
		sampleRate:   sampleRate,
		blockSize:    blockSize,
		filter:       dsp.NewGoertzel(sampleRate, toneFreq, blockSize, true),
		threshold:    dsp.NewThresholdTracker(thresholdCfg, updateRate),
		detectedFreq: toneFreq,
		display:      newDisplayTracker(),
		vis:          newVisBuffer(visCapacity, 1),
	}
}

// NewAdaptiveGoertzelProcessor builds a scanning Goertzel path that
// searches [minFreq, maxFreq] in step increments each block.
func NewAdaptiveGoertzelProcessor(sampleRate, minFreq, maxFreq, step float64, blockSize int, thresholdCfg dsp.ThresholdConfig) *GoertzelProcessor {
	updateRate := sampleRate / float64(blockSize)
	bank := dsp.NewGoertzelBank(sampleRate, minFreq, maxFreq, step, blockSize, true)
	return &GoertzelProcessor{
		sampleRate:   sampleRate,
		blockSize:    blockSize,
		bank:         bank,
		threshold:    dsp.NewThresholdTracker(thresholdCfg, updateRate),
		detectedFreq: (minFreq + maxFreq) / 2,
		display:      newDisplayTracker(),
		vis:          newVisBuffer(visCapacity, 1),
	}
}

// ToneFrequency returns the configured frequency in fixed mode, or the
// smoothed scan result in adaptive mode.
func (p *GoertzelProcessor) ToneFrequency() float64 {
	if p.filter != nil {
		return p.filter.Frequency()
	}
	return p.detectedFreq
}

// SetToneFrequency retunes the fixed filter. In adaptive mode it only
// reseeds the smoothed estimate; the scan takes over from there.
func (p *GoertzelProcessor) SetToneFrequency(freq float64) {
	if p.filter != nil {
		p.filter.SetFrequency(freq)
		return
	}
	p.detectedFreq = freq
}

// Process appends the buffer to any carried tail and consumes complete
// blocks. Each block's timestamp is derived from its first sample's
// position, which may be negative relative to the buffer start when the
// block begins in carried samples.
func (p *GoertzelProcessor) Process(samples []float32, timestamp float64) Result {
	carried := len(p.pending)
	p.pending = append(p.pending, samples...)

	var events []KeyEvent
	pos := -carried
	for len(p.pending) >= p.blockSize {
		block := p.pending[:p.blockSize]

		var mag float64
		if p.filter != nil {
			mag = p.filter.Magnitude(block)
		} else {
			freq, m := p.bank.Detect(block)
			mag = m
			if !p.threshold.Calibrating() && p.threshold.KeyDown() {
				p.detectedFreq += freqSmoothingAlpha * (freq - p.detectedFreq)
			}
		}

		t := timestamp + float64(pos)/p.sampleRate
		if changed, down := p.threshold.Update(mag, t); changed {
			events = append(events, KeyEvent{Down: down, Timestamp: t})
		}

		p.display.update(mag)
		p.vis.push(mag)

		p.pending = p.pending[p.blockSize:]
		pos += p.blockSize
	}
	if len(p.pending) > 0 && cap(p.pending) > 4*p.blockSize {
		p.pending = append(make([]float32, 0, p.blockSize), p.pending...)
	}

	return Result{
		KeyEvents:     events,
		PeakAmplitude: p.display.normalize(p.threshold.Peak()),
		KeyDown:       p.threshold.KeyDown(),
		Envelope:      p.vis.snapshot(),
		Calibrating:   p.threshold.Calibrating(),
		NoiseFloor:    p.display.normalize(p.threshold.NoiseFloor()),
		SNR:           p.threshold.SNR(),
		ToneFrequency: p.ToneFrequency(),
	}
}

// Reset discards carried samples along with threshold and display
// state. The adaptive frequency estimate is kept; tone pitch rarely
// changes between sessions on the same receiver.
func (p *GoertzelProcessor) Reset() {
	p.pending = p.pending[:0]
	p.threshold.Reset()
	p.display.reset()
	p.vis.reset()
}
