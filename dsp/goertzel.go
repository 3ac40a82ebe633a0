package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// Goertzel computes the DFT magnitude at a single target frequency over
// a fixed-size block of samples. The recursion is O(N) per block and
// needs no full FFT, which keeps an adaptive bank of these cheap enough
// to run per block. An optional Hamming window reduces spectral leakage
// from neighboring tones.
type Goertzel struct {
	sampleRate float64
	freq       float64
	blockSize  int
	coeff      float64
	win        []float64 // nil when windowing is disabled
}

// NewGoertzel creates a detector for freq over blocks of blockSize
// samples.
func NewGoertzel(sampleRate, freq float64, blockSize int, windowed bool) *Goertzel {
	g := &Goertzel{
		sampleRate: sampleRate,
		blockSize:  blockSize,
	}
	if windowed {
		w := make([]float64, blockSize)
		for i := range w {
			w[i] = 1
		}
		g.win = window.Hamming(w)
	}
	g.SetFrequency(freq)
	return g
}

// Frequency returns the target frequency in Hz.
func (g *Goertzel) Frequency() float64 { return g.freq }

// BlockSize returns the number of samples consumed per magnitude.
func (g *Goertzel) BlockSize() int { return g.blockSize }

// SetFrequency retargets the detector. The recursion holds no state
// between blocks, so no reset is needed beyond the coefficient.
func (g *Goertzel) SetFrequency(freq float64) {
	g.freq = freq
	g.coeff = 2 * math.Cos(2*math.Pi*freq/g.sampleRate)
}

// Magnitude runs the Goertzel recursion over one block and returns the
// amplitude at the target frequency, scaled so a full-scale sine at the
// target reads close to 1.0. len(block) must equal BlockSize.
func (g *Goertzel) Magnitude(block []float32) float64 {
	var q1, q2 float64
	if g.win != nil {
		for i, s := range block {
			q0 := g.coeff*q1 - q2 + float64(s)*g.win[i]
			q2 = q1
			q1 = q0
		}
	} else {
		for _, s := range block {
			q0 := g.coeff*q1 - q2 + float64(s)
			q2 = q1
			q1 = q0
		}
	}

	m2 := q1*q1 + q2*q2 - q1*q2*g.coeff
	if m2 < 0 {
		return 0
	}
	return math.Sqrt(m2) * 2 / float64(g.blockSize)
}

// GoertzelBank evaluates a range of frequencies per block and reports
// the strongest one. This is how an unknown or drifting sidetone
// frequency is tracked without the operator tuning anything.
type GoertzelBank struct {
	filters   []*Goertzel
	blockSize int
}

// NewGoertzelBank spans [minFreq, maxFreq] in step-Hz increments.
func NewGoertzelBank(sampleRate, minFreq, maxFreq, step float64, blockSize int, windowed bool) *GoertzelBank {
	if step <= 0 {
		step = 10
	}
	var filters []*Goertzel
	for f := minFreq; f <= maxFreq+step/2; f += step {
		filters = append(filters, NewGoertzel(sampleRate, f, blockSize, windowed))
	}
	return &GoertzelBank{
		filters:   filters,
		blockSize: blockSize,
	}
}

// BlockSize returns the number of samples consumed per detection.
func (b *GoertzelBank) BlockSize() int { return b.blockSize }

// Detect evaluates every filter over the block and returns the
// frequency with the highest energy together with that energy.
func (b *GoertzelBank) Detect(block []float32) (freq, magnitude float64) {
	for _, g := range b.filters {
		m := g.Magnitude(block)
		if m > magnitude {
			magnitude = m
			freq = g.Frequency()
		}
	}
	return freq, magnitude
}
