package dsp

import (
	"math"
	"testing"
)

func sineBlock32(freq float64, n int, sampleRate float64) []float32 {
	block := make([]float32, n)
	for i := range block {
		block[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return block
}

func TestGoertzelMagnitude(t *testing.T) {
	const blockSize = 480
	g := NewGoertzel(testSampleRate, 700.0, blockSize, false)

	onTarget := g.Magnitude(sineBlock32(700.0, blockSize, testSampleRate))
	if onTarget < 0.8 || onTarget > 1.2 {
		t.Errorf("full-scale on-target magnitude = %v, want near 1.0", onTarget)
	}

	offTarget := g.Magnitude(sineBlock32(1500.0, blockSize, testSampleRate))
	if offTarget > onTarget/10 {
		t.Errorf("off-target magnitude = %v vs on-target %v", offTarget, onTarget)
	}

	silence := g.Magnitude(make([]float32, blockSize))
	if silence != 0 {
		t.Errorf("silence magnitude = %v, want 0", silence)
	}
}

func TestGoertzelWindowedReducesLeakage(t *testing.T) {
	const blockSize = 480
	plain := NewGoertzel(testSampleRate, 700.0, blockSize, false)
	windowed := NewGoertzel(testSampleRate, 700.0, blockSize, true)

	// A tone a few bins off target leaks through the rectangular
	// window's sidelobes more than through Hamming's. 1150 Hz sits
	// 4.5 bins away, clear of the sidelobe nulls at integer offsets.
	near := sineBlock32(1150.0, blockSize, testSampleRate)
	if w, p := windowed.Magnitude(near), plain.Magnitude(near); w >= p {
		t.Errorf("windowed leakage %v not below rectangular %v", w, p)
	}
}

func TestGoertzelBankDetect(t *testing.T) {
	const blockSize = 1024
	bank := NewGoertzelBank(testSampleRate, 400, 1000, 25, blockSize, true)

	freq, mag := bank.Detect(sineBlock32(700.0, blockSize, testSampleRate))
	if math.Abs(freq-700.0) > 25 {
		t.Errorf("detected %v Hz, want within one step of 700", freq)
	}
	if mag <= 0 {
		t.Errorf("magnitude = %v, want positive", mag)
	}

	freq, _ = bank.Detect(sineBlock32(425.0, blockSize, testSampleRate))
	if math.Abs(freq-425.0) > 25 {
		t.Errorf("detected %v Hz, want within one step of 425", freq)
	}
}

func TestGoertzelBankSpansRange(t *testing.T) {
	bank := NewGoertzelBank(testSampleRate, 400, 500, 25, 256, false)
	want := []float64{400, 425, 450, 475, 500}
	if len(bank.filters) != len(want) {
		t.Fatalf("bank has %d filters, want %d", len(bank.filters), len(want))
	}
	for i, f := range bank.filters {
		if math.Abs(f.Frequency()-want[i]) > 1e-9 {
			t.Errorf("filter %d at %v Hz, want %v", i, f.Frequency(), want[i])
		}
	}
}
