package dsp

import "testing"

func TestEnvelopeFollowsKeyedTone(t *testing.T) {
	e := NewEnvelopeFollower(testSampleRate, 0.001, 0.004)

	// Keyed 700 Hz tone for 20 ms.
	for _, s := range sineWave(700.0, 0.02, testSampleRate) {
		e.Process(s)
	}
	attacked := e.Envelope()
	if attacked < 0.5 {
		t.Errorf("envelope after 20 ms of tone = %v, want > 0.5", attacked)
	}

	// The decay must bridge individual zero crossings of the carrier:
	// one carrier period of silence barely moves it.
	for i := 0; i < int(testSampleRate)/700; i++ {
		e.Process(0)
	}
	if e.Envelope() < attacked*0.5 {
		t.Errorf("envelope collapsed to %v within one carrier period", e.Envelope())
	}

	// 50 ms of silence drains it.
	for i := 0; i < int(testSampleRate*0.05); i++ {
		e.Process(0)
	}
	if e.Envelope() > attacked*0.05 {
		t.Errorf("envelope = %v after 50 ms of silence, want near 0", e.Envelope())
	}
}

func TestEnvelopeRectifies(t *testing.T) {
	e := NewEnvelopeFollower(testSampleRate, 0.001, 0.004)
	if out := e.Process(-0.8); out <= 0 {
		t.Errorf("envelope = %v for a negative sample, want positive", out)
	}
}

func TestEnvelopeReset(t *testing.T) {
	e := NewEnvelopeFollower(testSampleRate, 0.001, 0.004)
	e.Process(1.0)
	e.Reset()
	if e.Envelope() != 0 {
		t.Errorf("envelope = %v after Reset, want 0", e.Envelope())
	}
}
