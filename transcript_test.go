package cw

import "testing"

func TestRateNoiseTiers(t *testing.T) {
	cases := []struct {
		floor float64
		want  NoiseQuality
	}{
		{0.0, QualityExcellent},
		{0.04, QualityExcellent},
		{0.05, QualityGood},
		{0.14, QualityGood},
		{0.2, QualityFair},
		{0.4, QualityPoor},
		{0.5, QualityUnusable},
		{0.9, QualityUnusable},
	}
	for _, tc := range cases {
		if got := RateNoise(tc.floor); got != tc.want {
			t.Errorf("RateNoise(%v) = %v, want %v", tc.floor, got, tc.want)
		}
	}
}

func TestTranscriptTokensFlagCallsigns(t *testing.T) {
	entry := TranscriptEntry{Text: "CQ DE W1AW W1AW K"}
	tokens := entry.Tokens()

	want := map[string]bool{
		"CQ": false, "DE": false, "W1AW": true, "K": false,
	}
	for _, tok := range tokens {
		if isCall, ok := want[tok.Text]; ok && tok.Callsign != isCall {
			t.Errorf("token %q callsign = %v, want %v", tok.Text, tok.Callsign, isCall)
		}
	}
	if len(tokens) != 5 {
		t.Errorf("got %d tokens, want 5", len(tokens))
	}
}

func TestCallsignShapes(t *testing.T) {
	cases := map[string]bool{
		"W1AW":   true,
		"JA2XYZ": true,
		"9A1A":   true,
		"G4ABC":  true,
		"CQ":     false,
		"SOS":    false,
		"73":     false,
		"QRZ?":   false,
	}
	for call, want := range cases {
		if got := callsignRe.MatchString(call); got != want {
			t.Errorf("callsignRe(%q) = %v, want %v", call, got, want)
		}
	}
}

func TestTranscriptEntryIDsIncrease(t *testing.T) {
	a := newTranscriptEntry("A")
	b := newTranscriptEntry("B")
	if b.ID <= a.ID {
		t.Errorf("entry IDs %d, %d not increasing", a.ID, b.ID)
	}
}
