package cw

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWav(t *testing.T, path string, samples []float32, sampleRate int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWavSourceReplaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	want := make([]float32, 1600)
	for i := range want {
		want[i] = float32(0.5 * math.Sin(2*math.Pi*testTone*float64(i)/testRate))
	}
	writeTestWav(t, path, want, int(testRate))

	ws, err := NewWavSource(path, false)
	if err != nil {
		t.Fatalf("NewWavSource failed: %v", err)
	}
	if ws.SampleRate() != int(testRate) {
		t.Errorf("SampleRate() = %d, want %d", ws.SampleRate(), int(testRate))
	}
	if err := ws.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var got []float32
	lastEnd := 0.0
	for buf := range ws.Buffers() {
		if buf.SampleRate != testRate {
			t.Errorf("buffer sample rate = %v, want %v", buf.SampleRate, testRate)
		}
		if gap := buf.Timestamp - lastEnd; gap < -1e-9 || gap > 1e-9 {
			t.Errorf("buffer timestamp %v, want contiguous %v", buf.Timestamp, lastEnd)
		}
		lastEnd = buf.Timestamp + float64(len(buf.Samples))/buf.SampleRate
		got = append(got, buf.Samples...)
	}

	if len(got) != len(want) {
		t.Fatalf("replayed %d samples, want %d", len(got), len(want))
	}
	for i := range got {
		if diff := float64(got[i] - want[i]); math.Abs(diff) > 1.0/16384 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}

	if err := ws.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestWavSourceRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.bin")
	if err := os.WriteFile(path, []byte("not a wav file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWavSource(path, false); err == nil {
		t.Fatal("expected error for invalid WAV data")
	}
}

func TestWavSourceMissingFile(t *testing.T) {
	if _, err := NewWavSource(filepath.Join(t.TempDir(), "nope.wav"), false); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRecordingSourceStopWithoutConsumer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	// Enough buffers to fill the tee's out channel several times over.
	inner := newStubSource(make([]float32, 16*512), testRate)
	rec, err := NewRecordingSource(inner, path, testRate)
	if err != nil {
		t.Fatalf("NewRecordingSource failed: %v", err)
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Never read rec.Buffers(); Stop must still return.
	stopped := make(chan error, 1)
	go func() { stopped <- rec.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the tee channel was unread")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !wav.NewDecoder(f).IsValidFile() {
		t.Error("recording was not finalized as a valid WAV file")
	}
}
