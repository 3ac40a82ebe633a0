package cw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jsvana/carrier-wave/dsp"
	"github.com/jsvana/carrier-wave/morse"
)

// stubSource delivers pre-rendered audio and closes its channel, like
// a WAV replay without the pacing.
type stubSource struct {
	ch       chan AudioBuffer
	startErr error
}

func newStubSource(samples []float32, sampleRate float64) *stubSource {
	const chunk = 512
	ch := make(chan AudioBuffer, len(samples)/chunk+1)
	for start := 0; start < len(samples); start += chunk {
		end := start + chunk
		if end > len(samples) {
			end = len(samples)
		}
		buf := make([]float32, end-start)
		copy(buf, samples[start:end])
		ch <- AudioBuffer{Samples: buf, Timestamp: float64(start) / sampleRate, SampleRate: sampleRate}
	}
	close(ch)
	return &stubSource{ch: ch}
}

func (s *stubSource) Start() error                { return s.startErr }
func (s *stubSource) Stop() error                 { return nil }
func (s *stubSource) Buffers() <-chan AudioBuffer { return s.ch }

func newTestTranscriber(lineWidth int) *Transcriber {
	p := NewBandpassProcessor(testRate, testTone, 8, dsp.DefaultThresholdConfig())
	cfg := morse.DefaultConfig()
	cfg.InitialWPM = 20
	return NewTranscriber(p, cfg, lineWidth, 100)
}

func runTranscriber(t *testing.T, tr *Transcriber, samples []float32) {
	t.Helper()
	src := newStubSource(samples, testRate)
	if err := tr.Start(context.Background(), src); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for tr.Status().Running {
		if time.Now().After(deadline) {
			tr.Stop()
			t.Fatal("transcriber did not stop after source was exhausted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	tr.Stop()
	tr.Flush()
}

func TestTranscriberDecodesSOS(t *testing.T) {
	tr := newTestTranscriber(64)
	runTranscriber(t, tr, genKeyedAudio("SOS", 20))

	entries := tr.Transcript()
	if len(entries) != 1 || entries[0].Text != "SOS" {
		t.Fatalf("transcript = %v, want single SOS line", entries)
	}
}

func TestTranscriberWordSpacing(t *testing.T) {
	tr := newTestTranscriber(64)
	runTranscriber(t, tr, genKeyedAudio("SOS DE W1AW", 20))

	entries := tr.Transcript()
	if len(entries) != 1 || entries[0].Text != "SOS DE W1AW" {
		t.Fatalf("transcript = %v, want 'SOS DE W1AW'", entries)
	}
}

func TestTranscriberStatus(t *testing.T) {
	tr := newTestTranscriber(64)
	runTranscriber(t, tr, genKeyedAudio("PARIS PARIS", 20))

	s := tr.Status()
	if s.Running {
		t.Error("Running = true after stop")
	}
	if s.Calibrating {
		t.Error("Calibrating = true after seconds of audio")
	}
	if s.WPM < 15 || s.WPM > 25 {
		t.Errorf("WPM = %v, want near 20", s.WPM)
	}
	if s.SNR <= 1 {
		t.Errorf("SNR = %v, want above 1", s.SNR)
	}
	if s.Quality == "" {
		t.Error("Quality empty")
	}
}

func TestTranscriberOnEntry(t *testing.T) {
	tr := newTestTranscriber(64)
	var got []string
	tr.OnEntry = func(e TranscriptEntry) { got = append(got, e.Text) }

	runTranscriber(t, tr, genKeyedAudio("SOS", 20))
	if len(got) != 1 || got[0] != "SOS" {
		t.Errorf("OnEntry received %v, want [SOS]", got)
	}
}

func TestTranscriberStartFailure(t *testing.T) {
	tr := newTestTranscriber(64)
	src := &stubSource{startErr: errors.New("no such device")}

	err := tr.Start(context.Background(), src)
	if !errors.Is(err, ErrCaptureStart) {
		t.Fatalf("Start error = %v, want ErrCaptureStart", err)
	}
	if tr.Status().Running {
		t.Error("Running = true after failed start")
	}
}

func TestTranscriberLineWrap(t *testing.T) {
	tr := newTestTranscriber(10)

	feed := func(text string, wordSpace bool) {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		for _, ch := range text {
			tr.appendOutputs([]morse.Output{{Kind: morse.OutputCharacter, Text: string(ch)}})
		}
		if wordSpace {
			tr.appendOutputs([]morse.Output{{Kind: morse.OutputWordSpace}})
		}
	}

	feed("HELLO", true)
	feed("WORLD", false) // crosses the wrap column mid-word

	entries := tr.Transcript()
	if len(entries) != 1 {
		t.Fatalf("transcript = %v, want one wrapped line", entries)
	}
	// The wrap breaks at the last whitespace, carrying the open word
	// and excluding the trailing boundary from the committed line.
	if entries[0].Text != "HELLO" {
		t.Errorf("wrapped line = %q, want HELLO", entries[0].Text)
	}
	if got := tr.CurrentLine(); got != "WORLD" {
		t.Errorf("carried line = %q, want WORLD", got)
	}
}

func TestTranscriberWordSpaceNeverLeadsLine(t *testing.T) {
	tr := newTestTranscriber(20)
	tr.mu.Lock()
	tr.appendOutputs([]morse.Output{{Kind: morse.OutputWordSpace}})
	tr.mu.Unlock()

	if got := tr.CurrentLine(); got != "" {
		t.Errorf("line = %q after leading word space, want empty", got)
	}
}

func TestTranscriberReset(t *testing.T) {
	tr := newTestTranscriber(64)
	runTranscriber(t, tr, genKeyedAudio("SOS", 20))

	tr.Reset()
	if got := tr.CurrentLine(); got != "" {
		t.Errorf("line = %q after Reset, want empty", got)
	}
	if len(tr.Transcript()) != 1 {
		t.Error("Reset dropped committed transcript lines")
	}
}

func TestTranscriberRestartStartsFresh(t *testing.T) {
	tr := newTestTranscriber(64)
	runTranscriber(t, tr, genKeyedAudio("SOS", 20))
	if tr.Status().Calibrating {
		t.Fatal("still calibrating after the first session")
	}

	// An interrupted session can leave a partial line behind.
	tr.mu.Lock()
	tr.line.WriteString("QR")
	tr.mu.Unlock()

	// A short quiet session: far fewer samples than the calibration
	// window, so a stale threshold from the first session would show
	// up as Calibrating == false.
	if err := tr.Start(context.Background(), newStubSource(make([]float32, 512), testRate)); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for tr.Status().Running {
		if time.Now().After(deadline) {
			tr.Stop()
			t.Fatal("restarted transcriber did not stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
	tr.Stop()

	if !tr.Status().Calibrating {
		t.Error("second session inherited calibration from the first")
	}
	if got := tr.CurrentLine(); got != "" {
		t.Errorf("line %q carried into the new session", got)
	}
	if len(tr.Transcript()) != 1 {
		t.Error("restart dropped the committed transcript")
	}
}

func TestTranscriberConcurrentStart(t *testing.T) {
	tr := newTestTranscriber(64)

	// Open channels keep both candidate sessions alive so the loser
	// cannot sneak in after the winner finishes.
	srcs := [2]*stubSource{
		{ch: make(chan AudioBuffer)},
		{ch: make(chan AudioBuffer)},
	}
	errs := make(chan error, 2)
	for _, src := range srcs {
		go func(src *stubSource) {
			errs <- tr.Start(context.Background(), src)
		}(src)
	}

	var failures int
	for i := 0; i < 2; i++ {
		if <-errs != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("%d Start calls failed, want exactly 1", failures)
	}
	tr.Stop()
	if tr.Status().Running {
		t.Error("Running = true after Stop")
	}
}

func TestTranscriberWordGapAtWrapBoundary(t *testing.T) {
	tr := newTestTranscriber(4)

	tr.mu.Lock()
	for _, ch := range "QRZ?" {
		tr.appendOutputs([]morse.Output{{Kind: morse.OutputCharacter, Text: string(ch)}})
	}
	// The line just wrapped, so these word gaps land on an empty line.
	tr.appendOutputs([]morse.Output{{Kind: morse.OutputWordSpace}})
	tr.appendOutputs([]morse.Output{{Kind: morse.OutputWordSpace}})
	tr.mu.Unlock()

	entries := tr.Transcript()
	if len(entries) != 2 {
		t.Fatalf("transcript holds %d entries, want wrapped line plus one word-space", len(entries))
	}
	if entries[0].Text != "QRZ?" || entries[0].WordSpace {
		t.Errorf("first entry = %+v, want text QRZ?", entries[0])
	}
	if !entries[1].WordSpace || entries[1].Text != "" {
		t.Errorf("second entry = %+v, want bare word-space", entries[1])
	}
}

func TestTranscriberBoundsTranscript(t *testing.T) {
	p := NewBandpassProcessor(testRate, testTone, 8, dsp.DefaultThresholdConfig())
	tr := NewTranscriber(p, morse.DefaultConfig(), 4, 3)

	tr.mu.Lock()
	for i := 0; i < 10; i++ {
		tr.appendOutputs([]morse.Output{
			{Kind: morse.OutputCharacter, Text: "QRZ?"},
			{Kind: morse.OutputWordSpace},
		})
	}
	tr.mu.Unlock()

	if got := len(tr.Transcript()); got != 3 {
		t.Errorf("transcript holds %d entries, want capped at 3", got)
	}
}
