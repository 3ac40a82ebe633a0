package cw

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jsvana/carrier-wave/dsp"
	"github.com/jsvana/carrier-wave/morse"
)

// ErrCaptureStart reports that the audio source failed to start. No
// goroutines are running when it is returned.
var ErrCaptureStart = errors.New("audio capture failed to start")

// AudioBuffer is one chunk of mono samples from a source. Timestamp is
// the stream time of the first sample in seconds.
type AudioBuffer struct {
	Samples    []float32
	Timestamp  float64
	SampleRate float64
}

// AudioSource produces audio buffers until stopped. Buffers() must be
// closed by the source when the stream ends or Stop is called. The
// samples in a delivered buffer belong to the receiver.
type AudioSource interface {
	Start() error
	Stop() error
	Buffers() <-chan AudioBuffer
}

// silenceFlushInterval is how often the timeout goroutine checks for a
// trailing character with no closing gap.
const silenceFlushInterval = 100 * time.Millisecond

// Status is a point-in-time snapshot of the decode chain for display.
type Status struct {
	Running       bool         `json:"running"`
	Calibrating   bool         `json:"calibrating"`
	WPM           float64      `json:"wpm"`
	ToneFrequency float64      `json:"tone_frequency"`
	NoiseFloor    float64      `json:"noise_floor"`
	Peak          float64      `json:"peak"`
	SNR           float64      `json:"snr"`
	Quality       NoiseQuality `json:"quality"`
	Pending       string       `json:"pending"`
}

// Transcriber drives a SignalProcessor and morse.Decoder from an audio
// source and assembles decoded characters into transcript lines. The
// mutex serializes the consume goroutine, the silence ticker and
// external accessors over the processor and decoder.
type Transcriber struct {
	mu sync.Mutex

	processor SignalProcessor
	decoder   *morse.Decoder
	tuner     *pitchTuner

	lineWidth  int
	maxEntries int

	line       strings.Builder
	transcript []TranscriptEntry

	lastResult Result

	// lastAudio pins stream time to wall time so the silence ticker
	// can extrapolate "now" between buffers.
	lastAudio     float64
	lastAudioWall time.Time
	haveAudio     bool

	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// OnEntry, if set, is called outside the lock for every committed
	// transcript line.
	OnEntry func(TranscriptEntry)
}

// NewTranscriber wires a processor and decoder together. lineWidth is
// the wrap column for transcript lines, maxEntries bounds the retained
// transcript.
func NewTranscriber(processor SignalProcessor, decoderCfg morse.Config, lineWidth, maxEntries int) *Transcriber {
	return &Transcriber{
		processor:  processor,
		decoder:    morse.NewDecoder(decoderCfg),
		lineWidth:  lineWidth,
		maxEntries: maxEntries,
	}
}

// Start begins consuming the source. It fails without side effects if
// the source cannot start. Starting again after a Stop opens a fresh
// session: filter, threshold and decoder state are reset so the new
// session calibrates from scratch; the committed transcript is kept.
func (t *Transcriber) Start(ctx context.Context, source AudioSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("transcriber already running")
	}

	if err := source.Start(); err != nil {
		return errors.Join(ErrCaptureStart, err)
	}

	t.processor.Reset()
	t.decoder.Reset()
	if t.tuner != nil {
		t.tuner.reset()
	}
	t.line.Reset()
	t.lastResult = Result{}
	t.haveAudio = false

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.running = true
	t.cancel = cancel
	t.done = done

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		t.consume(ctx, source)
		// Source exhaustion ends the session the same as Stop.
		cancel()
	}()
	go func() {
		defer wg.Done()
		t.tickSilence(ctx)
	}()
	go func() {
		wg.Wait()
		if err := source.Stop(); err != nil {
			log.Printf("transcriber: source stop: %v", err)
		}
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}()

	return nil
}

// Stop cancels processing and waits for the worker goroutines to
// finish. Safe to call when not running.
func (t *Transcriber) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Transcriber) consume(ctx context.Context, source AudioSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-source.Buffers():
			if !ok {
				return
			}
			t.handleBuffer(buf)
		}
	}
}

func (t *Transcriber) tickSilence(ctx context.Context) {
	ticker := time.NewTicker(silenceFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkSilence()
		}
	}
}

// retuneThresholdHz avoids churning filter state on sub-Hz drift.
const retuneThresholdHz = 2.0

// EnableAutoTune retunes the processor from FFT pitch detection as the
// stream plays. Call before Start.
func (t *Transcriber) EnableAutoTune(cfg dsp.PitchDetectorConfig, runInterval int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tuner = newPitchTuner(cfg, runInterval)
}

func (t *Transcriber) handleBuffer(buf AudioBuffer) {
	t.mu.Lock()
	if t.tuner != nil {
		if freq, found := t.tuner.push(buf.Samples); found {
			if diff := freq - t.processor.ToneFrequency(); diff > retuneThresholdHz || diff < -retuneThresholdHz {
				t.processor.SetToneFrequency(freq)
			}
		}
	}
	result := t.processor.Process(buf.Samples, buf.Timestamp)
	t.lastResult = result
	t.lastAudio = buf.Timestamp + float64(len(buf.Samples))/buf.SampleRate
	t.lastAudioWall = time.Now()
	t.haveAudio = true

	var committed []TranscriptEntry
	for _, ev := range result.KeyEvents {
		outputs := t.decoder.ProcessKeyEvent(ev.Down, ev.Timestamp)
		committed = append(committed, t.appendOutputs(outputs)...)
	}
	t.mu.Unlock()

	t.notify(committed)
}

// checkSilence extrapolates stream time from the wall clock so a
// trailing character flushes even when the source goes quiet and no
// further buffers arrive.
func (t *Transcriber) checkSilence() {
	t.mu.Lock()
	if !t.haveAudio {
		t.mu.Unlock()
		return
	}
	now := t.lastAudio + time.Since(t.lastAudioWall).Seconds()
	outputs := t.decoder.CheckTimeout(now)
	committed := t.appendOutputs(outputs)
	t.mu.Unlock()

	t.notify(committed)
}

// appendOutputs folds decoder outputs into the current line, committing
// wrapped lines. Caller holds the lock.
func (t *Transcriber) appendOutputs(outputs []morse.Output) []TranscriptEntry {
	var committed []TranscriptEntry
	for _, out := range outputs {
		switch out.Kind {
		case morse.OutputCharacter:
			t.line.WriteString(out.Text)
		case morse.OutputWordSpace:
			if t.line.Len() > 0 {
				t.line.WriteString(" ")
			} else if n := len(t.transcript); n > 0 && !t.transcript[n-1].WordSpace {
				// A word gap right after a wrap would vanish; keep
				// it as a bare word-space entry.
				entry := newWordSpaceEntry()
				t.pushEntry(entry)
				committed = append(committed, entry)
			}
		}
		if t.line.Len() >= t.lineWidth {
			if entry, ok := t.commitLine(); ok {
				committed = append(committed, entry)
			}
		}
	}
	return committed
}

// pushEntry appends to the transcript, trimming the oldest entries
// past the cap. Caller holds the lock.
func (t *Transcriber) pushEntry(entry TranscriptEntry) {
	t.transcript = append(t.transcript, entry)
	if t.maxEntries > 0 && len(t.transcript) > t.maxEntries {
		t.transcript = t.transcript[len(t.transcript)-t.maxEntries:]
	}
}

// commitLine wraps the working line at the last whitespace when one
// exists, carrying the remainder forward. Caller holds the lock.
func (t *Transcriber) commitLine() (TranscriptEntry, bool) {
	text := t.line.String()
	t.line.Reset()

	carry := ""
	if idx := strings.LastIndexByte(text, ' '); idx > 0 {
		carry = text[idx+1:]
		text = text[:idx]
	}
	text = strings.TrimRight(text, " ")
	if carry != "" {
		t.line.WriteString(carry)
	}
	if text == "" {
		return TranscriptEntry{}, false
	}

	entry := newTranscriptEntry(text)
	t.pushEntry(entry)
	return entry, true
}

// Flush decodes any pending pattern and commits the partial line as a
// whole, without wrapping.
func (t *Transcriber) Flush() {
	t.mu.Lock()
	var committed []TranscriptEntry
	outputs := t.decoder.CheckTimeout(t.lastAudio + 10)
	committed = append(committed, t.appendOutputs(outputs)...)

	text := strings.TrimRight(t.line.String(), " ")
	t.line.Reset()
	if text != "" {
		entry := newTranscriptEntry(text)
		t.pushEntry(entry)
		committed = append(committed, entry)
	}
	t.mu.Unlock()

	t.notify(committed)
}

func (t *Transcriber) notify(entries []TranscriptEntry) {
	if t.OnEntry == nil {
		return
	}
	for _, e := range entries {
		t.OnEntry(e)
	}
}

// Transcript returns a copy of the committed lines.
func (t *Transcriber) Transcript() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscriptEntry, len(t.transcript))
	copy(out, t.transcript)
	return out
}

// CurrentLine returns the uncommitted working line.
func (t *Transcriber) CurrentLine() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.line.String()
}

// Status snapshots the chain's telemetry.
func (t *Transcriber) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Running:       t.running,
		Calibrating:   t.lastResult.Calibrating,
		WPM:           t.decoder.WPM(),
		ToneFrequency: t.processor.ToneFrequency(),
		NoiseFloor:    t.lastResult.NoiseFloor,
		Peak:          t.lastResult.PeakAmplitude,
		SNR:           t.lastResult.SNR,
		Quality:       RateNoise(t.lastResult.NoiseFloor),
		Pending:       t.decoder.Pattern(),
	}
}

// SetToneFrequency retunes the processor mid-stream.
func (t *Transcriber) SetToneFrequency(freq float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processor.SetToneFrequency(freq)
}

// Reset clears processor and decoder state and the working line.
// Committed transcript lines are kept.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processor.Reset()
	t.decoder.Reset()
	if t.tuner != nil {
		t.tuner.reset()
	}
	t.line.Reset()
	t.haveAudio = false
	t.lastResult = Result{}
}
