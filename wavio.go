package cw

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavChunkFrames is the replay granularity. At 48 kHz a chunk is about
// 85 ms, close to a live capture callback.
const wavChunkFrames = 4096

// WavSource replays a WAV file as an AudioSource. When realtime is set
// the replay is paced to the file's sample rate so adaptive state
// evolves as it would on live audio.
type WavSource struct {
	path     string
	realtime bool

	file    *os.File
	decoder *wav.Decoder

	buffers chan AudioBuffer
	stop    chan struct{}
	done    chan struct{}
}

// NewWavSource opens and validates the file without reading samples.
func NewWavSource(path string, realtime bool) (*WavSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("open wav: %s is not a valid WAV file", path)
	}
	return &WavSource{
		path:     path,
		realtime: realtime,
		file:     f,
		decoder:  d,
		buffers:  make(chan AudioBuffer, 4),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SampleRate reports the file's sample rate.
func (ws *WavSource) SampleRate() int { return int(ws.decoder.SampleRate) }

// Start begins decoding in a goroutine. The buffer channel closes when
// the file is exhausted or Stop is called.
func (ws *WavSource) Start() error {
	go ws.run()
	return nil
}

func (ws *WavSource) run() {
	defer close(ws.done)
	defer close(ws.buffers)
	defer ws.file.Close()

	sampleRate := float64(ws.decoder.SampleRate)
	channels := int(ws.decoder.NumChans)
	scale := 1.0 / float64(int(1)<<(ws.decoder.BitDepth-1))

	intBuf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: int(sampleRate)},
		Data:   make([]int, wavChunkFrames*channels),
	}

	var delivered uint64
	start := time.Now()
	for {
		n, err := ws.decoder.PCMBuffer(intBuf)
		if n == 0 {
			if err != nil {
				log.Printf("wav: decode %s: %v", ws.path, err)
			}
			return
		}

		frames := n / channels
		samples := make([]float32, frames)
		for i := 0; i < frames; i++ {
			// Downmix by averaging channels.
			sum := 0.0
			for c := 0; c < channels; c++ {
				sum += float64(intBuf.Data[i*channels+c]) * scale
			}
			samples[i] = float32(sum / float64(channels))
		}

		timestamp := float64(delivered) / sampleRate
		delivered += uint64(frames)

		if ws.realtime {
			if wait := time.Duration(timestamp*float64(time.Second)) - time.Since(start); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ws.stop:
					return
				}
			}
		}

		select {
		case ws.buffers <- AudioBuffer{Samples: samples, Timestamp: timestamp, SampleRate: sampleRate}:
		case <-ws.stop:
			return
		}

		if err != nil {
			return
		}
	}
}

// Stop ends replay early and waits for the decode goroutine.
func (ws *WavSource) Stop() error {
	select {
	case <-ws.stop:
	default:
		close(ws.stop)
	}
	<-ws.done
	return nil
}

// Buffers returns the replay stream.
func (ws *WavSource) Buffers() <-chan AudioBuffer { return ws.buffers }

// RecordingSource wraps another AudioSource and writes everything it
// delivers to a 16-bit mono WAV file.
type RecordingSource struct {
	inner AudioSource

	file    *os.File
	encoder *wav.Encoder

	out  chan AudioBuffer
	stop chan struct{}
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewRecordingSource creates the output file immediately so a bad path
// fails before capture starts.
func NewRecordingSource(inner AudioSource, path string, sampleRate int) (*RecordingSource, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return &RecordingSource{
		inner:   inner,
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, 16, 1, 1),
		out:     make(chan AudioBuffer, 4),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start starts the wrapped source and begins teeing its buffers.
func (rs *RecordingSource) Start() error {
	if err := rs.inner.Start(); err != nil {
		rs.finalize()
		return err
	}
	go rs.tee()
	return nil
}

func (rs *RecordingSource) tee() {
	defer close(rs.done)
	defer close(rs.out)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rs.encoder.SampleRate},
		SourceBitDepth: 16,
	}
	for b := range rs.inner.Buffers() {
		if cap(buf.Data) < len(b.Samples) {
			buf.Data = make([]int, len(b.Samples))
		}
		buf.Data = buf.Data[:len(b.Samples)]
		for i, s := range b.Samples {
			v := int(s * 32767)
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			buf.Data[i] = v
		}
		if err := rs.encoder.Write(buf); err != nil {
			log.Printf("record: write: %v", err)
		}
		// The consumer may have gone away; Stop closes rs.stop so
		// the tee never wedges on an unread out channel.
		select {
		case rs.out <- b:
		case <-rs.stop:
			return
		}
	}
}

// Stop releases the tee, stops the wrapped source and finalizes the
// WAV header. Safe to call more than once.
func (rs *RecordingSource) Stop() error {
	select {
	case <-rs.stop:
	default:
		close(rs.stop)
	}
	err := rs.inner.Stop()
	<-rs.done
	rs.finalize()
	if err == nil {
		err = rs.closeErr
	}
	return err
}

func (rs *RecordingSource) finalize() {
	rs.closeOnce.Do(func() {
		if cerr := rs.encoder.Close(); cerr != nil {
			rs.closeErr = fmt.Errorf("finalize recording: %w", cerr)
		}
		if cerr := rs.file.Close(); cerr != nil && rs.closeErr == nil {
			rs.closeErr = cerr
		}
	})
}

// Buffers returns the teed stream.
func (rs *RecordingSource) Buffers() <-chan AudioBuffer { return rs.out }
