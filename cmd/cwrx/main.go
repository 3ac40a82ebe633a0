package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cw "github.com/jsvana/carrier-wave"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		wavPath    = flag.String("file", "", "decode a WAV file instead of live audio")
		recordPath = flag.String("record", "", "record captured audio to a WAV file")
		device     = flag.String("device", "", "capture device name substring")
		mode       = flag.String("mode", "", "detection mode: bandpass, goertzel or adaptive")
		freq       = flag.Float64("freq", 0, "tone frequency in Hz")
		wpm        = flag.Float64("wpm", 0, "initial decode speed in WPM")
		port       = flag.String("port", "", "CI-V serial port for keying")
		autoTune   = flag.Bool("autotune", false, "follow the tone with FFT pitch detection")
		status     = flag.Bool("status", false, "print a status line every second")
	)
	flag.Parse()

	cfg := cw.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = cw.LoadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	if *device != "" {
		cfg.Audio.Device = *device
	}
	if *mode != "" {
		cfg.Detection.Mode = *mode
	}
	if *freq > 0 {
		cfg.Detection.ToneFrequency = *freq
	}
	if *wpm > 0 {
		cfg.Decoder.InitialWPM = *wpm
	}
	if *port != "" {
		cfg.Keyer.Port = *port
	}
	if *autoTune {
		cfg.Detection.AutoTune = true
	}

	if err := run(cfg, *wavPath, *recordPath, *status); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *cw.Config, wavPath, recordPath string, showStatus bool) error {
	source, fromFile, err := buildSource(cfg, wavPath, recordPath)
	if err != nil {
		return err
	}

	processor, err := cfg.NewProcessor()
	if err != nil {
		return err
	}

	transcriber := cw.NewTranscriber(processor, cfg.DecoderConfig(), cfg.Transcript.LineWidth, cfg.Transcript.MaxEntries)
	if cfg.Detection.AutoTune {
		transcriber.EnableAutoTune(cfg.PitchConfig(), cfg.Audio.SampleRate/4)
	}
	transcriber.OnEntry = func(e cw.TranscriptEntry) {
		fmt.Println(e.Text)
	}

	var keyer *cw.Keyer
	if cfg.Keyer.Port != "" {
		keyer = cw.NewKeyer(cfg.Keyer.Port, cfg.Keyer.BaudRate)
		if err := keyer.Open(); err != nil {
			return err
		}
		defer keyer.Close()
		if f, err := keyer.ReadFrequency(); err == nil {
			log.Printf("rig at %.3f MHz", float64(f)/1e6)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := transcriber.Start(ctx, source); err != nil {
		return err
	}
	defer transcriber.Stop()

	if showStatus {
		go statusLoop(ctx, transcriber)
	}
	if keyer != nil {
		go keyLoop(ctx, keyer)
	}

	if fromFile {
		waitForTranscriber(ctx, transcriber)
		// Give the silence ticker time to flush the tail.
		time.Sleep(500 * time.Millisecond)
	} else {
		<-ctx.Done()
	}

	transcriber.Flush()
	return nil
}

func buildSource(cfg *cw.Config, wavPath, recordPath string) (cw.AudioSource, bool, error) {
	if wavPath != "" {
		ws, err := cw.NewWavSource(wavPath, true)
		if err != nil {
			return nil, false, err
		}
		cfg.Audio.SampleRate = ws.SampleRate()
		return ws, true, nil
	}

	mic, err := cw.NewMicSource(cfg.Audio.SampleRate, cfg.Audio.Device)
	if err != nil {
		return nil, false, err
	}
	if recordPath == "" {
		return mic, false, nil
	}
	rec, err := cw.NewRecordingSource(mic, recordPath, cfg.Audio.SampleRate)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// waitForTranscriber returns once the transcriber stops on its own,
// which happens when a file source runs out of audio.
func waitForTranscriber(ctx context.Context, t *cw.Transcriber) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.Status().Running {
				return
			}
		}
	}
}

func statusLoop(ctx context.Context, t *cw.Transcriber) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := t.Status()
			fmt.Fprintf(os.Stderr, "\r[%4.1f wpm  %5.0f Hz  snr %5.1f  %s] %s ",
				s.WPM, s.ToneFrequency, s.SNR, s.Quality, t.CurrentLine())
		}
	}
}

// keyLoop sends stdin lines through the rig's keyer.
func keyLoop(ctx context.Context, k *cw.Keyer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if text == "" {
			continue
		}
		if err := k.SendText(text); err != nil {
			log.Printf("keyer: %v", err)
		}
	}
}
