package cw

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jsvana/carrier-wave/dsp"
	"github.com/jsvana/carrier-wave/morse"
)

// Detection modes for the signal processor.
const (
	ModeBandpass = "bandpass" // biquad bandpass at a fixed tone frequency
	ModeGoertzel = "goertzel" // single Goertzel bin at a fixed frequency
	ModeAdaptive = "adaptive" // Goertzel bank scanning a frequency range
)

// Config validation errors.
var (
	ErrBadSampleRate = errors.New("sample rate must be positive")
	ErrBadMode       = errors.New("detection mode must be bandpass, goertzel or adaptive")
	ErrBadFreqRange  = errors.New("scan range requires min < max and a positive step")
	ErrBadBlockSize  = errors.New("block size must be positive")
	ErrBadWPMRange   = errors.New("wpm limits require 0 < min <= initial <= max")
)

// Config collects every tunable of the decode chain.
type Config struct {
	Audio struct {
		SampleRate int    `yaml:"sample_rate"` // capture rate in Hz (e.g. 48000)
		Device     string `yaml:"device"`      // substring of the capture device name, empty for default
	} `yaml:"audio"`

	Detection struct {
		Mode          string  `yaml:"mode"`           // bandpass, goertzel or adaptive
		ToneFrequency float64 `yaml:"tone_frequency"` // expected CW tone in Hz (fixed modes)
		Q             float64 `yaml:"q"`              // bandpass selectivity; higher is narrower
		BlockSize     int     `yaml:"block_size"`     // samples per Goertzel block
		MinFrequency  float64 `yaml:"min_frequency"`  // adaptive scan lower bound in Hz
		MaxFrequency  float64 `yaml:"max_frequency"`  // adaptive scan upper bound in Hz
		ScanStep      float64 `yaml:"scan_step"`      // adaptive scan increment in Hz
		AutoTune      bool    `yaml:"auto_tune"`      // follow the tone with FFT pitch detection
	} `yaml:"detection"`

	Decoder struct {
		InitialWPM float64 `yaml:"initial_wpm"` // timing seed before adaptation
		MinWPM     float64 `yaml:"min_wpm"`     // adaptation lower clamp
		MaxWPM     float64 `yaml:"max_wpm"`     // adaptation upper clamp
	} `yaml:"decoder"`

	Transcript struct {
		LineWidth  int `yaml:"line_width"`  // wrap column for committed lines
		MaxEntries int `yaml:"max_entries"` // retained lines, 0 for unbounded
	} `yaml:"transcript"`

	Keyer struct {
		Port     string `yaml:"port"`      // serial port path, empty to disable
		BaudRate int    `yaml:"baud_rate"` // CI-V baud rate (e.g. 115200)
	} `yaml:"keyer"`
}

// DefaultConfig returns settings tuned for a 700 Hz tone at typical
// contest speeds.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Audio.SampleRate = 48000

	cfg.Detection.Mode = ModeBandpass
	cfg.Detection.ToneFrequency = 700.0
	cfg.Detection.Q = 8.0
	cfg.Detection.BlockSize = 256
	cfg.Detection.MinFrequency = 400.0
	cfg.Detection.MaxFrequency = 1000.0
	cfg.Detection.ScanStep = 25.0

	cfg.Decoder.InitialWPM = 20.0
	cfg.Decoder.MinWPM = 5.0
	cfg.Decoder.MaxWPM = 50.0

	cfg.Transcript.LineWidth = 64
	cfg.Transcript.MaxEntries = 500

	cfg.Keyer.BaudRate = 115200

	return cfg
}

// LoadConfig reads a YAML file over the defaults, so a partial file
// only overrides what it names.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return ErrBadSampleRate
	}
	switch c.Detection.Mode {
	case ModeBandpass, ModeGoertzel, ModeAdaptive:
	default:
		return fmt.Errorf("%w: %q", ErrBadMode, c.Detection.Mode)
	}
	if c.Detection.Mode != ModeBandpass && c.Detection.BlockSize <= 0 {
		return ErrBadBlockSize
	}
	if c.Detection.Mode == ModeAdaptive {
		if c.Detection.MinFrequency >= c.Detection.MaxFrequency || c.Detection.ScanStep <= 0 {
			return ErrBadFreqRange
		}
	}
	d := c.Decoder
	if d.MinWPM <= 0 || d.MinWPM > d.InitialWPM || d.InitialWPM > d.MaxWPM {
		return ErrBadWPMRange
	}
	return nil
}

// NewProcessor builds the signal processor the config describes.
func (c *Config) NewProcessor() (SignalProcessor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sampleRate := float64(c.Audio.SampleRate)
	thresholdCfg := dsp.DefaultThresholdConfig()
	switch c.Detection.Mode {
	case ModeBandpass:
		return NewBandpassProcessor(sampleRate, c.Detection.ToneFrequency, c.Detection.Q, thresholdCfg), nil
	case ModeGoertzel:
		return NewGoertzelProcessor(sampleRate, c.Detection.ToneFrequency, c.Detection.BlockSize, thresholdCfg), nil
	default:
		return NewAdaptiveGoertzelProcessor(sampleRate, c.Detection.MinFrequency, c.Detection.MaxFrequency,
			c.Detection.ScanStep, c.Detection.BlockSize, thresholdCfg), nil
	}
}

// PitchConfig maps the detection settings onto pitch detector
// defaults, searching the adaptive scan range.
func (c *Config) PitchConfig() dsp.PitchDetectorConfig {
	pc := dsp.DefaultPitchDetectorConfig()
	pc.SampleRate = float64(c.Audio.SampleRate)
	pc.MinFreq = c.Detection.MinFrequency
	pc.MaxFreq = c.Detection.MaxFrequency
	return pc
}

// DecoderConfig maps the WPM settings onto decoder defaults.
func (c *Config) DecoderConfig() morse.Config {
	dc := morse.DefaultConfig()
	dc.InitialWPM = c.Decoder.InitialWPM
	dc.MinWPM = c.Decoder.MinWPM
	dc.MaxWPM = c.Decoder.MaxWPM
	return dc
}
