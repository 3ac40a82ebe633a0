package morse

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Element classifies a completed tone or silence duration.
type Element int

const (
	Dit Element = iota
	Dah
	ElementGap
	CharGap
	WordGap
)

func (e Element) String() string {
	switch e {
	case Dit:
		return "dit"
	case Dah:
		return "dah"
	case ElementGap:
		return "element-gap"
	case CharGap:
		return "char-gap"
	case WordGap:
		return "word-gap"
	}
	return "unknown"
}

// OutputKind tags a decoder emission.
type OutputKind int

const (
	// OutputCharacter carries decoded text, or "[pattern]" when the
	// accumulated pattern is not in the code table. Unknown patterns
	// are never dropped: the operator should see uninterpretable copy.
	OutputCharacter OutputKind = iota
	// OutputWordSpace marks an inter-word gap.
	OutputWordSpace
	// OutputElement reports a classified element for debugging.
	OutputElement
)

// Output is one decoder emission.
type Output struct {
	Kind    OutputKind
	Text    string
	Element Element
}

// Config tunes the timing decoder.
type Config struct {
	// InitialWPM is the starting speed guess before any elements have
	// been measured. 20 is a common band speed.
	InitialWPM float64
	// MinWPM/MaxWPM clamp the adaptive unit duration.
	MinWPM float64
	MaxWPM float64
	// Tolerance widens the 2-unit dit/dah boundary into a band; inside
	// the band the duration is assigned to whichever of 1 or 3 units
	// is numerically closer.
	Tolerance float64
	// SmoothingAlpha blends the median implied unit into the estimate.
	SmoothingAlpha float64
	// UnitWindow is how many recent implied units feed the median.
	UnitWindow int
}

// DefaultConfig returns the standard decoder tuning.
func DefaultConfig() Config {
	return Config{
		InitialWPM:     20,
		MinWPM:         5,
		MaxWPM:         50,
		Tolerance:      0.3,
		SmoothingAlpha: 0.3,
		UnitWindow:     10,
	}
}

// Decoder turns key-state transitions into Morse elements and decoded
// characters. It is a single-writer component: the orchestrator
// serializes calls from the audio path and the timeout ticker, so the
// decoder itself holds no lock.
//
// Timing follows the PARIS standard: unit seconds = 1.2 / WPM, a dah is
// 3 units, gaps inside a character are 1 unit, between characters 3,
// between words 7.
type Decoder struct {
	cfg Config

	unit    float64 // seconds per dit
	pattern string

	lastKeyDown bool
	haveEvent   bool
	lastChange  float64
	lastElement float64

	// ring of recent implied unit durations driving re-estimation
	units     []float64
	unitIndex int
	unitFull  bool
}

// NewDecoder creates a decoder with the configured initial speed guess.
func NewDecoder(cfg Config) *Decoder {
	if cfg.UnitWindow < 3 {
		cfg.UnitWindow = 3
	}
	d := &Decoder{
		cfg:   cfg,
		units: make([]float64, cfg.UnitWindow),
	}
	d.unit = d.clampUnit(1.2 / cfg.InitialWPM)
	return d
}

// WPM returns the current estimated speed.
func (d *Decoder) WPM() float64 { return 1.2 / d.unit }

// UnitDuration returns the current dit duration in seconds.
func (d *Decoder) UnitDuration() float64 { return d.unit }

// SetWPM overrides the estimated speed. Adaptive tracking resumes as
// new elements arrive.
func (d *Decoder) SetWPM(wpm float64) {
	d.unit = d.clampUnit(1.2 / wpm)
	d.clearUnits()
}

// Pattern returns the in-progress dot-dash pattern.
func (d *Decoder) Pattern() string { return d.pattern }

// ProcessKeyEvent consumes one key-state transition. A down→up edge
// classifies the finished tone, an up→down edge classifies the finished
// silence. Timestamps are seconds on the audio clock and must be
// monotonic.
func (d *Decoder) ProcessKeyEvent(keyDown bool, timestamp float64) []Output {
	if !d.haveEvent {
		d.haveEvent = true
		d.lastKeyDown = keyDown
		d.lastChange = timestamp
		return nil
	}
	if keyDown == d.lastKeyDown {
		// Duplicate states carry no duration information.
		return nil
	}

	duration := timestamp - d.lastChange
	d.lastKeyDown = keyDown
	d.lastChange = timestamp

	if keyDown {
		return d.finishSilence(duration)
	}
	return d.finishTone(duration, timestamp)
}

// finishTone classifies a completed tone against the dit/dah boundary
// at 2 units, with a tolerance band resolved by numeric proximity.
func (d *Decoder) finishTone(duration, timestamp float64) []Output {
	boundary := 2 * d.unit
	low := boundary * (1 - d.cfg.Tolerance)
	high := boundary * (1 + d.cfg.Tolerance)

	var elem Element
	switch {
	case duration < low:
		elem = Dit
	case duration > high:
		elem = Dah
	case duration-d.unit <= 3*d.unit-duration:
		elem = Dit
	default:
		elem = Dah
	}

	if elem == Dit {
		d.pattern += "."
		d.observeUnit(duration)
	} else {
		d.pattern += "-"
		d.observeUnit(duration / 3)
	}
	d.lastElement = timestamp

	return []Output{{Kind: OutputElement, Element: elem}}
}

// finishSilence classifies a completed gap: under 2 units it separates
// elements within a character, 2-5 units ends the character, 5 or more
// ends the word.
func (d *Decoder) finishSilence(duration float64) []Output {
	units := duration / d.unit
	switch {
	case units < 2:
		return []Output{{Kind: OutputElement, Element: ElementGap}}
	case units < 5:
		out := []Output{{Kind: OutputElement, Element: CharGap}}
		return append(out, d.flush()...)
	default:
		out := []Output{{Kind: OutputElement, Element: WordGap}}
		out = append(out, d.flush()...)
		return append(out, Output{Kind: OutputWordSpace})
	}
}

// CheckTimeout force-flushes the in-progress pattern once silence since
// the last element exceeds 5 units. The orchestrator calls this
// periodically so a sender who stops mid-character still produces copy.
func (d *Decoder) CheckTimeout(now float64) []Output {
	if d.pattern == "" {
		return nil
	}
	if now-d.lastElement <= 5*d.unit {
		return nil
	}
	return d.flush()
}

func (d *Decoder) flush() []Output {
	if d.pattern == "" {
		return nil
	}
	pattern := d.pattern
	d.pattern = ""

	text, ok := CodeToChar[pattern]
	if !ok {
		text = "[" + pattern + "]"
	}
	return []Output{{Kind: OutputCharacter, Text: text}}
}

// observeUnit feeds one implied unit duration into the speed estimate:
// median of the recent window (robust to a single stretched element),
// blended with exponential smoothing, clamped to the configured WPM
// range.
func (d *Decoder) observeUnit(implied float64) {
	d.units[d.unitIndex] = implied
	d.unitIndex = (d.unitIndex + 1) % len(d.units)
	if d.unitIndex == 0 {
		d.unitFull = true
	}

	n := d.unitIndex
	if d.unitFull {
		n = len(d.units)
	}
	if n < 3 {
		return
	}

	sorted := make([]float64, n)
	copy(sorted, d.units[:n])
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	d.unit = d.clampUnit(d.cfg.SmoothingAlpha*median + (1-d.cfg.SmoothingAlpha)*d.unit)
}

func (d *Decoder) clampUnit(unit float64) float64 {
	if min := 1.2 / d.cfg.MaxWPM; unit < min {
		return min
	}
	if max := 1.2 / d.cfg.MinWPM; unit > max {
		return max
	}
	return unit
}

func (d *Decoder) clearUnits() {
	d.unitIndex = 0
	d.unitFull = false
}

// Reset clears the in-progress pattern and timers but keeps the
// estimated speed, so decoding can resume mid-session.
func (d *Decoder) Reset() {
	d.pattern = ""
	d.haveEvent = false
	d.lastKeyDown = false
	d.lastChange = 0
	d.lastElement = 0
}

// FullReset additionally returns the speed estimate to the initial
// guess.
func (d *Decoder) FullReset() {
	d.Reset()
	d.unit = d.clampUnit(1.2 / d.cfg.InitialWPM)
	d.clearUnits()
}
