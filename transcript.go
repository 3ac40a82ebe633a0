package cw

import (
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// TranscriptEntry is one committed line of decoded text. WordSpace
// marks an entry that stands for a bare word gap, recorded when the
// gap falls on a line boundary and would otherwise be lost.
type TranscriptEntry struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	WordSpace bool      `json:"word_space,omitempty"`
}

// Tokens splits the line into words, tagging probable callsigns so a
// UI can highlight them or feed them to a cluster client.
func (e TranscriptEntry) Tokens() []Token {
	fields := strings.Fields(e.Text)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, Token{
			Text:     f,
			Callsign: callsignRe.MatchString(f),
		})
	}
	return tokens
}

// Token is one word of a transcript line.
type Token struct {
	Text     string `json:"text"`
	Callsign bool   `json:"callsign"`
}

// Amateur callsign shape: 1-3 character prefix, separating digit,
// 1-4 letter suffix. Matches W1AW, JA2XYZ, 9A1A; misses portable
// suffixes like W1AW/2, which is acceptable for highlighting.
var callsignRe = regexp.MustCompile(`^[A-Z0-9]{1,3}[0-9][A-Z]{1,4}$`)

var entryID atomic.Uint64

func newTranscriptEntry(text string) TranscriptEntry {
	return TranscriptEntry{
		ID:        entryID.Add(1),
		Timestamp: time.Now(),
		Text:      text,
	}
}

func newWordSpaceEntry() TranscriptEntry {
	return TranscriptEntry{
		ID:        entryID.Add(1),
		Timestamp: time.Now(),
		WordSpace: true,
	}
}

// NoiseQuality bands the normalized noise floor into a coarse rating
// for display.
type NoiseQuality string

const (
	QualityExcellent NoiseQuality = "excellent"
	QualityGood      NoiseQuality = "good"
	QualityFair      NoiseQuality = "fair"
	QualityPoor      NoiseQuality = "poor"
	QualityUnusable  NoiseQuality = "unusable"
)

// RateNoise maps a 0..1 normalized noise floor to a quality band.
func RateNoise(normalizedFloor float64) NoiseQuality {
	switch {
	case normalizedFloor < 0.05:
		return QualityExcellent
	case normalizedFloor < 0.15:
		return QualityGood
	case normalizedFloor < 0.3:
		return QualityFair
	case normalizedFloor < 0.5:
		return QualityPoor
	default:
		return QualityUnusable
	}
}
