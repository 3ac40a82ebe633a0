// Package morse converts key-down/key-up timing events into decoded
// text, continuously re-estimating the sender's speed.
package morse

// CodeToChar maps dot-dash patterns to their characters.
var CodeToChar = map[string]string{
	// letters
	".-": "A", "-...": "B", "-.-.": "C", "-..": "D", ".": "E",
	"..-.": "F", "--.": "G", "....": "H", "..": "I", ".---": "J",
	"-.-": "K", ".-..": "L", "--": "M", "-.": "N", "---": "O",
	".--.": "P", "--.-": "Q", ".-.": "R", "...": "S", "-": "T",
	"..-": "U", "...-": "V", ".--": "W", "-..-": "X", "-.--": "Y",
	"--..": "Z",
	// digits
	".----": "1", "..---": "2", "...--": "3", "....-": "4", ".....": "5",
	"-....": "6", "--...": "7", "---..": "8", "----.": "9", "-----": "0",
	// punctuation
	".-.-.-":  ".",
	"--..--":  ",",
	"..--..":  "?",
	"-..-.":   "/",
	"-...-":   "=",
	".-.-.":   "+",
	".--.-.":  "@",
	"-.--.":   "(",
	"-.--.-":  ")",
	"---...":  ":",
	"-.-.-.":  ";",
	".----.":  "'",
	".-..-.":  "\"",
	"-....-":  "-",
	"..--.-":  "_",
	"...-..-": "$",
	"-.-.--":  "!",
	// prosigns
	"...-.-":  "<SK>",
	".-...":   "<AS>",
	"...-.":   "<VE>",
	"-...-.-": "<BK>",
}

// CharToCode is the reverse of CodeToChar, used for keying and for
// round-trip tests. Where several patterns decode to the same text the
// shorter pattern wins, which keeps the canonical letter/digit codes.
var CharToCode = func() map[string]string {
	m := make(map[string]string, len(CodeToChar))
	for code, char := range CodeToChar {
		if prev, ok := m[char]; ok && len(prev) <= len(code) {
			continue
		}
		m[char] = code
	}
	return m
}()
