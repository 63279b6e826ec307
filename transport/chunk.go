package transport

import "unicode/utf16"

// MaxMessageLength is the longest message Telegram accepts, in UTF-16 code
// units.
const MaxMessageLength = 4096

// SplitMessage cuts text into consecutive chunks of at most limit UTF-16
// code units, which is how Telegram measures message length. Chunks never
// split a rune, so a rune wider than limit gets a chunk of its own.
// Concatenating the chunks yields text again. Empty text yields
// no chunks. A non-positive limit means MaxMessageLength.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if text == "" {
		return nil
	}

	var chunks []string
	start, units := 0, 0
	for i, r := range text {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1 // invalid UTF-8 is sent as U+FFFD
		}
		if units+n > limit && units > 0 {
			chunks = append(chunks, text[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(chunks, text[start:])
}

