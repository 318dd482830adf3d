// Package text splits long scripts into chunks that fit a speech provider's
// input limit.
package text

import "unicode"

// MinSentenceFraction is the earliest position in a window, as a fraction of
// its length, at which a sentence terminator is accepted as a split point.
// Terminators closer to the start would produce tiny chunks.
const MinSentenceFraction = 0.3

// Segment splits text into chunks of at most maxLen characters, preferring
// sentence boundaries, then whitespace, then a hard cut. Lengths are counted
// in runes. Chunks are trimmed of surrounding whitespace; apart from that
// whitespace, concatenating the chunks reproduces text.
//
// Text that already fits is returned unchanged as a single chunk. Empty text
// yields no chunks. A non-positive maxLen disables splitting.
func Segment(text string, maxLen int) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return []string{text}
	}

	var chunks []string

	remaining := runes
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = appendChunk(chunks, remaining)

			break
		}

		splitAt := splitPoint(remaining[:maxLen])
		chunks = appendChunk(chunks, remaining[:splitAt])
		remaining = trimSpace(remaining[splitAt:])
	}

	return chunks
}

// splitPoint returns the index the window is cut at. It is always > 0, which
// guarantees the segmenter makes progress on every iteration.
func splitPoint(window []rune) int {
	sentenceEnd := lastSentenceEnd(window)
	if sentenceEnd >= 0 && float64(sentenceEnd) >= float64(len(window))*MinSentenceFraction {
		return sentenceEnd + 1
	}

	if space := lastSpace(window); space > 0 {
		return space
	}

	return len(window)
}

// lastSentenceEnd finds the rightmost '.', '!' or '?' that is followed by a
// space or newline inside the window.
func lastSentenceEnd(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if isTerminator(window[i]) && (window[i+1] == ' ' || window[i+1] == '\n') {
			return i
		}
	}

	return -1
}

func lastSpace(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}

	return -1
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func appendChunk(chunks []string, chunk []rune) []string {
	trimmed := trimSpace(chunk)
	if len(trimmed) == 0 {
		return chunks
	}

	return append(chunks, string(trimmed))
}

func trimSpace(runes []rune) []rune {
	start := 0
	for start < len(runes) && unicode.IsSpace(runes[start]) {
		start++
	}

	end := len(runes)
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}

	return runes[start:end]
}
