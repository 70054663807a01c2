package utils

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText breaks text into chunks of at most chunkSize runes, trying paragraph, line and word
// boundaries in that order, and carries up to overlap runes of the previous chunk forward.
func SplitText(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" || chunkSize <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return splitRecursive(text, defaultSeparators, chunkSize, overlap)
}

func splitRecursive(text string, separators []string, chunkSize, overlap int) []string {
	if utf8.RuneCountInString(text) <= chunkSize {
		return []string{text}
	}

	sep := separators[len(separators)-1]
	rest := separators[len(separators)-1:]
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text, chunkSize)
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks []string
	var window []string
	windowLen := 0
	pending := false
	sepLen := utf8.RuneCountInString(sep)

	dropFirst := func() {
		windowLen -= utf8.RuneCountInString(window[0])
		if len(window) > 1 {
			windowLen -= sepLen
		}
		window = window[1:]
	}

	flush := func() {
		if pending {
			if chunk := strings.TrimSpace(strings.Join(window, sep)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			pending = false
		}
		// keep a tail of the window as overlap for the next chunk
		for windowLen > overlap && len(window) > 0 {
			dropFirst()
		}
	}

	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		pieceLen := utf8.RuneCountInString(piece)
		if pieceLen > chunkSize {
			flush()
			window, windowLen = nil, 0
			if len(rest) == 0 {
				chunks = append(chunks, splitRunes(piece, chunkSize)...)
			} else {
				chunks = append(chunks, splitRecursive(piece, rest, chunkSize, overlap)...)
			}
			continue
		}

		if len(window) > 0 && windowLen+sepLen+pieceLen > chunkSize {
			flush()
			for len(window) > 0 && windowLen+sepLen+pieceLen > chunkSize {
				dropFirst()
			}
		}
		if len(window) > 0 {
			windowLen += sepLen
		}
		window = append(window, piece)
		windowLen += pieceLen
		pending = true
	}
	flush()
	return chunks
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// CollapseWhitespace turns any run of whitespace into a single space.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
