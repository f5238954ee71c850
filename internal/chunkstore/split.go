package chunkstore

import "strings"

// DefaultChunkSize is the window size in characters used when none is configured.
const DefaultChunkSize = 512

// SplitText splits text into consecutive windows of chunkSize characters
// (runes, so multi-byte text is never cut mid-character). There is no
// overlap and nothing is discarded; the last window may be shorter.
// Boundaries ignore words and sentences on purpose: the split is a pure
// function of text and chunkSize, so re-splitting the same input always
// yields the same windows.
func SplitText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	windows := make([]string, 0, (len(runes)+chunkSize-1)/chunkSize)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[i:end]))
	}
	return windows
}

// SplitSegments concatenates extracted text segments (pages) with newlines
// and splits the result with SplitText.
func SplitSegments(segments []string, chunkSize int) []string {
	return SplitText(strings.Join(segments, "\n"), chunkSize)
}
