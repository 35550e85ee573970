package index

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 20
)

// splitText cuts text into windows of at most size runes, consecutive windows
// sharing overlap runes. A window ends at the last whitespace in its second
// half when there is one so words are not split.
func splitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// leadingTokens returns the first n whitespace-separated tokens joined by spaces
func leadingTokens(text string, n int) string {
	tokens := strings.Fields(text)
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return strings.Join(tokens, " ")
}
