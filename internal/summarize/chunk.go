package summarize

import "unicode"

// SplitText cuts text into chunks of at most maxChunk runes. A chunk ends at
// the last sentence terminator or newline inside its window when there is
// one, otherwise it is cut hard. Each chunk after the first repeats the last
// overlap runes of its predecessor.
func SplitText(text string, maxChunk, overlap int) []string {
	runes := []rune(text)
	if maxChunk <= 0 || len(runes) <= maxChunk {
		return []string{text}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChunk {
		overlap = maxChunk / 2
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + maxChunk
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		var next int
		if split := lastBoundary(runes, start, end); split > start {
			chunks = append(chunks, string(runes[start:split+1]))
			next = split + 1 - overlap
			if next <= start {
				next = split + 1
			}
		} else {
			chunks = append(chunks, string(runes[start:end]))
			next = end - overlap
		}
		start = max(next, 0)
	}
	return chunks
}

// lastBoundary returns the index of the last boundary rune in runes[start:end],
// or -1.
func lastBoundary(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		switch r := runes[i]; r {
		case '。', '！', '？', '\n':
			return i
		case '.', '!', '?':
			// Latin terminators count only before whitespace, so "3.14" stays whole.
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				return i
			}
		}
	}
	return -1
}
