package transcript

import (
	"fmt"
	"strings"

	"llm-meeting/internal/llm"
	"llm-meeting/internal/tokenizer"
)

// OmittedMarker replaces the oldest entries dropped from a digest.
const OmittedMarker = "... (earlier conversation omitted to fit the summary token budget) ..."

// BuildHistory returns at most limit of the most recent valid entries as
// user turns, oldest first. Each turn names its speaker, persona and round
// so backends can tell the voices apart.
func BuildHistory(entries []Entry, limit int) []llm.Message {
	if limit <= 0 {
		return []llm.Message{}
	}

	valid := Valid(entries)
	start := len(valid) - limit
	if start < 0 {
		start = 0
	}

	history := make([]llm.Message, 0, len(valid)-start)
	for _, e := range valid[start:] {
		history = append(history, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("[Speaker: %s (role: %s), round %d statement]: %s", e.Speaker, e.Persona, e.Round, e.Content),
		})
	}
	return history
}

// RecentPoints lists short excerpts of the last count entries, skipping
// failures. Each excerpt keeps at most width runes.
func RecentPoints(entries []Entry, count, width int) string {
	if count <= 0 || len(entries) == 0 {
		return ""
	}
	start := len(entries) - count
	if start < 0 {
		start = 0
	}

	var points []string
	for _, e := range entries[start:] {
		if e.Failed {
			continue
		}
		excerpt := []rune(e.Content)
		if len(excerpt) > width {
			excerpt = excerpt[:width]
		}
		text := strings.ReplaceAll(strings.TrimSpace(string(excerpt)), "\n", " ")
		points = append(points, fmt.Sprintf("- %s (role: %s) said: \"%s...\"", e.Speaker, e.Persona, text))
	}
	return strings.Join(points, "\n")
}

// BuildDigest renders the valid transcript for final-report synthesis.
// It keeps the newest entries whose estimated tokens fit maxTokens and puts
// OmittedMarker in front when older ones were dropped. The estimate of the
// result never exceeds maxTokens. A non-positive maxTokens keeps everything.
func BuildDigest(entries []Entry, maxTokens int) string {
	valid := Valid(entries)
	if len(valid) == 0 {
		return ""
	}

	marker := OmittedMarker + "\n\n"
	budget := maxTokens
	if maxTokens > 0 {
		if cost := tokenizer.Estimate(marker); cost <= maxTokens {
			budget = maxTokens - cost
		} else {
			marker = ""
		}
	}

	var kept []string
	used := 0
	truncated := false
	for i := len(valid) - 1; i >= 0; i-- {
		piece := renderDigestEntry(valid[i]) + "\n"
		cost := tokenizer.Estimate(piece)
		if maxTokens > 0 && used+cost > budget {
			truncated = true
			if len(kept) == 0 {
				if clipped := tokenizer.Clip(piece, budget); clipped != "" {
					kept = append(kept, clipped)
				}
			}
			break
		}
		kept = append(kept, piece)
		used += cost
	}

	var b strings.Builder
	if truncated {
		b.WriteString(marker)
	}
	for i := len(kept) - 1; i >= 0; i-- {
		b.WriteString(kept[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDigestEntry(e Entry) string {
	content := strings.ReplaceAll(e.Content, "\n", "  \n")
	return fmt.Sprintf("- **Round %d, %s (role: %s):**\n  %s\n", e.Round, e.Speaker, e.Persona, content)
}
