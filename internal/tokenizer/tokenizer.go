// Package tokenizer estimates model token counts without a model-specific
// vocabulary. Estimates err on the high side so budgets stay safe.
package tokenizer

import "unicode"

// Roughly four bytes of Latin text per token; ideographic and kana runes
// are usually one token each.
const runesPerLatinToken = 4

// Estimate returns the approximate token count of text.
func Estimate(text string) int {
	wide, narrow := 0, 0
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	return wide + (narrow+runesPerLatinToken-1)/runesPerLatinToken
}

// Clip returns the longest prefix of text whose estimate does not exceed max.
func Clip(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if Estimate(text) <= max {
		return text
	}

	wide, narrow := 0, 0
	for i, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
		if wide+(narrow+runesPerLatinToken-1)/runesPerLatinToken > max {
			return text[:i]
		}
	}
	return text
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303F) || // CJK punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // full-width forms
}
