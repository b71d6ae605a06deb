// Package language keeps model output in the meeting's target language: it
// measures how much of a text is written in the target script and, when too
// little is, asks a model to rewrite it.
package language

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Profile describes one supported target language.
type Profile struct {
	Code string
	// Name is the English language name used inside prompts.
	Name string
	// Script lists the rune ranges that count as target-language text.
	Script []*unicode.RangeTable
	// UnresolvedHeading is the localized title of the final report's
	// unresolved-issues section.
	UnresolvedHeading string
}

var japaneseScript = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3005, Hi: 0x3005, Stride: 1}, // 々
		{Lo: 0x3040, Hi: 0x309F, Stride: 1}, // hiragana
		{Lo: 0x30A0, Hi: 0x30FF, Stride: 1}, // katakana
		{Lo: 0x4E00, Hi: 0x9FFF, Stride: 1}, // CJK unified ideographs
	},
}

var profiles = map[string]Profile{
	"ja": {
		Code:              "ja",
		Name:              "Japanese",
		Script:            []*unicode.RangeTable{japaneseScript},
		UnresolvedHeading: "未解決の課題",
	},
	"zh": {
		Code:              "zh",
		Name:              "Chinese",
		Script:            []*unicode.RangeTable{unicode.Han},
		UnresolvedHeading: "未解决的问题",
	},
	"ko": {
		Code:              "ko",
		Name:              "Korean",
		Script:            []*unicode.RangeTable{unicode.Hangul, unicode.Han},
		UnresolvedHeading: "미해결 과제",
	},
}

// Lookup returns the profile for a language code such as "ja".
func Lookup(code string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Profile{}, fmt.Errorf("unsupported target language %q (supported: %s)", code, strings.Join(Codes(), ", "))
	}
	return p, nil
}

// Codes lists the supported language codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(profiles))
	for c := range profiles {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	return codes
}

// InScript reports whether r belongs to the profile's script.
func (p Profile) InScript(r rune) bool {
	return unicode.IsOneOf(p.Script, r)
}

// DefaultInstruction is the rewrite request used when the caller passes none.
func (p Profile) DefaultInstruction() string {
	return fmt.Sprintf("Fix anything unnatural in the following text and rewrite it as completely natural, fluent %s. Do not keep any element of other languages.", p.Name)
}
