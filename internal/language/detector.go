package language

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"llm-meeting/config"
)

// Thresholds tune the conformance heuristic. The defaults were hand-tuned
// for Japanese.
type Thresholds struct {
	// ForeignRatio is the ASCII share above which a text is suspicious.
	ForeignRatio float64
	// MinTargetRatio is the target-script share below which a longer text
	// is rewritten.
	MinTargetRatio float64
	// ShortTextRunes is the length under which a text is never rewritten.
	ShortTextRunes int
	// RatioCheckRunes is the length a text must exceed before the
	// MinTargetRatio rule applies.
	RatioCheckRunes int
}

// ThresholdsFromConfig reads the thresholds from cfg.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		ForeignRatio:    cfg.ForeignRatio,
		MinTargetRatio:  cfg.MinTargetRatio,
		ShortTextRunes:  cfg.ShortTextRunes,
		RatioCheckRunes: cfg.RatioCheckRunes,
	}
}

// Composition counts the runes of a text by class.
type Composition struct {
	Total  int
	ASCII  int
	Target int
}

// ASCIIRatio returns ASCII/Total, or 0 for empty text.
func (c Composition) ASCIIRatio() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.ASCII) / float64(c.Total)
}

// TargetRatio returns Target/Total, or 0 for empty text.
func (c Composition) TargetRatio() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Target) / float64(c.Total)
}

// Measure classifies every rune of text. Full-width Latin and half-width
// katakana are folded to their canonical width first, so "ＡＢＣ" counts as
// ASCII and "ｶﾅ" as katakana.
func Measure(p Profile, text string) Composition {
	folded := width.Fold.String(text)
	c := Composition{Total: utf8.RuneCountInString(folded)}
	for _, r := range folded {
		switch {
		case r >= 0x20 && r <= 0x7E:
			c.ASCII++
		case p.InScript(r):
			c.Target++
		}
	}
	return c
}

// Reason explains why a text was flagged.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonMostlyASCII  Reason = "high ASCII share with little target script"
	ReasonLowTargetUse Reason = "target script share below minimum"
)

// Detect decides whether text needs a rewrite into the profile's language.
// Blank and short texts are never flagged.
func Detect(p Profile, th Thresholds, text string) Reason {
	if strings.TrimSpace(text) == "" {
		return ReasonNone
	}
	c := Measure(p, text)
	if c.Total < th.ShortTextRunes {
		return ReasonNone
	}
	total := float64(c.Total)
	if c.ASCIIRatio() > th.ForeignRatio && float64(c.Target) < total*(1-th.ForeignRatio)*0.8 {
		return ReasonMostlyASCII
	}
	if c.TargetRatio() < th.MinTargetRatio && c.Total > th.RatioCheckRunes {
		return ReasonLowTargetUse
	}
	return ReasonNone
}
