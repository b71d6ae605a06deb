package language

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"llm-meeting/internal/llm"
	"llm-meeting/internal/logging"
	"llm-meeting/internal/tokenizer"
)

// Corrector rewrites non-conforming output into the target language.
type Corrector struct {
	profile    Profile
	thresholds Thresholds
	logger     *zap.Logger
}

// NewCorrector returns a corrector for profile. A nil logger disables logging.
func NewCorrector(profile Profile, th Thresholds, logger *zap.Logger) *Corrector {
	return &Corrector{profile: profile, thresholds: th, logger: logging.OrNop(logger)}
}

// Profile returns the target language profile.
func (c *Corrector) Profile() Profile {
	return c.profile
}

// Ensure returns text in the target language and the tokens the rewrite
// cost. Text that passes detection is returned as is. A failed or empty
// rewrite falls back to the original text at zero cost; Ensure never fails.
func (c *Corrector) Ensure(ctx context.Context, text string, inv llm.Invoker, instruction string) (string, int) {
	reason := Detect(c.profile, c.thresholds, text)
	if reason == ReasonNone {
		return text, 0
	}
	if instruction == "" {
		instruction = c.profile.DefaultInstruction()
	}

	excerpt := tokenizer.Clip(text, 25)
	c.logger.Warn("output not in target language, requesting rewrite",
		zap.String("language", c.profile.Code),
		zap.String("reason", string(reason)),
		zap.String("excerpt", excerpt))

	resp, err := inv.Submit(ctx, llm.Request{
		UserMessage: fmt.Sprintf("%s\n\nText to correct:\n---\n%s\n---\n\nReturn only the corrected %s text.",
			instruction, text, c.profile.Name),
		SystemMessage: fmt.Sprintf("You are an expert translator and proofreader. Turn the given text into flawless %s.", c.profile.Name),
	})
	if err != nil {
		c.logger.Error("language rewrite failed, keeping original text", zap.Error(err))
		return text, 0
	}
	corrected := strings.TrimSpace(resp.Content)
	if corrected == "" {
		c.logger.Error("language rewrite returned empty content, keeping original text")
		return text, 0
	}

	c.logger.Info("language rewrite applied", zap.Int("tokens", resp.TokensUsed))
	return corrected, resp.TokensUsed
}
