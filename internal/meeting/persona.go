package meeting

import (
	"context"
	"fmt"
	"strings"

	"llm-meeting/internal/llm"
)

// PersonaEnhancer rewrites a short persona into a detailed role instruction.
type PersonaEnhancer interface {
	Enhance(ctx context.Context, basePersona, topic, documentContext string) (string, error)
}

// LLMPersonaEnhancer asks a model to design the persona.
type LLMPersonaEnhancer struct {
	inv llm.Invoker
}

// NewLLMPersonaEnhancer returns an enhancer backed by inv.
func NewLLMPersonaEnhancer(inv llm.Invoker) *LLMPersonaEnhancer {
	return &LLMPersonaEnhancer{inv: inv}
}

const personaArchitectSystem = `You are an "AI architect" who designs the role (persona) of an AI assistant so that it performs at its best.
Do not just assign a role: design concrete behavioral guidelines and constraints that draw out depth, breadth and originality of thought.
Write the result so it can be used directly as the instruction (prompt) given to the AI assistant.`

// Enhance returns the enhanced persona, or basePersona when the model
// replies with nothing.
func (e *LLMPersonaEnhancer) Enhance(ctx context.Context, basePersona, topic, documentContext string) (string, error) {
	resp, err := e.inv.Submit(ctx, llm.Request{
		UserMessage:   personaPrompt(basePersona, topic, documentContext),
		SystemMessage: personaArchitectSystem,
		Temperature:   0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enhance persona: %w", err)
	}
	enhanced := strings.TrimSpace(resp.Content)
	if enhanced == "" {
		return basePersona, nil
	}
	return enhanced, nil
}

func personaPrompt(basePersona, topic, documentContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Base persona\n%s\n\n# Main topic of discussion\n%s\n", basePersona, topic)
	if documentContext != "" {
		fmt.Fprintf(&b, "\n# Key points of the reference material\n%s\n", documentContext)
	}
	b.WriteString(`
# Behavioral design for the AI
Using the thinking framework below, design a detailed persona and behavioral instructions for this AI.

1. **Sources of knowledge:**
   * Understand the key points of the reference material deeply and use them as the basis of the discussion.
   * **Most important:** do not stay within the material. Actively integrate broad knowledge of your own (historical background, comparable cases abroad, qualitative and quantitative data, academic findings, cultural context) and present an original point of view. The material is only a starting point.

2. **Stance:**
   * Keep a multi-angle view of the topic, analyzing economic, technical, ethical and social impact.
   * Give opinions from both a short-term and a long-term perspective.

3. **Style of speech:**
   * Make concrete, evidence-backed statements. Do not stop at "I think"; argue persuasively with "because the data shows" or "historically there is the precedent of".
   * Respect other participants' opinions without agreeing too easily, and do not hesitate to offer constructive criticism or alternatives.

Based on the above, write the best possible "enhanced persona" for this AI:
`)
	return b.String()
}
