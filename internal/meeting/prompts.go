package meeting

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"llm-meeting/internal/language"
)

const (
	recentPointsCount = 3
	recentPointsWidth = 60
)

func speakerPersona(persona, lang string) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = "Meeting participant"
	}
	return fmt.Sprintf("%s (%s speaker)", persona, lang)
}

func moderatorPersona(lang string) string {
	return fmt.Sprintf("Meeting moderator and facilitator, author of the final summary (all communication in %s)", lang)
}

// initialContext frames the meeting for every participant's system prompt.
func initialContext(lang, topic, documentSummary, rag, carryOver string) string {
	parts := []string{
		"This is an online meeting in which several AI participants take part.",
		fmt.Sprintf("**Important: the whole meeting is held in %s and every participant speaks %s.**", lang, lang),
		"The main topic of the meeting is:",
		fmt.Sprintf("\"%s\"", topic),
	}
	if documentSummary != "" {
		parts = append(parts,
			fmt.Sprintf("\nA summary of the reference material follows (also in %s):", lang),
			"--- DOCUMENT SUMMARY START ---",
			documentSummary,
			"--- DOCUMENT SUMMARY END ---",
		)
	}
	if rag != "" {
		parts = append(parts,
			"\nRelevant passages extracted from the uploaded material:",
			"--- RETRIEVED CONTEXT START ---",
			rag,
			"--- RETRIEVED CONTEXT END ---",
		)
	}
	if carryOver != "" {
		parts = append(parts,
			"\nItems carried over from the previous meeting:",
			carryOver,
		)
	}
	parts = append(parts, fmt.Sprintf(
		"\nEach participant should hold a constructive exchange of views in %s, grounded in their own expertise and assigned persona.", lang))
	return strings.Join(parts, "\n")
}

func systemPrompt(lang, context, rag, persona string) string {
	parts := []string{context}
	if rag != "" {
		parts = append(parts, "Excerpt from the related material:\n"+rag)
	}
	parts = append(parts,
		fmt.Sprintf("You take part in this meeting in the role of \"%s\".", persona),
		"Building on the information provided and the discussion so far, state your opinion and analysis.",
		fmt.Sprintf("**Most important: every reply you give must be written in perfectly natural, fluent %s.**", lang),
		fmt.Sprintf("**If words, phrases or constructions from any other language slip in, rewrite them into proper %s before giving your final reply.**", lang),
		fmt.Sprintf("**The output must be 100%% %s. Never include elements of any other language.**", lang),
	)
	return strings.Join(parts, "\n\n")
}

func statementPrompt(lang, persona string, turn int, recent string) string {
	parts := []string{
		fmt.Sprintf("This is the current state of the meeting. You speak as \"%s\", and this is your opportunity number %d.", persona, turn),
		"Considering the whole discussion so far (see the conversation history if provided), the topic and your role, give your opinion, analysis or a concrete proposal.",
		"Do not simply repeat other participants. Focus on new perspectives, deeper insight or concrete solutions.",
		"Keep the statement concise and logical, about 300 to 500 characters.",
		fmt.Sprintf("**Again: your statement must be entirely in flawless %s.**", lang),
	}
	if recent != "" {
		parts = slices.Insert(parts, 1, fmt.Sprintf("\nKey points from the latest discussion:\n%s\n", recent))
	}
	return strings.Join(parts, "\n")
}

func statementCorrection(lang string) string {
	return fmt.Sprintf("Rewrite the following meeting statement into completely natural, fluent %s. Keep the intent and nuance of the original as far as possible and do not keep any element of another language.", lang)
}

func recapPrompt(lang string, round int) string {
	return fmt.Sprintf("Summarize the key points of the discussion so far in %s in about 150 characters.\nThis is the summary at the end of round %d.", lang, round)
}

const recapSystem = "You are the moderator of the meeting. Organize the discussion so far concisely and prepare for the next round."

func recapCorrection(lang string) string {
	return fmt.Sprintf("Rewrite the following summary into natural, fluent %s. Do not include any other language.", lang)
}

func documentCorrection(lang string) string {
	return fmt.Sprintf("Rewrite the following document summary into completely natural, fluent %s. Do not keep any element of another language.", lang)
}

func finalSystemPrompt(lang string) string {
	return strings.Join([]string{
		"You are a seasoned meeting facilitator who specializes in executive summaries.",
		"Carefully analyze the meeting topic, the reference material (if any) and the whole discussion, then write an objective, comprehensive final summary in a professional tone that follows the requested structure.",
		fmt.Sprintf("**Most important: the final summary must be written in perfectly natural, fluent %s.**", lang),
		fmt.Sprintf("**The output must be 100%% %s. Never include elements of any other language.**", lang),
		"**Never stop the summary midway. Always finish it and cover every requested section.**",
	}, "\n\n")
}

func finalReportPrompt(p language.Profile, topic, documentSummary, digest string) string {
	lang := p.Name
	parts := []string{
		"## Instructions for the final meeting summary\n",
		fmt.Sprintf("Using the information below, write a comprehensive, actionable final summary of this meeting in **flawless %s**.\n", lang),
		"### 1. Main topic or question of the meeting\n",
		fmt.Sprintf("\"%s\"\n", topic),
	}
	if documentSummary != "" {
		parts = append(parts,
			"### 2. Key points of the reference material shared before the meeting\n",
			"--- DOCUMENT SUMMARY START ---",
			documentSummary,
			"--- DOCUMENT SUMMARY END ---\n",
		)
	}
	if strings.TrimSpace(digest) == "" {
		digest = "(no notable statements were made)"
	}
	parts = append(parts,
		"### 3. Main discussion (excerpt from the statement log)\n",
		"--- STATEMENT LOG START ---",
		digest,
		"--- STATEMENT LOG END ---\n",
		fmt.Sprintf("### 4. Sections the final summary must contain (all in %s)\n", lang),
		"Write each section concretely and clearly so the outcome of the meeting is obvious. Use level-2 Markdown headings numbered 1 to 5, in this order:\n",
		"  - **1. Main issues and conclusions reached:** the central topics and the conclusions reached on them (agreement, alignment or disagreement, direction).",
		"  - **2. Notable opinions and proposals:** especially important, innovative or noteworthy opinions, ideas and proposals raised during the meeting.",
		"  - **3. Formal decisions (if any):** anything officially decided as a result of the meeting.",
		fmt.Sprintf("  - **4. Unresolved issues and items for further study:** points the discussion did not settle and matters that need more information or study. The heading of this section must be exactly `## 4. %s`.", p.UnresolvedHeading),
		"  - **5. Recommended action items:** concrete next actions or steps (who does what, by when).",
		fmt.Sprintf("\n### 5. Style and quality (all in %s)\n", lang),
		fmt.Sprintf("- Keep a professional, objective tone and write in **completely natural %s.**", lang),
		"- Use bullet points, bold text and the section headings above to structure the information.",
		"- Aim for roughly 800 to 2000 characters overall, but put quality and coverage first.",
		fmt.Sprintf("- **Most important: the final summary must be 100%% %s. Fix any word, phrase or construction from another language before answering.**", lang),
		"- **Strict rule: do not stop midway. End with content that reads clearly as the conclusion of the meeting, covering every section.**",
	)
	return strings.Join(parts, "\n")
}

func finalCorrection(lang string) string {
	return fmt.Sprintf("Rewrite the following draft of the final meeting summary into completely natural, fluent %s. Keep the structure and intent of the original as far as possible and do not keep any element of another language. If the content is cut off, complete it naturally from context.", lang)
}

// ExtractUnresolved returns the body of the "## 4. <heading>" section of a
// final report, or "" when the section is missing.
func ExtractUnresolved(report, heading string) string {
	re := regexp.MustCompile(`(?s)## 4\.\s*` + regexp.QuoteMeta(heading) + `[^\n]*\n(.*?)(?:\n## |\z)`)
	m := re.FindStringSubmatch(report)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func noStatementsReport() string {
	return "(No final summary was generated because no valid statements were made during the meeting.)"
}

func failedReport(reason string) string {
	return fmt.Sprintf("(Final summary generation failed: %s. See logs for details.)", reason)
}
