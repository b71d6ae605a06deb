package meeting

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-meeting/internal/language"
	"llm-meeting/internal/llm"
)

func TestExtractUnresolved(t *testing.T) {
	const heading = "未解決の課題"
	tests := []struct {
		name   string
		report string
		want   string
	}{
		{"middle section", finalReport("- 予算の確保\n- 人員計画"), "- 予算の確保\n- 人員計画"},
		{"last section", "## 1. 結論\n合意\n\n## 4. 未解決の課題\n- 予算\n", "- 予算"},
		{"trailing heading text", "## 4. 未解決の課題と検討事項\n- 予算\n## 5. 次\n", "- 予算"},
		{"missing section", "## 1. 結論\n合意しました。", ""},
		{"other heading", "## 4. Open issues\n- budget\n", ""},
		{"empty section", "## 4. 未解決の課題\n\n## 5. 次\n- 調査", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractUnresolved(tt.report, heading))
		})
	}
}

func TestExtractUnresolvedOtherLanguages(t *testing.T) {
	for _, code := range language.Codes() {
		p, err := language.Lookup(code)
		require.NoError(t, err)
		report := "## 1. x\ny\n\n## 4. " + p.UnresolvedHeading + "\n- item\n\n## 5. z\n"
		assert.Equal(t, "- item", ExtractUnresolved(report, p.UnresolvedHeading), code)
	}
}

func TestFinalReportPromptRequiresHeading(t *testing.T) {
	p, err := language.Lookup("ko")
	require.NoError(t, err)

	prompt := finalReportPrompt(p, "주제", "", "- **Round 1, a:**\n  의견")
	assert.Contains(t, prompt, "`## 4. 미해결 과제`")
	assert.Contains(t, prompt, "flawless Korean")
	assert.NotContains(t, prompt, "DOCUMENT SUMMARY")

	withDoc := finalReportPrompt(p, "주제", "요약", "")
	assert.Contains(t, withDoc, "--- DOCUMENT SUMMARY START ---\n요약")
	assert.Contains(t, withDoc, "(no notable statements were made)")
}

func TestStatementPromptRecentPoints(t *testing.T) {
	plain := statementPrompt("Japanese", "Engineer", 1, "")
	assert.NotContains(t, plain, "Key points")
	assert.Contains(t, plain, "opportunity number 1")

	withRecent := statementPrompt("Japanese", "Engineer", 2, "- a said: \"x...\"")
	lines := strings.Split(withRecent, "\n")
	require.Greater(t, len(lines), 2)
	assert.Contains(t, lines[0], "opportunity number 2")
	assert.Equal(t, "Key points from the latest discussion:", lines[2])
}

func TestInitialContextSections(t *testing.T) {
	bare := initialContext("Chinese", "议题", "", "", "")
	assert.Contains(t, bare, "\"议题\"")
	assert.NotContains(t, bare, "RETRIEVED CONTEXT")
	assert.NotContains(t, bare, "carried over")

	full := initialContext("Chinese", "议题", "摘要", "片段", "- 预算")
	assert.Contains(t, full, "--- DOCUMENT SUMMARY START ---\n摘要")
	assert.Contains(t, full, "--- RETRIEVED CONTEXT START ---\n片段")
	assert.Contains(t, full, "Items carried over from the previous meeting:\n- 预算")
}

func TestSpeakerPersona(t *testing.T) {
	assert.Equal(t, "Lawyer (Japanese speaker)", speakerPersona(" Lawyer ", "Japanese"))
	assert.Equal(t, "Meeting participant (Korean speaker)", speakerPersona("", "Korean"))
}

func TestLLMPersonaEnhancer(t *testing.T) {
	inv := &stubInvoker{reply: func(req llm.Request) (string, error) {
		return "  詳細なペルソナ  ", nil
	}}
	e := NewLLMPersonaEnhancer(inv)

	got, err := e.Enhance(context.Background(), "Engineer", "料金", "資料の要点")
	require.NoError(t, err)
	assert.Equal(t, "詳細なペルソナ", got)

	req := inv.calls()[0]
	assert.Equal(t, 0.7, req.Temperature)
	assert.Contains(t, req.UserMessage, "# Base persona\nEngineer")
	assert.Contains(t, req.UserMessage, "# Key points of the reference material\n資料の要点")
	assert.Equal(t, personaArchitectSystem, req.SystemMessage)
}

func TestLLMPersonaEnhancerFallbacks(t *testing.T) {
	empty := NewLLMPersonaEnhancer(&stubInvoker{reply: func(llm.Request) (string, error) { return " ", nil }})
	got, err := empty.Enhance(context.Background(), "Engineer", "料金", "")
	require.NoError(t, err)
	assert.Equal(t, "Engineer", got)

	failing := NewLLMPersonaEnhancer(&stubInvoker{reply: func(llm.Request) (string, error) { return "", errBackend }})
	_, err = failing.Enhance(context.Background(), "Engineer", "料金", "")
	assert.ErrorIs(t, err, errBackend)
}
