package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-meeting/config"
	"llm-meeting/internal/app"
	"llm-meeting/internal/llm"
)

func chatHandler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	content := "私はこの提案に賛成です。理由は運用コストが下がるからです。"
	if strings.Contains(string(raw), "STATEMENT LOG START") {
		content = "## 1. 結論\n全員が合意しました。\n\n## 4. 未解決の課題\n- 予算の確保\n\n## 5. 推奨されるアクション\n担当者が調査します。"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"total_tokens": 3},
	})
}

func testDeps(t *testing.T) *Dependencies {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(chatHandler))
	t.Cleanup(backend.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.OpenAIAPIKey = "test-key"
	cfg.OpenAIBaseURL = backend.URL
	cfg.CallDelay = 0
	cfg.CallsPerSecond = 0
	cfg.PersonaEnhancement = false
	cfg.DataDir = filepath.Join(dir, "meetings")
	cfg.CarryOverDir = filepath.Join(dir, "carry_over")

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	return &Dependencies{App: a, Config: cfg}
}

func execute(t *testing.T, deps *Dependencies, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(deps)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseModel(t *testing.T) {
	tests := []struct {
		spec    string
		want    llm.ModelConfig
		wantErr bool
	}{
		{"openai:gpt-4o", llm.ModelConfig{Provider: llm.ProviderOpenAI, Name: "gpt-4o"}, false},
		{"claude:claude-sonnet-4:Lawyer", llm.ModelConfig{Provider: llm.ProviderAnthropic, Name: "claude-sonnet-4", Persona: "Lawyer"}, false},
		{"openrouter:meta/llama-3:Economist: macro", llm.ModelConfig{Provider: llm.ProviderOpenRouter, Name: "meta/llama-3", Persona: "Economist: macro"}, false},
		{"gpt-4o", llm.ModelConfig{}, true},
		{"openai:", llm.ModelConfig{}, true},
		{"mistral:large", llm.ModelConfig{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseModel(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunOptionsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topic: 元の議題
rounds: 2
participants:
  - {provider: openai, name: gpt-a}
moderator: {provider: openai, name: gpt-mod}
`), 0o644))

	opts := runOptions{
		settingsFile: path,
		topic:        "新しい議題",
		participants: []string{"openai:gpt-b", "anthropic:claude"},
	}
	s, err := opts.settings()
	require.NoError(t, err)
	assert.Equal(t, "新しい議題", s.Topic)
	assert.Equal(t, 2, s.Rounds)
	require.Len(t, s.Participants, 2)
	assert.Equal(t, "gpt-b", s.Participants[0].Name)
	assert.Equal(t, "gpt-mod", s.Moderator.Name)
}

func TestRunCommand(t *testing.T) {
	deps := testDeps(t)

	out, err := execute(t, deps, "run",
		"--topic", "新しい料金体系について",
		"--rounds", "1",
		"-p", "openai:gpt-a:Finance lead",
		"-p", "openai:gpt-b",
		"-m", "openai:gpt-mod")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Round 1/1")
	assert.Contains(t, out, "## 4. 未解決の課題")
	assert.Contains(t, out, "Unresolved issues saved: context_")

	out, err = execute(t, deps, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "新しい料金体系について ✅")

	items, err := deps.App.CarryOvers.List(false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	out, err = execute(t, deps, "carryover", "list")
	require.NoError(t, err)
	assert.Contains(t, out, items[0].ID)

	out, err = execute(t, deps, "carryover", "show", items[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "- 予算の確保")

	meetings, err := deps.App.Archive.List()
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	out, err = execute(t, deps, "history", "show", meetings[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "## 1. 結論")
}

func TestRunCommandInvalidSettings(t *testing.T) {
	deps := testDeps(t)
	out, err := execute(t, deps, "run", "--topic", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meeting failed")
	assert.Contains(t, out, "at least one participant")
}

func TestShowUnknown(t *testing.T) {
	deps := testDeps(t)
	_, err := execute(t, deps, "carryover", "show", "context_20260101_000000")
	assert.Error(t, err)
	_, err = execute(t, deps, "history", "show", "nope")
	assert.Error(t, err)
}
