package meeting

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"llm-meeting/config"
	"llm-meeting/internal/extract"
	"llm-meeting/internal/llm"
)

const (
	japaneseStatement = "私はこの提案に賛成です。理由は運用コストが下がるからです。"
	japaneseRecap     = "ここまでの議論では運用コストの削減が主な論点でした。"
)

func finalReport(issues string) string {
	return "## 1. 主要な論点と結論\n運用コストの削減について全員が合意しました。\n\n## 4. 未解決の課題\n" + issues +
		"\n\n## 5. 推奨されるアクション\n次回の会議までに担当者が詳細な費用を調査します。"
}

// stubInvoker replies through reply, or with a fixed Japanese statement.
type stubInvoker struct {
	mu       sync.Mutex
	model    llm.ModelConfig
	reply    func(req llm.Request) (string, error)
	tokens   int
	requests []llm.Request
}

func (s *stubInvoker) Submit(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content := japaneseStatement
	if s.reply != nil {
		var err error
		if content, err = s.reply(req); err != nil {
			return nil, err
		}
	}
	return &llm.Response{Content: content, TokensUsed: s.tokens}, nil
}

func (s *stubInvoker) Model() llm.ModelConfig { return s.model }

func (s *stubInvoker) calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// moderatorReply answers recaps and the final report.
func moderatorReply(issues string) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		if req.MaxTokens > 0 {
			return finalReport(issues), nil
		}
		return japaneseRecap, nil
	}
}

// stubFactory hands out one stubInvoker per model name.
type stubFactory struct {
	mu       sync.Mutex
	invokers map[string]*stubInvoker
	fail     map[string]error
	tokens   int
}

func newStubFactory() *stubFactory {
	return &stubFactory{invokers: make(map[string]*stubInvoker), fail: make(map[string]error)}
}

func (f *stubFactory) Create(model llm.ModelConfig) (llm.Invoker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[model.Name]; err != nil {
		return nil, fmt.Errorf("%w: %w", llm.ErrInitialization, err)
	}
	if inv, ok := f.invokers[model.Name]; ok {
		return inv, nil
	}
	inv := &stubInvoker{model: model, tokens: f.tokens}
	f.invokers[model.Name] = inv
	return inv, nil
}

// invoker pre-registers and returns the stub used for name.
func (f *stubFactory) invoker(name string) *stubInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invokers[name]
	if !ok {
		inv = &stubInvoker{model: llm.ModelConfig{Provider: llm.ProviderOpenAI, Name: name}, tokens: f.tokens}
		f.invokers[name] = inv
	}
	return inv
}

type fakeCarryOver struct {
	topic, issues string
	err           error
}

func (c *fakeCarryOver) Save(topic, issues string) (string, error) {
	c.topic, c.issues = topic, issues
	if c.err != nil {
		return "", c.err
	}
	return "context_test", nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (x fakeExtractor) Extract(_ context.Context, source string) (*extract.Document, error) {
	if x.err != nil {
		return nil, x.err
	}
	return &extract.Document{Text: x.text, Metadata: extract.Metadata{Source: source}}, nil
}

type fakeRetriever struct {
	mu      sync.Mutex
	indexed []string
	queries []string
}

func (r *fakeRetriever) Relevant(_ context.Context, query string, k int, diversify bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if len(r.indexed) == 0 {
		return nil, nil
	}
	return []string{"関連する抜粋です。"}, nil
}

func (r *fakeRetriever) AddDocument(source, text string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, text)
	return 1
}

func (r *fakeRetriever) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CallDelay = 0
	return cfg
}

func participants(names ...string) []llm.ModelConfig {
	out := make([]llm.ModelConfig, len(names))
	for i, n := range names {
		out[i] = llm.ModelConfig{Provider: llm.ProviderOpenAI, Name: n, Persona: "Engineer " + n}
	}
	return out
}

func testSettings(rounds int, names ...string) Settings {
	return Settings{
		Participants: participants(names...),
		Moderator:    llm.ModelConfig{Provider: llm.ProviderAnthropic, Name: "moderator-model"},
		Rounds:       rounds,
		Topic:        "新しい料金体系について",
	}
}

func newTestEngine(f *stubFactory, opts ...Option) *Engine {
	base := []Option{WithSleep(noSleep), WithRand(rand.New(rand.NewPCG(1, 2)))}
	return New(testConfig(), f, append(base, opts...)...)
}

var errBackend = &llm.Error{Kind: llm.KindBackendStatus, StatusCode: 400, Message: "bad request"}

func isCorrection(req llm.Request) bool {
	return strings.Contains(req.UserMessage, "Text to correct:")
}

var errBoom = errors.New("boom")
