// Package summarize condenses long reference documents, either with a single
// call or hierarchically (summaries of chunks, then a summary of those).
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"llm-meeting/config"
	"llm-meeting/internal/llm"
	"llm-meeting/internal/tokenizer"
)

// ErrSummarization wraps every failed summarization call.
var ErrSummarization = errors.New("document summarization failed")

// DefaultStyle describes the summary the meeting needs.
const DefaultStyle = "meeting briefing"

// Summary is an immutable summarization result.
type Summary struct {
	OriginalLength   int     `json:"original_length"`
	Text             string  `json:"summary"`
	SummaryLength    int     `json:"summary_length"`
	CompressionRatio float64 `json:"compression_ratio"`
	TokensUsed       int     `json:"tokens_used"`
	Chunks           int     `json:"chunks,omitempty"`
}

// NewSummary derives lengths and the compression ratio (0 when the original
// is empty).
func NewSummary(original, text string, tokensUsed int) Summary {
	originalLen := utf8.RuneCountInString(original)
	summaryLen := utf8.RuneCountInString(text)
	ratio := 0.0
	if originalLen > 0 {
		ratio = float64(summaryLen) / float64(originalLen)
	}
	return Summary{
		OriginalLength:   originalLen,
		Text:             text,
		SummaryLength:    summaryLen,
		CompressionRatio: ratio,
		TokensUsed:       tokensUsed,
	}
}

// Summarizer chooses between passthrough, single-call and hierarchical
// summarization based on the estimated token count.
type Summarizer struct {
	targetTokens int
	threshold    int
	chunkSize    int
	overlap      int
	concurrency  int
	language     string
	cache        *Cache
	logger       *zap.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithCache enables the summary cache.
func WithCache(c *Cache) Option {
	return func(s *Summarizer) {
		s.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Summarizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOutputLanguage asks every summarization call to answer in language.
func WithOutputLanguage(language string) Option {
	return func(s *Summarizer) {
		s.language = language
	}
}

// WithConcurrency bounds how many chunk summaries run at once. 1 is sequential.
func WithConcurrency(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New returns a summarizer using the document settings in cfg.
func New(cfg *config.Config, opts ...Option) *Summarizer {
	s := &Summarizer{
		targetTokens: cfg.DocumentTargetTokens,
		threshold:    cfg.HierarchicalThresholdTokens,
		chunkSize:    cfg.ChunkSize,
		overlap:      cfg.ChunkOverlap,
		concurrency:  max(cfg.ChunkConcurrency, 1),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize condenses text to roughly targetTokens (the configured target
// when non-positive). Text already within the target is returned unchanged
// with ratio 1.0 and no tokens spent. Text above the hierarchical threshold
// is chunked; the token tally is the sum of every call made. On failure the
// returned Summary carries only the tokens already spent.
func (s *Summarizer) Summarize(ctx context.Context, inv llm.Invoker, text string, targetTokens int, style string) (Summary, error) {
	if targetTokens <= 0 {
		targetTokens = s.targetTokens
	}
	if style == "" {
		style = DefaultStyle
	}

	tokenCount := tokenizer.Estimate(text)
	if tokenCount <= targetTokens {
		s.logger.Info("document within target, summarization skipped",
			zap.Int("tokens", tokenCount), zap.Int("target", targetTokens))
		summary := NewSummary(text, text, 0)
		summary.CompressionRatio = 1.0
		return summary, nil
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(text, targetTokens, style); ok {
			s.logger.Info("document summary served from cache")
			cached.TokensUsed = 0
			return cached, nil
		}
	}

	var (
		summary Summary
		err     error
	)
	if tokenCount > s.threshold {
		summary, err = s.hierarchical(ctx, inv, text, targetTokens, style)
	} else {
		summary, err = s.single(ctx, inv, text, targetTokens, style)
	}
	if err != nil {
		return Summary{TokensUsed: summary.TokensUsed}, err
	}

	s.logger.Info("document summarized",
		zap.Int("original_chars", summary.OriginalLength),
		zap.Int("summary_chars", summary.SummaryLength),
		zap.Float64("compression_ratio", summary.CompressionRatio),
		zap.Int("chunks", summary.Chunks),
		zap.Int("tokens_used", summary.TokensUsed))

	if s.cache != nil {
		s.cache.Set(text, targetTokens, style, summary)
	}
	return summary, nil
}

func (s *Summarizer) single(ctx context.Context, inv llm.Invoker, text string, target int, style string) (Summary, error) {
	resp, err := inv.Submit(ctx, llm.Request{
		UserMessage:   s.withLanguage(documentPrompt(text, target, style)),
		SystemMessage: "You are an expert at summarizing professional documents.",
	})
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrSummarization, err)
	}
	return NewSummary(text, strings.TrimSpace(resp.Content), resp.TokensUsed), nil
}

func (s *Summarizer) hierarchical(ctx context.Context, inv llm.Invoker, text string, target int, style string) (Summary, error) {
	chunks := SplitText(text, s.chunkSize, s.overlap)
	total := len(chunks)
	s.logger.Info("hierarchical summarization started", zap.Int("chunks", total))

	partials := make([]string, total)
	tokens := make([]int, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			resp, err := inv.Submit(gctx, llm.Request{
				UserMessage:   s.withLanguage(chunkPrompt(chunk, i+1, total)),
				SystemMessage: "You are an expert at summarizing documents.",
			})
			if err != nil {
				return fmt.Errorf("%w: chunk %d/%d: %w", ErrSummarization, i+1, total, err)
			}
			partials[i] = strings.TrimSpace(resp.Content)
			tokens[i] = resp.TokensUsed
			s.logger.Debug("chunk summarized", zap.Int("chunk", i+1), zap.Int("tokens", resp.TokensUsed))
			return nil
		})
	}
	err := g.Wait()
	tokensUsed := 0
	for _, n := range tokens {
		tokensUsed += n
	}
	if err != nil {
		return Summary{TokensUsed: tokensUsed}, err
	}

	resp, err := inv.Submit(ctx, llm.Request{
		UserMessage:   s.withLanguage(mergePrompt(strings.Join(partials, "\n\n"), target, style)),
		SystemMessage: "You are an expert at summarizing documents.",
	})
	if err != nil {
		return Summary{TokensUsed: tokensUsed}, fmt.Errorf("%w: merging %d chunk summaries: %w", ErrSummarization, total, err)
	}
	tokensUsed += resp.TokensUsed

	summary := NewSummary(text, strings.TrimSpace(resp.Content), tokensUsed)
	summary.Chunks = total
	return summary, nil
}

func (s *Summarizer) withLanguage(prompt string) string {
	if s.language == "" {
		return prompt
	}
	return prompt + "\n\nWrite the summary in " + s.language + "."
}

func documentPrompt(text string, target int, style string) string {
	return fmt.Sprintf(`Summarize the following document as a %s in about %d tokens.

Guidelines:
1. Keep the main points and the important details.
2. Preserve the logical structure.
3. Prioritize information the meeting will need to discuss.
4. Explain technical terms or make them clear from context.

[Document]
%s

[Summary]`, style, target, text)
}

func chunkPrompt(chunk string, n, total int) string {
	return fmt.Sprintf(`The following is part %d of %d of a long document. Summarize this part concisely in roughly 300 to 500 characters while keeping its key information. The partial summaries will be merged afterwards.

[Document part %d/%d]
%s

[Summary of this part]`, n, total, n, total, chunk)
}

func mergePrompt(partials string, target int, style string) string {
	return fmt.Sprintf(`The following are summaries of consecutive parts of one long document. Merge them into a single coherent %s of about %d tokens. Avoid repetition and keep the overall flow and logic.

Guidelines:
1. Integrate the key points of every part around the overall narrative.
2. Remove duplication and keep the summary consistent.
3. Prioritize information the meeting will need to discuss.
4. Organize the result in a logical structure.

[Partial summaries]
%s

[Final summary]`, style, target, partials)
}
