// Package retrieval finds document passages relevant to a statement prompt.
// Passages are ranked by TF-IDF cosine similarity; diversified queries use
// maximal marginal relevance so near-duplicate chunks are not all returned.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"llm-meeting/internal/summarize"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultFetchK       = 20
	DefaultLambda       = 0.5
)

type passage struct {
	source string
	text   string
	terms  map[string]int
}

// Index is an in-memory passage index, safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	passages []passage
	docFreq  map[string]int

	chunkSize int
	overlap   int
	fetchK    int
	lambda    float64
	logger    *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithChunking sets the passage size and overlap in runes.
func WithChunking(size, overlap int) Option {
	return func(ix *Index) {
		if size > 0 && overlap >= 0 && overlap < size {
			ix.chunkSize, ix.overlap = size, overlap
		}
	}
}

// WithFetchK sets how many top passages are considered for diversification.
func WithFetchK(k int) Option {
	return func(ix *Index) {
		if k > 0 {
			ix.fetchK = k
		}
	}
}

// WithLambda weighs relevance against novelty in diversified queries.
// 1 is pure relevance, 0 pure novelty.
func WithLambda(l float64) Option {
	return func(ix *Index) {
		if l >= 0 && l <= 1 {
			ix.lambda = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New returns an empty index.
func New(opts ...Option) *Index {
	ix := &Index{
		docFreq:   make(map[string]int),
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		fetchK:    DefaultFetchK,
		lambda:    DefaultLambda,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// AddDocument splits text into passages and indexes them. It returns the
// number of passages added.
func (ix *Index) AddDocument(source, text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	chunks := summarize.SplitText(text, ix.chunkSize, ix.overlap)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	added := 0
	for _, c := range chunks {
		terms := termCounts(c)
		if len(terms) == 0 {
			continue
		}
		for t := range terms {
			ix.docFreq[t]++
		}
		ix.passages = append(ix.passages, passage{source: source, text: c, terms: terms})
		added++
	}
	ix.logger.Info("document indexed", zap.String("source", source), zap.Int("passages", added))
	return added
}

// Len returns the number of indexed passages.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.passages)
}

// Reset drops every passage.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.passages = nil
	ix.docFreq = make(map[string]int)
}

// Relevant returns up to k passages most relevant to query, best first.
// Passages sharing no term with the query are never returned.
func (ix *Index) Relevant(ctx context.Context, query string, k int, diversify bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.passages) == 0 {
		return nil, nil
	}

	q := ix.weigh(termCounts(query))
	if len(q) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		vec   map[string]float64
		score float64
	}
	var candidates []scored
	for i, p := range ix.passages {
		vec := ix.weigh(p.terms)
		if s := cosine(q, vec); s > 0 {
			candidates = append(candidates, scored{idx: i, vec: vec, score: s})
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	if !diversify {
		candidates = candidates[:min(k, len(candidates))]
		out := make([]string, len(candidates))
		for i, c := range candidates {
			out[i] = ix.passages[c.idx].text
		}
		return out, nil
	}

	pool := candidates[:min(ix.fetchK, len(candidates))]
	picked := make([]bool, len(pool))
	var selected []scored
	for len(selected) < k && len(selected) < len(pool) {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range pool {
			if picked[i] {
				continue
			}
			redundancy := 0.0
			for _, s := range selected {
				redundancy = max(redundancy, cosine(c.vec, s.vec))
			}
			if mmr := ix.lambda*c.score - (1-ix.lambda)*redundancy; mmr > bestScore {
				best, bestScore = i, mmr
			}
		}
		picked[best] = true
		selected = append(selected, pool[best])
	}

	out := make([]string, len(selected))
	for i, c := range selected {
		out[i] = ix.passages[c.idx].text
	}
	return out, nil
}

// weigh turns raw term counts into TF-IDF weights. Must hold a read lock.
func (ix *Index) weigh(counts map[string]int) map[string]float64 {
	n := float64(len(ix.passages))
	vec := make(map[string]float64, len(counts))
	for t, c := range counts {
		df := ix.docFreq[t]
		if df == 0 {
			continue
		}
		idf := math.Log(1+n/float64(df)) + 1e-9
		vec[t] = (1 + math.Log(float64(c))) * idf
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot, na, nb float64
	for t, w := range a {
		dot += w * b[t]
		na += w * w
	}
	for _, w := range b {
		nb += w * w
	}
	if dot == 0 || na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// termCounts tokenizes text: lower-cased words for alphabetic scripts and
// overlapping bigrams for CJK runs, where words are not space separated.
func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	var word []rune
	var cjk []rune

	flushWord := func() {
		if len(word) > 1 {
			counts[string(word)]++
		}
		word = word[:0]
	}
	flushCJK := func() {
		switch {
		case len(cjk) == 1:
			counts[string(cjk)]++
		case len(cjk) > 1:
			for i := 0; i+1 < len(cjk); i++ {
				counts[string(cjk[i:i+2])]++
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, unicode.ToLower(r))
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()
	return counts
}
