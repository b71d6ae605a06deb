// Package extract turns reference documents (local text, markdown and HTML
// files, or web pages) into plain text for the meeting.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"llm-meeting/config"
	"llm-meeting/internal/llm"
)

const (
	// FetchTimeout bounds a single page request.
	FetchTimeout = 30 * time.Second

	// UserAgent identifies page requests.
	UserAgent = "llm-meeting-extractor/1.0"

	fetchAttempts = 2
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrTooLarge          = errors.New("document exceeds size limit")
)

// Format names the kind of source a document came from.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

var formatsByExt = map[string]Format{
	".txt":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// Metadata describes an extracted document.
type Metadata struct {
	Source      string    `json:"source"`
	Format      Format    `json:"format"`
	Bytes       int       `json:"bytes"`
	Characters  int       `json:"characters"`
	Title       string    `json:"title,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Document is the normalized text of a source plus its metadata.
type Document struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Extractor reads documents from disk or the web.
type Extractor struct {
	maxBytes   int64
	httpClient *http.Client
	retryDelay time.Duration
	logger     *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient sets the client used for URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRetryDelay sets the pause between page fetch attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Extractor) {
		e.retryDelay = d
	}
}

// New returns an extractor enforcing cfg.MaxDocumentSizeMB.
func New(cfg *config.Config, opts ...Option) *Extractor {
	e := &Extractor{
		maxBytes:   int64(cfg.MaxDocumentSizeMB) * 1024 * 1024,
		httpClient: &http.Client{Timeout: FetchTimeout},
		retryDelay: 2 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsURL reports whether source is an http(s) reference.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Extract reads source, a file path or http(s) URL, and returns its
// normalized text.
func (e *Extractor) Extract(ctx context.Context, source string) (*Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("document source is empty")
	}

	var (
		doc *Document
		err error
	)
	if IsURL(source) {
		doc, err = e.fetch(ctx, source)
	} else {
		doc, err = e.readFile(source)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("document extracted",
		zap.String("source", source),
		zap.String("format", string(doc.Metadata.Format)),
		zap.Int("bytes", doc.Metadata.Bytes),
		zap.Int("characters", doc.Metadata.Characters))
	return doc, nil
}

func (e *Extractor) readFile(path string) (*Document, error) {
	format, ok := formatsByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("document path %s is a directory", path)
	}
	if info.Size() > e.maxBytes {
		return nil, fmt.Errorf("%w: %.1fMB > %dMB", ErrTooLarge, float64(info.Size())/(1024*1024), e.maxBytes/(1024*1024))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return build(path, format, raw)
}

func (e *Extractor) fetch(ctx context.Context, url string) (*Document, error) {
	var (
		raw         []byte
		contentType string
		err         error
	)
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		raw, contentType, err = e.get(ctx, url)
		if err == nil || errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
			break
		}
		if attempt < fetchAttempts-1 {
			e.logger.Warn("page fetch failed, retrying",
				zap.Int("attempt", attempt+1), zap.Duration("delay", e.retryDelay), zap.Error(err))
			if serr := llm.SleepContext(ctx, e.retryDelay); serr != nil {
				return nil, serr
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	format := FormatText
	if strings.Contains(contentType, "html") || looksLikeHTML(raw) {
		format = FormatHTML
	}
	return build(url, format, raw)
}

func (e *Extractor) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return nil, "", fmt.Errorf("%w: response larger than %dMB", ErrTooLarge, e.maxBytes/(1024*1024))
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func looksLikeHTML(raw []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(raw[:min(len(raw), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

func build(source string, format Format, raw []byte) (*Document, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrUnsupportedFormat, source)
	}

	meta := Metadata{Source: source, Format: format, Bytes: len(raw), ExtractedAt: time.Now()}
	text := string(raw)
	if format == FormatHTML {
		title, body, err := htmlToText(text)
		if err != nil {
			return nil, err
		}
		meta.Title = title
		text = body
	}

	text = Normalize(text)
	meta.Characters = utf8.RuneCountInString(text)
	return &Document{Text: text, Metadata: meta}, nil
}

// boilerplate lists elements that never carry document content.
const boilerplate = "script, style, noscript, iframe, svg, nav, header, footer, aside, form"

// htmlToText strips boilerplate and renders the remaining body as markdown.
func htmlToText(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(boilerplate).Remove()

	content := doc.Find("main, article").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	if content.Length() == 0 {
		content = doc.Selection
	}

	converter := md.NewConverter("", true, nil)
	return title, converter.Convert(content), nil
}

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t\x{00A0}]+`)
)

// Normalize unifies line endings, collapses blank runs inside lines and runs
// of blank lines, and drops trailing whitespace. Leading indentation is kept
// so nested lists and indented code survive.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		rest := strings.TrimLeft(line, " \t")
		indent := line[:len(line)-len(rest)]
		body := strings.TrimRight(spaceRuns.ReplaceAllString(rest, " "), " ")
		if body == "" {
			lines[i] = ""
			continue
		}
		lines[i] = indent + body
	}

	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.Trim(text, "\n")
}
