package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-meeting/config"
)

func newTestExtractor(opts ...Option) *Extractor {
	cfg := config.Default()
	cfg.MaxDocumentSizeMB = 1
	return New(cfg, append([]Option{WithRetryDelay(0)}, opts...)...)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Quarterly Plan</title><style>body { color: red; }</style></head>
<body>
<nav><a href="/">Home</a> | <a href="/about">About</a></nav>
<main>
<h1>Goals</h1>
<p>Ship the   new billing system.</p>
<ul><li>Reduce churn</li><li>Hire two engineers</li></ul>
<script>trackVisitor();</script>
</main>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"spaces and tabs", "a  \t b", "a b"},
		{"trailing whitespace", "a  \nb \t", "a\nb"},
		{"whitespace-only lines", "a\n   \n \t \n\nb", "a\n\nb"},
		{"outer blank lines", "\n\ntext  \n\n", "text"},
		{"nested list", "- one\n  - two\n    - three", "- one\n  - two\n    - three"},
		{"indented code", "Example:\n\n    if x {\n        y()\n    }", "Example:\n\n    if x {\n        y()\n    }"},
		{"runs inside indented line", "    a   b", "    a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestExtractTextFile(t *testing.T) {
	path := writeFile(t, "notes.txt", "第一章\r\n\r\n\r\n\r\n本文です。  続き。\n")

	doc, err := newTestExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "第一章\n\n本文です。 続き。", doc.Text)
	assert.Equal(t, FormatText, doc.Metadata.Format)
	assert.Equal(t, path, doc.Metadata.Source)
	assert.Equal(t, len([]rune(doc.Text)), doc.Metadata.Characters)
	assert.Greater(t, doc.Metadata.Bytes, 0)
}

func TestExtractMarkdownFile(t *testing.T) {
	path := writeFile(t, "plan.MD", "# Plan\n\n- one\n- two\n")

	doc, err := newTestExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, FormatMarkdown, doc.Metadata.Format)
	assert.Equal(t, "# Plan\n\n- one\n- two", doc.Text)
}

func TestExtractHTMLFile(t *testing.T) {
	path := writeFile(t, "page.html", samplePage)

	doc, err := newTestExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, FormatHTML, doc.Metadata.Format)
	assert.Equal(t, "Quarterly Plan", doc.Metadata.Title)
	assert.Contains(t, doc.Text, "Goals")
	assert.Contains(t, doc.Text, "Ship the new billing system.")
	assert.Contains(t, doc.Text, "Reduce churn")
	for _, noise := range []string{"trackVisitor", "color: red", "Home", "Copyright"} {
		assert.NotContains(t, doc.Text, noise)
	}
}

func TestExtractHTMLKeepsNestedListIndentation(t *testing.T) {
	page := `<html><body><main><ul><li>Budget<ul><li>Hiring plan</li></ul></li></ul></main></body></html>`
	path := writeFile(t, "nested.html", page)

	doc, err := newTestExtractor().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Regexp(t, `(?m)^- Budget$`, doc.Text)
	assert.Regexp(t, `(?m)^[ \t]+- Hiring plan$`, doc.Text)
}

func TestExtractRejectsUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "report.pdf", "%PDF-1.7")

	_, err := newTestExtractor().Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractRejectsLargeFile(t *testing.T) {
	path := writeFile(t, "big.txt", strings.Repeat("a", 1024*1024+1))

	_, err := newTestExtractor().Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestExtractMissingFile(t *testing.T) {
	_, err := newTestExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = newTestExtractor().Extract(context.Background(), "  ")
	assert.Error(t, err)
}

func TestExtractURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	doc, err := newTestExtractor(WithHTTPClient(server.Client())).Extract(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, FormatHTML, doc.Metadata.Format)
	assert.Equal(t, "Quarterly Plan", doc.Metadata.Title)
	assert.Contains(t, doc.Text, "Reduce churn")
}

func TestExtractURLPlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain   body\n"))
	}))
	defer server.Close()

	doc, err := newTestExtractor().Extract(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, FormatText, doc.Metadata.Format)
	assert.Equal(t, "plain body", doc.Text)
}

func TestExtractURLRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	doc, err := newTestExtractor().Extract(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", doc.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtractURLFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestExtractor().Extract(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code 404")
}

func TestExtractURLTooLarge(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(strings.Repeat("a", 1024*1024+10)))
	}))
	defer server.Close()

	_, err := newTestExtractor().Extract(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, int32(1), calls.Load(), "size errors are not retried")
}
