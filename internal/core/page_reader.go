package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"kcglobed.com/finance-chatbot/internal/utils"
)

// NotFound is the answer a page reader gives when the page does not address the query.
const NotFound = "Not found"

const (
	maxPageBytes     = 2 << 20
	pageChunkSize    = 1000
	pageChunkOverlap = 200
	maxPageChunks    = 30
	pageExcerpts     = 4
	pageUserAgent    = "KcGlobedBot/1.0 (+https://kcglobed.com)"
)

// PageReader answers query from the content of one web page.
// An answer containing NotFound means the page had nothing relevant.
type PageReader interface {
	Read(ctx context.Context, url, query string) (string, error)
}

// WebPageReader fetches a page, keeps its most relevant excerpts and asks the model to answer from them.
type WebPageReader struct {
	client    *http.Client
	embedder  Embedder
	completer Completer
}

func NewWebPageReader(client *http.Client, embedder Embedder, completer Completer) *WebPageReader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebPageReader{client: client, embedder: embedder, completer: completer}
}

func (r *WebPageReader) Read(ctx context.Context, url, query string) (string, error) {
	text, err := r.fetchText(ctx, url)
	if err != nil {
		return "", err
	}

	chunks := utils.SplitText(text, pageChunkSize, pageChunkOverlap)
	if len(chunks) == 0 {
		return NotFound, nil
	}
	if len(chunks) > maxPageChunks {
		chunks = chunks[:maxPageChunks]
	}

	excerpts, err := r.relevantExcerpts(ctx, query, chunks)
	if err != nil {
		return "", err
	}

	answer, err := r.completer.Complete(ctx, []Message{
		{Role: RoleSystem, Content: pageReaderInstruction},
		{Role: RoleUser, Content: fmt.Sprintf("Page: %s\n\nExcerpts:\n%s\n\nQuestion: %s", url, strings.Join(excerpts, "\n---\n"), query)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarise %s: %w", url, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return NotFound, nil
	}
	return answer, nil
}

func (r *WebPageReader) relevantExcerpts(ctx context.Context, query string, chunks []string) ([]string, error) {
	if len(chunks) <= pageExcerpts {
		return chunks, nil
	}

	queryEmb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	vectors := make(map[string]Embedding, len(chunks))
	keys := make([]string, len(chunks))
	for i, chunk := range chunks {
		emb, err := r.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to embed page chunk %d: %w", i, err)
		}
		keys[i] = strconv.Itoa(i)
		vectors[keys[i]] = emb
	}

	ranked := utils.RankBySimilarity(queryEmb, keys, func(k string) ([]float32, bool) {
		v, ok := vectors[k]
		return v, ok
	}, pageExcerpts)

	out := make([]string, 0, len(ranked))
	for _, rk := range ranked {
		i, _ := strconv.Atoi(rk.Key)
		out = append(out, chunks[i])
	}
	return out, nil
}

func (r *WebPageReader) fetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", pageUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	return ExtractText(io.LimitReader(resp.Body, maxPageBytes))
}

// ExtractText returns the visible text of an HTML document, one block per line.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return cleanLines(b.String()), nil
			}
			return "", fmt.Errorf("failed to parse html: %w", z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if isHiddenElement(a) {
				skip++
			} else if isBlockElement(a) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if isHiddenElement(a) {
				if skip > 0 {
					skip--
				}
			} else if isBlockElement(a) {
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Br || a == atom.Hr {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenElement(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Svg, atom.Template, atom.Iframe:
		return true
	}
	return false
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Hr, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Tr, atom.Blockquote, atom.Pre, atom.Table, atom.Section, atom.Article, atom.Main:
		return true
	}
	return false
}

func cleanLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = utils.CollapseWhitespace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

const pageReaderInstruction = "You answer questions using only the provided web page excerpts. " +
	"Answer concisely and quote figures, dates and requirements exactly as written. " +
	"If the excerpts do not answer the question, reply exactly: " + NotFound
