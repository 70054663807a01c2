// Package pages holds the list of web pages the live fetcher may consult.
package pages

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default_pages.yaml
var defaultPages []byte

type Page struct {
	URL         string `yaml:"url"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// EmbeddingText is the text ranked against questions: the URL, plus the description when set.
func (p Page) EmbeddingText() string {
	if p.Description == "" {
		return p.URL
	}
	return p.URL + "\n" + p.Description
}

type file struct {
	Pages []Page `yaml:"pages"`
}

// Parse decodes a page list, rejecting entries without an absolute http(s) URL.
// Duplicate URLs keep their first occurrence.
func Parse(data []byte) ([]Page, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse page list: %w", err)
	}

	seen := make(map[string]bool, len(f.Pages))
	out := make([]Page, 0, len(f.Pages))
	for i, p := range f.Pages {
		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("page %d: invalid url %q", i, p.URL)
		}
		if seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		out = append(out, p)
	}
	return out, nil
}

// Load reads the page list at path, or the built-in list when path is empty.
func Load(path string) ([]Page, error) {
	if path == "" {
		return Parse(defaultPages)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page list %s: %w", path, err)
	}
	return Parse(data)
}

// List is the current page set, safe to swap while requests read it.
type List struct {
	mu    sync.RWMutex
	pages []Page
}

func NewList(pages []Page) *List {
	l := &List{}
	l.Set(pages)
	return l
}

func (l *List) Set(pages []Page) {
	cp := make([]Page, len(pages))
	copy(cp, pages)
	l.mu.Lock()
	l.pages = cp
	l.mu.Unlock()
}

func (l *List) URLs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	urls := make([]string, len(l.pages))
	for i, p := range l.pages {
		urls[i] = p.URL
	}
	return urls
}

// TextFor returns the embedding text for pageURL, or pageURL itself when it is not listed.
func (l *List) TextFor(pageURL string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.pages {
		if p.URL == pageURL {
			return p.EmbeddingText()
		}
	}
	return pageURL
}
