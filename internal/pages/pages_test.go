package pages

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Default(t *testing.T) {
	pages, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, pages)
	for _, p := range pages {
		assert.Contains(t, p.URL, "https://")
	}
}

func TestParse(t *testing.T) {
	pages, err := Parse([]byte(`
pages:
  - url: https://www.irs.gov/filing
    description: federal filing deadlines
  - url: https://nasba.org/
  - url: https://nasba.org/
`))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://www.irs.gov/filing\nfederal filing deadlines", pages[0].EmbeddingText())
	assert.Equal(t, "https://nasba.org/", pages[1].EmbeddingText())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("pages:\n  - url: ftp://example.com/file\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("pages: [oops"))
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	l := NewList([]Page{{URL: "https://a.test/", Description: "alpha"}, {URL: "https://b.test/"}})

	assert.Equal(t, []string{"https://a.test/", "https://b.test/"}, l.URLs())
	assert.Equal(t, "https://a.test/\nalpha", l.TextFor("https://a.test/"))
	assert.Equal(t, "https://unknown.test/", l.TextFor("https://unknown.test/"))

	l.Set([]Page{{URL: "https://c.test/"}})
	assert.Equal(t, []string{"https://c.test/"}, l.URLs())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pages:\n  - url: https://a.test/\n"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed := make(chan []Page, 4)
	require.NoError(t, Watch(ctx, path, func(p []Page) { changed <- p }))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("pages:\n  - url: https://a.test/\n  - url: https://b.test/\n"), 0o644))

	select {
	case p := <-changed:
		assert.Len(t, p, 2)
	case <-ctx.Done():
		t.Fatal("timeout waiting for page list reload")
	}
}

func TestWatch_IgnoresOtherFilesAndBadContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pages: []\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan []Page, 4)
	require.NoError(t, Watch(ctx, path, func(p []Page) { changed <- p }))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("pages: [oops"), 0o644))

	select {
	case <-changed:
		t.Fatal("unexpected reload")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestWatch_RequiresPath(t *testing.T) {
	assert.Error(t, Watch(context.Background(), "", func([]Page) {}))
}
