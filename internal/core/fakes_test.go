package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// fakeEmbedder maps known texts to fixed vectors and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string]Embedding
	calls   map[string]int
	err     error
	// failTexts fails only the listed texts.
	failTexts map[string]error
}

func newFakeEmbedder(vectors map[string]Embedding) *fakeEmbedder {
	if vectors == nil {
		vectors = map[string]Embedding{}
	}
	return &fakeEmbedder{vectors: vectors, calls: map[string]int{}}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if f.err != nil {
		return nil, f.err
	}
	if err := f.failTexts[text]; err != nil {
		return nil, err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return Embedding{1, 1, 1}, nil
}

func (f *fakeEmbedder) callCount(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeEmbedder) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// scriptedCompleter answers each call with the first rule whose match returns true.
type scriptedCompleter struct {
	mu    sync.Mutex
	rules []completionRule
	calls [][]Message
}

type completionRule struct {
	match func([]Message) bool
	reply string
	err   error
}

func (s *scriptedCompleter) on(match func([]Message) bool, reply string) *scriptedCompleter {
	s.rules = append(s.rules, completionRule{match: match, reply: reply})
	return s
}

func (s *scriptedCompleter) failOn(match func([]Message) bool, err error) *scriptedCompleter {
	s.rules = append(s.rules, completionRule{match: match, err: err})
	return s
}

func (s *scriptedCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Message, len(messages))
	copy(cp, messages)
	s.calls = append(s.calls, cp)
	for _, r := range s.rules {
		if r.match(messages) {
			return r.reply, r.err
		}
	}
	return "", errors.New("unexpected completion call")
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func systemContains(sub string) func([]Message) bool {
	return func(msgs []Message) bool {
		return len(msgs) > 0 && msgs[0].Role == RoleSystem && strings.Contains(msgs[0].Content, sub)
	}
}

func always() func([]Message) bool {
	return func([]Message) bool { return true }
}

// fakeQuerier records SQL and returns canned rows.
type fakeQuerier struct {
	mu      sync.Mutex
	rows    []map[string]any
	err     error
	queries []string
	args    [][]any
	calls   atomic.Int32
}

func (f *fakeQuerier) QueryRows(_ context.Context, query string, args ...any) ([]map[string]any, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeQuerier) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}
