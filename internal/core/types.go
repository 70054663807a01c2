package core

import (
	"context"
	"errors"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one chat turn sent to or received from the completion provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Embedding is a vector produced by one embedding model.
type Embedding = []float32

// Embedder turns text into an embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
}

// Completer sends an ordered message list to a chat model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// SQLQuerier runs a single read statement against the catalog database.
type SQLQuerier interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

var (
	// ErrEmptyCompletion is returned when the provider answers with no text.
	ErrEmptyCompletion = errors.New("no response from chat completion provider")
	// ErrInvalidEssayResponse is returned when an essay verdict is not the expected JSON.
	ErrInvalidEssayResponse = errors.New("AI returned invalid JSON")
)
