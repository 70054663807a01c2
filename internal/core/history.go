package core

import (
	"context"
	"fmt"
	"sync"

	"kcglobed.com/finance-chatbot/internal/store"
	"kcglobed.com/finance-chatbot/internal/utils"
)

// HistoryStore keeps each user's conversation in chronological order.
type HistoryStore interface {
	History(ctx context.Context, userID int64) ([]Message, error)
	Append(ctx context.Context, userID int64, msgs ...Message) error
}

// MemoryHistory is a process-wide history map. With maxMessages > 0 only the
// newest maxMessages turns are kept per user; zero keeps everything.
type MemoryHistory struct {
	mu          sync.RWMutex
	byUser      map[int64][]Message
	maxMessages int
}

func NewMemoryHistory(maxMessages int) *MemoryHistory {
	return &MemoryHistory{byUser: make(map[int64][]Message), maxMessages: maxMessages}
}

func (h *MemoryHistory) History(_ context.Context, userID int64) ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msgs := h.byUser[userID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *MemoryHistory) Append(_ context.Context, userID int64, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	all := append(h.byUser[userID], msgs...)
	if h.maxMessages > 0 && len(all) > h.maxMessages {
		all = append([]Message(nil), all[len(all)-h.maxMessages:]...)
	}
	h.byUser[userID] = all
	return nil
}

// SQLiteHistory persists conversations in the history database.
type SQLiteHistory struct {
	db          *store.SQLiteStore
	maxMessages int
}

func NewSQLiteHistory(db *store.SQLiteStore, maxMessages int) *SQLiteHistory {
	return &SQLiteHistory{db: db, maxMessages: maxMessages}
}

func (h *SQLiteHistory) History(ctx context.Context, userID int64) ([]Message, error) {
	rows, err := h.db.GetLastNMessagesByUserID(ctx, userID, h.maxMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for user %d: %w", userID, err)
	}
	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, Message{Role: Role(r.Role), Content: r.Content})
	}
	return msgs, nil
}

func (h *SQLiteHistory) Append(ctx context.Context, userID int64, msgs ...Message) error {
	rows := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, store.Message{Role: string(m.Role), Content: m.Content})
	}
	if err := h.db.AppendMessages(ctx, userID, rows); err != nil {
		return fmt.Errorf("failed to save history for user %d: %w", userID, err)
	}
	return nil
}

// TrimToTokenBudget drops the oldest messages until the rest fit in budget tokens.
// The newest message is always kept. A budget of zero or less disables trimming.
func TrimToTokenBudget(msgs []Message, budget int) []Message {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		total += utils.CountTokens(msgs[i].Content)
		if total > budget && i < len(msgs)-1 {
			break
		}
		start = i
	}
	return msgs[start:]
}
