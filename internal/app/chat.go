package app

import (
	"sync"

	"github.com/dkeye/meetclient/internal/domain"
)

const DefaultChatHistory = 200

// ChatLog keeps the most recent meeting messages, oldest first.
type ChatLog struct {
	mu    sync.RWMutex
	limit int
	msgs  []domain.ChatMessage
}

func NewChatLog(limit int) *ChatLog {
	if limit <= 0 {
		limit = DefaultChatHistory
	}
	return &ChatLog{limit: limit}
}

func (l *ChatLog) Append(m domain.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, m)
	if over := len(l.msgs) - l.limit; over > 0 {
		l.msgs = append(l.msgs[:0:0], l.msgs[over:]...)
	}
}

func (l *ChatLog) Snapshot() []domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *ChatLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
