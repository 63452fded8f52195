package app

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/meetclient/internal/domain"
)

func TestChatLog_KeepsMostRecent(t *testing.T) {
	l := NewChatLog(3)
	for i := 0; i < 5; i++ {
		l.Append(domain.ChatMessage{ID: fmt.Sprint(i)})
	}

	got := l.Snapshot()
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "4", got[2].ID)

	got[0].ID = "mutated"
	assert.Equal(t, "2", l.Snapshot()[0].ID)
}

func TestChatLog_DefaultLimit(t *testing.T) {
	l := NewChatLog(0)
	for i := 0; i < DefaultChatHistory+10; i++ {
		l.Append(domain.ChatMessage{ID: fmt.Sprint(i)})
	}
	assert.Equal(t, DefaultChatHistory, l.Len())
}
