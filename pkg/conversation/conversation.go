package conversation

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const summaryMaxLength = 50

// idCounter distinguishes conversations created within the same wall-clock
// second (and the same migration batch).
var idCounter int64

// Conversation is an ordered, persisted sequence of messages sharing one
// identity and summary. The message ordering is append-order and is the sole
// source of truth for turn counting and summary derivation.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt string    `json:"created_at" yaml:"created_at"`
	UpdatedAt string    `json:"updated_at" yaml:"updated_at"`
	Summary   string    `json:"summary" yaml:"summary"`
	Messages  []Message `json:"messages" yaml:"messages"`
}

// NewID returns an opaque conversation id derived from wall-clock time and a
// process-wide counter, collision-resistant within a single process.
func NewID() string {
	return fmt.Sprintf("%d-%d", time.Now().UTC().Unix(), atomic.AddInt64(&idCounter, 1))
}

// Summarize derives a conversation summary from the first user message:
// at most 50 characters, with an ellipsis when truncated. Returns the empty
// string when no user message exists yet.
func Summarize(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		s := strings.Join(strings.Fields(m.Content), " ")
		runes := []rune(s)
		if len(runes) > summaryMaxLength {
			return string(runes[:summaryMaxLength]) + "..."
		}
		return s
	}
	return ""
}

// UserTurnCount counts user-role messages, which is the definition of a turn
// count (the assistant reply of the most recent turn may still be absent).
func UserTurnCount(messages []Message) int {
	count := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			count++
		}
	}
	return count
}
