package conversation

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleError marks a failed turn. Error messages render inline in
	// conversation order like any other message, but they are never sent to
	// the completion API.
	RoleError Role = "error"
)

// Message is a single entry in a conversation log. Messages are append-only;
// the only removal is the rollback of a trailing user message after a failed
// or cancelled request.
type Message struct {
	Role      Role   `json:"role" yaml:"role"`
	Content   string `json:"content" yaml:"content"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: Timestamp(),
	}
}

// Timestamp returns the current time as an ISO-8601 UTC string, the only
// time format that appears in persisted state.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (m Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}
