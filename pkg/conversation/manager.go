package conversation

// Package conversation owns the active conversation of a panel session: its
// message log, its identity, and its persistence through a history store.
//
// The Manager is the only component that mutates the active message log while
// a session is open. Everything handed out for display is a read-only
// projection; the store owns the durable collection.

// Store is the part of the history store the manager needs: reading a stored
// conversation and upserting the active one.
type Store interface {
	SaveConversation(c *Conversation) error
	GetConversation(id string) (*Conversation, bool)
}

// LastActivePointer records which conversation was last active so a later
// session can resume it. Starting a new conversation clears it: explicit
// new-conversation intent supersedes restore.
type LastActivePointer interface {
	Record(id string)
	Clear()
}

// Manager defines high-level operations on the active conversation.
type Manager interface {
	ConversationID() string
	Messages() []Message
	MessageCount() int

	StartNew() error
	AddUserMessage(text string)
	AddAssistantMessage(text string)
	AddErrorMessage(text string)
	RollbackLastUserMessage() bool
	LoadConversation(id string) error
	PersistActive() error

	// Projection returns a deep copy of the active conversation for display.
	Projection() *Conversation
}
