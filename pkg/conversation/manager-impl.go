package conversation

import (
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ManagerImpl struct {
	store   Store
	pointer LastActivePointer

	conversationID string
	createdAt      string
	messages       []Message
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

func WithStore(store Store) ManagerOption {
	return func(m *ManagerImpl) {
		m.store = store
	}
}

func WithLastActivePointer(pointer LastActivePointer) ManagerOption {
	return func(m *ManagerImpl) {
		m.pointer = pointer
	}
}

func WithMessages(messages ...Message) ManagerOption {
	return func(m *ManagerImpl) {
		m.messages = append(m.messages, messages...)
	}
}

func NewManager(options ...ManagerOption) *ManagerImpl {
	ret := &ManagerImpl{}
	for _, option := range options {
		option(ret)
	}

	if ret.conversationID == "" {
		ret.conversationID = NewID()
		ret.createdAt = Timestamp()
	}

	return ret
}

func (m *ManagerImpl) ConversationID() string {
	return m.conversationID
}

func (m *ManagerImpl) Messages() []Message {
	return m.messages
}

func (m *ManagerImpl) MessageCount() int {
	return len(m.messages)
}

// StartNew persists the current conversation if it has any messages, then
// switches to a fresh id and empty log. The last-active pointer is cleared
// so that restore logic does not resurrect the conversation we just left.
func (m *ManagerImpl) StartNew() error {
	if len(m.messages) > 0 {
		if err := m.PersistActive(); err != nil {
			return errors.Wrap(err, "could not persist conversation before starting a new one")
		}
	}

	m.conversationID = NewID()
	m.createdAt = Timestamp()
	m.messages = nil

	if m.pointer != nil {
		m.pointer.Clear()
	}

	log.Debug().Str("conversation_id", m.conversationID).Msg("started new conversation")
	return nil
}

func (m *ManagerImpl) AddUserMessage(text string) {
	m.append(NewMessage(RoleUser, text))
}

func (m *ManagerImpl) AddAssistantMessage(text string) {
	m.append(NewMessage(RoleAssistant, text))
}

func (m *ManagerImpl) AddErrorMessage(text string) {
	m.append(NewMessage(RoleError, text))
}

func (m *ManagerImpl) append(msg Message) {
	m.messages = append(m.messages, msg)
	log.Trace().
		Str("conversation_id", m.conversationID).
		Str("role", string(msg.Role)).
		Int("message_count", len(m.messages)).
		Msg("appended message")
}

// RollbackLastUserMessage removes the most recent message if and only if it
// is a user message. It is a no-op on an empty log or a non-user tail: with
// correct call sequencing that should not happen, but rollback must never
// remove an assistant or error message.
func (m *ManagerImpl) RollbackLastUserMessage() bool {
	if len(m.messages) == 0 {
		return false
	}
	if m.messages[len(m.messages)-1].Role != RoleUser {
		log.Warn().
			Str("conversation_id", m.conversationID).
			Str("tail_role", string(m.messages[len(m.messages)-1].Role)).
			Msg("rollback requested but tail is not a user message")
		return false
	}
	m.messages = m.messages[:len(m.messages)-1]
	return true
}

// LoadConversation replaces the active conversation with a stored one. On an
// unknown id it fails without touching the active state.
func (m *ManagerImpl) LoadConversation(id string) error {
	if m.store == nil {
		return errors.New("no history store configured")
	}
	c, ok := m.store.GetConversation(id)
	if !ok {
		return errors.Errorf("conversation %s not found in history", id)
	}

	m.conversationID = c.ID
	m.createdAt = c.CreatedAt
	m.messages = append([]Message(nil), c.Messages...)

	if m.pointer != nil {
		m.pointer.Record(c.ID)
	}

	log.Debug().Str("conversation_id", id).Int("message_count", len(m.messages)).Msg("loaded conversation")
	return nil
}

// PersistActive saves the active conversation through the history store. A
// conversation with zero messages is never persisted.
func (m *ManagerImpl) PersistActive() error {
	if len(m.messages) == 0 {
		return nil
	}
	if m.store == nil {
		return errors.New("no history store configured")
	}

	err := m.store.SaveConversation(&Conversation{
		ID:        m.conversationID,
		CreatedAt: m.createdAt,
		Messages:  m.messages,
	})
	if err != nil {
		return err
	}

	if m.pointer != nil {
		m.pointer.Record(m.conversationID)
	}
	return nil
}

func (m *ManagerImpl) Projection() *Conversation {
	return clone.Clone(&Conversation{
		ID:        m.conversationID,
		CreatedAt: m.createdAt,
		UpdatedAt: Timestamp(),
		Summary:   Summarize(m.messages),
		Messages:  m.messages,
	}).(*Conversation)
}
