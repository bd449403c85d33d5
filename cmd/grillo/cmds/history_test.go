package cmds

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/history"
)

func newPopulatedStore(t *testing.T) *history.Store {
	t.Helper()
	store := history.NewStore(filepath.Join(t.TempDir(), "history.json"))
	for _, id := range []string{"oldest", "middle", "newest"} {
		require.NoError(t, store.SaveConversation(&conversation.Conversation{
			ID: id,
			Messages: []conversation.Message{
				conversation.NewMessage(conversation.RoleUser, "prompt for "+id),
				conversation.NewMessage(conversation.RoleAssistant, "answer for "+id),
			},
		}))
	}
	return store
}

func TestLookupConversationByID(t *testing.T) {
	store := newPopulatedStore(t)

	c, err := lookupConversation(store, "middle", false)
	require.NoError(t, err)
	assert.Equal(t, "middle", c.ID)

	_, err = lookupConversation(store, "missing", false)
	assert.Error(t, err)
}

func TestLookupConversationByIndex(t *testing.T) {
	store := newPopulatedStore(t)

	c, err := lookupConversation(store, "1", true)
	require.NoError(t, err)
	assert.Equal(t, "newest", c.ID, "index 1 is the most recently saved")

	c, err = lookupConversation(store, "3", true)
	require.NoError(t, err)
	assert.Equal(t, "oldest", c.ID)

	_, err = lookupConversation(store, "0", true)
	assert.Error(t, err)
	_, err = lookupConversation(store, "4", true)
	assert.Error(t, err)
	_, err = lookupConversation(store, "notanumber", true)
	assert.Error(t, err)
}
