package prompt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/conversation"
)

func makePairs(n int) []conversation.Message {
	msgs := make([]conversation.Message, 0, 2*n)
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			conversation.NewMessage(conversation.RoleUser, fmt.Sprintf("question %d", i)),
			conversation.NewMessage(conversation.RoleAssistant, fmt.Sprintf("answer %d", i)),
		)
	}
	return msgs
}

func TestRenderSystemPromptSubstitutesAllOccurrences(t *testing.T) {
	template := "{{preprompt}} middle {{context}} and again {{preprompt}} {{context}}"
	out := RenderSystemPrompt(template, "PRE", "CTX")
	assert.Equal(t, "PRE middle CTX and again PRE CTX", out)
}

func TestRenderSystemPromptEmptyValues(t *testing.T) {
	out := RenderSystemPrompt("a {{preprompt}} b {{context}} c", "", "")
	assert.Equal(t, "a  b  c", out)
}

func TestPruneTurnsKeepsShortLogsIntact(t *testing.T) {
	msgs := makePairs(3)
	pruned := PruneTurns(msgs, 10)
	assert.Equal(t, msgs, pruned)
}

func TestPruneTurnsDropsOldestPairs(t *testing.T) {
	msgs := makePairs(12)
	pruned := PruneTurns(msgs, 10)

	require.Len(t, pruned, 20)
	assert.Equal(t, "question 2", pruned[0].Content, "oldest pairs drop from the head")
	assert.Equal(t, msgs[len(msgs)-20:], pruned, "result is a contiguous suffix")
}

func TestPruneTurnsKeepsTrailingUnansweredUserMessage(t *testing.T) {
	msgs := append(makePairs(10), conversation.NewMessage(conversation.RoleUser, "pending"))
	pruned := PruneTurns(msgs, 10)

	assert.Equal(t, "pending", pruned[len(pruned)-1].Content)
	assert.LessOrEqual(t, conversation.UserTurnCount(pruned), 10)
}

func TestPruneTurnsNonPositiveWindowIsIgnored(t *testing.T) {
	msgs := makePairs(5)
	assert.Equal(t, msgs, PruneTurns(msgs, 0))
	assert.Equal(t, msgs, PruneTurns(msgs, -3))
}

func TestAssembleBoundsMessages(t *testing.T) {
	// property: at most 2T+1 messages from the log plus the system message
	for _, pairs := range []int{0, 1, 5, 10, 11, 25} {
		msgs := append(makePairs(pairs), conversation.NewMessage(conversation.RoleUser, "tail"))
		a := NewAssembler(WithMaxTurns(10))

		out := a.Assemble(msgs, "", "")
		assert.LessOrEqual(t, len(out), 2*10+1+1, "pairs=%d", pairs)
		assert.Equal(t, conversation.RoleSystem, out[0].Role)
	}
}

func TestAssembleElevenPairsScenario(t *testing.T) {
	msgs := makePairs(11)
	a := NewAssembler(WithMaxTurns(10))

	out := a.Assemble(msgs, "be nice", "cwd: /tmp")

	require.Len(t, out, 21, "system message plus the last 10 pairs")
	assert.Equal(t, conversation.RoleSystem, out[0].Role)
	assert.Contains(t, out[0].Content, "be nice")
	assert.Contains(t, out[0].Content, "cwd: /tmp")
	assert.Equal(t, "question 1", out[1].Content, "oldest pair dropped")
	assert.Equal(t, "answer 10", out[20].Content)
}

func TestAssembleFiltersErrorMessages(t *testing.T) {
	msgs := []conversation.Message{
		conversation.NewMessage(conversation.RoleUser, "question"),
		conversation.NewMessage(conversation.RoleError, "transport exploded"),
		conversation.NewMessage(conversation.RoleUser, "retry"),
	}
	a := NewAssembler()

	out := a.Assemble(msgs, "", "")
	require.Len(t, out, 3)
	for _, m := range out {
		assert.NotEqual(t, conversation.RoleError, m.Role)
	}
}

func TestConversationTokensSplitsByRole(t *testing.T) {
	msgs := []conversation.Message{
		conversation.NewMessage(conversation.RoleUser, "how do I list files on linux?"),
		conversation.NewMessage(conversation.RoleAssistant, "use ls, or ls -la for details"),
		conversation.NewMessage(conversation.RoleUser, "thanks"),
	}
	a := NewAssembler()

	total, perRole := a.ConversationTokens(msgs)
	require.Greater(t, total, 0)
	assert.Greater(t, perRole[conversation.RoleUser], 0)
	assert.Greater(t, perRole[conversation.RoleAssistant], 0)
	assert.Equal(t, total, perRole[conversation.RoleUser]+perRole[conversation.RoleAssistant])
}

func TestConversationTokensEmptyConversation(t *testing.T) {
	total, perRole := NewAssembler().ConversationTokens(nil)
	assert.Equal(t, 0, total)
	assert.Empty(t, perRole)
}

func TestAssembleDoesNotMutateLog(t *testing.T) {
	msgs := makePairs(15)
	before := len(msgs)
	a := NewAssembler(WithMaxTurns(5))

	_ = a.Assemble(msgs, "", "")
	assert.Len(t, msgs, before, "pruning only affects the outbound request")
}
