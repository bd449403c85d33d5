package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/prompt"
)

func TestMakeCompletionRequestMapsRolesAndContent(t *testing.T) {
	messages := []prompt.Message{
		{Role: conversation.RoleSystem, Content: "instructions"},
		{Role: conversation.RoleUser, Content: "question"},
		{Role: conversation.RoleAssistant, Content: "answer"},
	}

	req := MakeCompletionRequest("gpt-4o-mini", 512, 0.5, messages)

	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 512, req.MaxTokens)
	assert.InDelta(t, 0.5, req.Temperature, 0.0001)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "question", req.Messages[1].Content)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	tp := NewOpenAITransport("key", "",
		WithModel("gpt-4o"),
		WithMaxTokens(2048),
		WithTemperature(0.1),
	)

	assert.Equal(t, "gpt-4o", tp.model)
	assert.Equal(t, 2048, tp.maxTokens)
	assert.InDelta(t, 0.1, tp.temperature, 0.0001)
}

func TestInvalidOptionsAreIgnored(t *testing.T) {
	tp := NewOpenAITransport("key", "",
		WithModel(""),
		WithMaxTokens(-1),
	)

	assert.Equal(t, DefaultModel, tp.model)
	assert.Equal(t, DefaultMaxTokens, tp.maxTokens)
}
