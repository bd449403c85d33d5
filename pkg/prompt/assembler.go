package prompt

// Package prompt builds the outgoing message list for a turn. It prunes the
// conversation to a bounded turn window and renders the system message from a
// template, but never mutates the persisted log: pruning only affects what
// goes over the wire.

import (
	"strings"
	"sync"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

const (
	// PlaceholderPreprompt marks where the user-authored preamble goes in the
	// system template. Every occurrence is substituted.
	PlaceholderPreprompt = "{{preprompt}}"
	// PlaceholderContext marks where machine-gathered environment context goes.
	PlaceholderContext = "{{context}}"

	DefaultMaxTurns = 10

	DefaultSystemTemplate = `You are a helpful assistant embedded in an editor panel.
{{preprompt}}

Current environment:
{{context}}

Answer concisely. Prefer markdown for code and lists.`
)

// Message is an outbound request message: role and content only, stripped of
// timestamps and any other local bookkeeping.
type Message struct {
	Role    conversation.Role `json:"role"`
	Content string            `json:"content"`
}

// RenderSystemPrompt substitutes both placeholders by literal replacement,
// at every occurrence.
func RenderSystemPrompt(template, preprompt, envContext string) string {
	s := strings.ReplaceAll(template, PlaceholderPreprompt, preprompt)
	s = strings.ReplaceAll(s, PlaceholderContext, envContext)
	return s
}

// PruneTurns bounds the log to at most maxTurns turns, a turn being one user
// message (its assistant reply may be absent for the in-flight turn). When
// over the bound, messages are dropped from the head two at a time, a
// user+assistant pair, until the user-message count fits. The result is
// always a contiguous suffix of the input; a trailing unanswered user message
// is never dropped.
func PruneTurns(messages []conversation.Message, maxTurns int) []conversation.Message {
	if maxTurns < 1 {
		log.Warn().Int("max_turns", maxTurns).Msg("ignoring non-positive turn window")
		return messages
	}

	pruned := messages
	for conversation.UserTurnCount(pruned) > maxTurns && len(pruned) >= 2 {
		pruned = pruned[2:]
	}
	return pruned
}

type Assembler struct {
	MaxTurns int
	Template string

	codecOnce sync.Once
	codec     tokenizer.Codec
}

type AssemblerOption func(*Assembler)

func WithMaxTurns(maxTurns int) AssemblerOption {
	return func(a *Assembler) {
		if maxTurns > 0 {
			a.MaxTurns = maxTurns
		}
	}
}

func WithTemplate(template string) AssemblerOption {
	return func(a *Assembler) {
		if template != "" {
			a.Template = template
		}
	}
}

func NewAssembler(options ...AssemblerOption) *Assembler {
	ret := &Assembler{
		MaxTurns: DefaultMaxTurns,
		Template: DefaultSystemTemplate,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Assemble produces the outbound request: the templated system message
// followed by the pruned conversation mapped to role/content pairs. Error
// messages are part of the conversation display but are not a wire role, so
// they are filtered from the outbound list.
func (a *Assembler) Assemble(messages []conversation.Message, preprompt, envContext string) []Message {
	pruned := PruneTurns(messages, a.MaxTurns)

	out := make([]Message, 0, len(pruned)+1)
	out = append(out, Message{
		Role:    conversation.RoleSystem,
		Content: RenderSystemPrompt(a.Template, preprompt, envContext),
	})
	for _, m := range pruned {
		if m.Role == conversation.RoleError {
			continue
		}
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}

	log.Debug().
		Int("log_messages", len(messages)).
		Int("outbound_messages", len(out)).
		Int("estimated_tokens", a.EstimateTokens(out)).
		Msg("assembled chat completion request")

	return out
}

// EstimateTokens returns a cl100k token estimate for the outbound messages,
// or -1 when the tokenizer is unavailable. The estimate is informational; the
// hard bound on the request is the turn window, not a token budget.
func (a *Assembler) EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		n := a.encodeLen(m.Content)
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}

// ConversationTokens estimates cl100k token counts for a stored conversation,
// in total and per role. The total is -1 when the tokenizer is unavailable.
func (a *Assembler) ConversationTokens(messages []conversation.Message) (int, map[conversation.Role]int) {
	perRole := map[conversation.Role]int{}
	total := 0
	for _, m := range messages {
		n := a.encodeLen(m.Content)
		if n < 0 {
			return -1, perRole
		}
		total += n
		perRole[m.Role] += n
	}
	return total, perRole
}

func (a *Assembler) encodeLen(content string) int {
	a.codecOnce.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("could not initialize tokenizer for estimates")
			return
		}
		a.codec = codec
	})
	if a.codec == nil {
		return -1
	}

	ids, _, err := a.codec.Encode(content)
	if err != nil {
		return -1
	}
	return len(ids)
}
