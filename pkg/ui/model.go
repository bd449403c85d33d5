package ui

// Package ui renders the assistant panel: a viewport with the conversation, a
// textarea for the prompt, and a spinner while a request is in flight. All
// engine mutation happens inside Update; the transport wait runs as a command
// and re-enters the loop as a message.

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/helpers"
	"github.com/go-go-golems/grillo/pkg/session"
)

// StreamEventMsg carries a lifecycle event forwarded from the event router
// into the tea loop.
type StreamEventMsg struct {
	Event events.Event
}

type resultMsg struct {
	requestID string
	result    helpers.Result[string]
}

type clearStatusMsg struct{}

const statusClearDelay = 3 * time.Second

type Model struct {
	controller *session.Controller
	manager    conversation.Manager

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	keymap   KeyMap
	style    *Style
	renderer *glamour.TermRenderer

	width  int
	height int
	status string
}

func NewModel(controller *session.Controller, manager conversation.Manager) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask something..."
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(80, 20)

	return Model{
		controller: controller,
		manager:    manager,
		viewport:   vp,
		textarea:   ta,
		spinner:    sp,
		keymap:     DefaultKeyMap(),
		style:      DefaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(msg.Width - 4)
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 5
		m.renderer = nil
		m.refreshViewport()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			if err := m.manager.PersistActive(); err != nil {
				log.Error().Err(err).Msg("could not persist conversation on quit")
			}
			return m, tea.Quit

		case key.Matches(msg, m.keymap.Submit):
			return m.submit()

		case key.Matches(msg, m.keymap.Cancel):
			if text, ok := m.controller.Cancel(); ok {
				m.textarea.SetValue(text)
				m.textarea.Focus()
				m.refreshViewport()
			}
			return m, nil

		case key.Matches(msg, m.keymap.NewConversation):
			if m.controller.Loading() {
				return m.setStatus("finish or cancel the current request first")
			}
			if err := m.manager.StartNew(); err != nil {
				return m.setStatus(err.Error())
			}
			m.refreshViewport()
			return m, nil

		case key.Matches(msg, m.keymap.ScrollUp):
			m.viewport.HalfViewUp()
			return m, nil

		case key.Matches(msg, m.keymap.ScrollDown):
			m.viewport.HalfViewDown()
			return m, nil
		}

	case resultMsg:
		outcome := m.controller.HandleResult(msg.requestID, msg.result)
		if outcome.Kind == session.OutcomeDiscarded {
			// late result of a cancelled request, nothing to show
			return m, nil
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		if outcome.Err != nil {
			return m.setStatus(outcome.Err.Error())
		}
		return m, nil

	case StreamEventMsg:
		// lifecycle events drive external listeners; the panel only surfaces
		// errors it has not already shown through the conversation log
		log.Trace().Str("type", string(msg.Event.Type)).Msg("panel received lifecycle event")
		return m, nil

	case spinner.TickMsg:
		if m.controller.Loading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case clearStatusMsg:
		m.status = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	req, err := m.controller.Submit(m.textarea.Value())
	if err != nil {
		return m.setStatus(err.Error())
	}

	m.textarea.Reset()
	m.refreshViewport()
	m.viewport.GotoBottom()

	wait := func() tea.Msg {
		return resultMsg{requestID: req.ID, result: req.Wait()}
	}
	return m, tea.Batch(wait, m.spinner.Tick)
}

func (m Model) setStatus(text string) (tea.Model, tea.Cmd) {
	m.status = text
	return m, tea.Tick(statusClearDelay, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderConversation())
}

func (m *Model) renderConversation() string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder
	for _, msg := range m.manager.Messages() {
		switch msg.Role {
		case conversation.RoleUser:
			sb.WriteString(m.style.UserLabel.Render("You"))
			sb.WriteString("\n")
			sb.WriteString(wordwrap.String(msg.Content, width-2))
		case conversation.RoleAssistant:
			sb.WriteString(m.style.AssistantText.Render(m.renderMarkdown(msg.Content, width)))
		case conversation.RoleError:
			sb.WriteString(m.style.ErrorText.Render(wordwrap.String(msg.Content, width-2)))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (m *Model) renderMarkdown(content string, width int) string {
	if m.renderer == nil {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-2),
		)
		if err != nil {
			log.Warn().Err(err).Msg("could not initialize markdown renderer")
			return wordwrap.String(content, width-2)
		}
		m.renderer = renderer
	}

	rendered, err := m.renderer.Render(content)
	if err != nil {
		return wordwrap.String(content, width-2)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.style.Title.Render("grillo"))
	sb.WriteString(m.style.StatusBar.Render(fmt.Sprintf("  %s · %d messages",
		m.manager.ConversationID(), m.manager.MessageCount())))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")

	if m.controller.Loading() {
		sb.WriteString(m.spinner.View())
		sb.WriteString(m.style.StatusBar.Render(" thinking... (esc to cancel)"))
		sb.WriteString("\n")
	} else if m.status != "" {
		sb.WriteString(m.style.ErrorText.Render(m.status))
		sb.WriteString("\n")
	}

	sb.WriteString(m.style.InputBorder.Render(m.textarea.View()))
	sb.WriteString("\n")
	sb.WriteString(m.style.Help.Render("enter send · esc cancel · ctrl+n new · ctrl+c quit"))

	return sb.String()
}
