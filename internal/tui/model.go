package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/normanking/switchboard/internal/assistant"
	"github.com/normanking/switchboard/internal/dispatch"
)

// Asker answers queries and manages remembered answers.
type Asker interface {
	Ask(ctx context.Context, query string) (assistant.Reply, error)
	ForgetAll(ctx context.Context) (int64, error)
}

// Registry is the dispatcher surface behind the slash commands.
type Registry interface {
	Handlers() []dispatch.HandlerInfo
	Summary() dispatch.Summary
	ClearCaches() int
}

// Role identifies who wrote a chat entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// ChatMessage is one entry in the transcript.
type ChatMessage struct {
	Role      Role
	Content   string
	Meta      string
	Timestamp time.Time
}

// Options configures the chat model.
type Options struct {
	// Plain disables markdown rendering of replies.
	Plain bool

	// QueryTimeout bounds each Ask. Zero means no bound.
	QueryTimeout time.Duration
}

// Model is the chat UI state.
type Model struct {
	asker    Asker
	registry Registry
	opts     Options

	width  int
	height int
	ready  bool
	busy   bool

	messages []ChatMessage
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	renderer *glamour.TermRenderer

	styles Styles
	keys   KeyMap
}

// Messages for tea.Msg.

// replyMsg carries the result of an Ask.
type replyMsg struct {
	reply assistant.Reply
	err   error
}

// systemMsg is a line from a slash command that ran asynchronously.
type systemMsg struct {
	text string
	err  error
}

// NewModel creates the chat model.
func NewModel(asker Asker, registry Registry, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask something, or /help"
	ti.Prompt = "› "
	ti.CharLimit = 2048
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := DefaultStyles()
	sp.Style = styles.Spinner

	return Model{
		asker:    asker,
		registry: registry,
		opts:     opts,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
		help:     help.New(),
		styles:   styles,
		keys:     DefaultKeyMap(),
		messages: []ChatMessage{{
			Role:      RoleSystem,
			Content:   "Type a question. /help lists commands.",
			Timestamp: time.Now(),
		}},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m = m.updateDimensions()
		m.refresh()
		return m, nil

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.appendMessage(RoleError, msg.err.Error(), "")
			return m, nil
		}
		m.appendReply(msg.reply)
		if msg.reply.Farewell {
			return m, tea.Quit
		}
		return m, nil

	case systemMsg:
		if msg.err != nil {
			m.appendMessage(RoleError, msg.err.Error(), "")
		} else {
			m.appendMessage(RoleSystem, msg.text, "")
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.ClearView):
		m.messages = nil
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Send):
		return m.handleSend()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSend() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" || m.busy {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(content, "/") {
		return m.handleCommand(content)
	}

	m.appendMessage(RoleUser, content, "")
	m.busy = true
	return m, tea.Batch(m.ask(content), m.spinner.Tick)
}

// ask runs the query off the UI goroutine.
func (m Model) ask(query string) tea.Cmd {
	asker, timeout := m.asker, m.opts.QueryTimeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		reply, err := asker.Ask(ctx, query)
		return replyMsg{reply: reply, err: err}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SLASH COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

const commandHelp = `Commands:
  /handlers  list registered handlers
  /status    usage summary
  /clear     empty the handler caches
  /forget    drop remembered answers
  /quit      leave`

func (m Model) handleCommand(line string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.Fields(line)[0])
	m.appendMessage(RoleUser, line, "")

	switch cmd {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.appendMessage(RoleSystem, commandHelp, "")

	case "/handlers":
		var sb strings.Builder
		for i, h := range m.registry.Handlers() {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, h)
		}
		m.appendMessage(RoleSystem, strings.TrimRight(sb.String(), "\n"), "")

	case "/status":
		m.appendMessage(RoleSystem, m.registry.Summary().String(), "")

	case "/clear":
		n := m.registry.ClearCaches()
		m.appendMessage(RoleSystem, fmt.Sprintf("Cleared %s cached %s.", humanize.Comma(int64(n)), plural(n, "response", "responses")), "")

	case "/forget":
		asker := m.asker
		return m, func() tea.Msg {
			n, err := asker.ForgetAll(context.Background())
			if err != nil {
				return systemMsg{err: err}
			}
			return systemMsg{text: fmt.Sprintf("Forgot %s remembered %s.", humanize.Comma(n), plural(int(n), "answer", "answers"))}
		}

	default:
		m.appendMessage(RoleError, fmt.Sprintf("unknown command %s, try /help", cmd), "")
	}
	return m, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRANSCRIPT
// ═══════════════════════════════════════════════════════════════════════════════

func (m *Model) appendMessage(role Role, content, meta string) {
	m.messages = append(m.messages, ChatMessage{
		Role:      role,
		Content:   content,
		Meta:      meta,
		Timestamp: time.Now(),
	})
	m.refresh()
}

func (m *Model) appendReply(r assistant.Reply) {
	role := RoleAssistant
	if r.Error != "" {
		role = RoleError
	}
	m.appendMessage(role, r.Text, replyMeta(r))
}

func replyMeta(r assistant.Reply) string {
	parts := []string{r.Handler}
	switch {
	case r.Source == assistant.SourcePersisted:
		parts = append(parts, "remembered")
	case r.Cached:
		parts = append(parts, "cached")
	}
	if r.Source == assistant.SourceDispatch {
		parts = append(parts, fmt.Sprintf("%.0f%% confident", r.Confidence*100))
		parts = append(parts, fmt.Sprintf("%.1fms", r.LatencyMs))
	}
	return strings.Join(parts, " · ")
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderChat())
	m.viewport.GotoBottom()
}

func (m Model) renderChat() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.Role {
		case RoleUser:
			sb.WriteString(m.styles.UserLabel.Render("You: "))
			sb.WriteString(msg.Content)
		case RoleAssistant:
			sb.WriteString(m.styles.AssistantLabel.Render("Switchboard:"))
			sb.WriteString("\n")
			sb.WriteString(m.renderMarkdown(msg.Content))
		case RoleSystem:
			sb.WriteString(m.styles.System.Render(msg.Content))
		case RoleError:
			sb.WriteString(m.styles.Error.Render("✗ " + msg.Content))
		}
		if msg.Meta != "" {
			sb.WriteString("\n")
			sb.WriteString(m.styles.Meta.Render(msg.Meta))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// renderMarkdown renders content with glamour, falling back to plain text.
func (m Model) renderMarkdown(content string) string {
	if m.opts.Plain || m.renderer == nil || strings.TrimSpace(content) == "" {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}

// ═══════════════════════════════════════════════════════════════════════════════
// LAYOUT
// ═══════════════════════════════════════════════════════════════════════════════

func (m Model) updateDimensions() Model {
	headerHeight := 1
	inputHeight := 1
	footerHeight := 1
	padding := 2

	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-headerHeight-inputHeight-footerHeight-padding, 1)
	m.input.Width = max(m.width-4, 10)
	m.help.Width = m.width

	if !m.opts.Plain {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		if err == nil {
			m.renderer = renderer
		}
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}

	header := m.styles.Header.Render("switchboard") +
		m.styles.HeaderDim.Render(fmt.Sprintf("%d handlers", len(m.registry.Handlers())))

	input := m.input.View()
	if m.busy {
		input = m.spinner.View() + m.styles.System.Render(" thinking...")
	}

	footer := m.styles.Footer.Render(m.help.ShortHelpView(m.keys.ShortHelp()))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		"",
		input,
		footer,
	)
}
