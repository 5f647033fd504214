// Package tui is the terminal hosting context for a conversation. It
// implements the router's Surface interface and owns nothing of the
// protocol itself: every state transition comes out of the router.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"flowchat/config"
	"flowchat/internal/channel"
	"flowchat/internal/conversation"
	"flowchat/internal/router"
)

type frameMsg []byte

type channelLostMsg struct{ err error }

type settingsChangedMsg struct{ settings *config.Settings }

// viewState collects the Surface calls made by the router during one
// event so the model applies them after the router returns. Only the
// UI goroutine touches it.
type viewState struct {
	refresh     bool
	navigateTo  string
	reload      bool
	removedTask string
}

func (v *viewState) AppendMessage(conversation.Message)   { v.refresh = true }
func (v *viewState) PruneMessages()                       { v.refresh = true }
func (v *viewState) SetBusy(bool)                         {}
func (v *viewState) SetToolNotices([]router.ToolNotice)   {}
func (v *viewState) SetSuggestedActions([]string)         {}
func (v *viewState) NavigateHome(target string)           { v.navigateTo = target }
func (v *viewState) ReloadView()                          { v.reload = true }
func (v *viewState) RemoveTask(taskID string)             { v.removedTask = taskID }

// Options wires a connected channel into the TUI.
type Options struct {
	Client       *channel.Client
	Mode         channel.Mode
	Scope        string
	Features     config.Features
	Ack          config.CompletionAck
	Placeholders []string
	SaveToken    router.TokenSink
	Recorder     router.Recorder
	Logger       zerolog.Logger
}

// Model is the Bubble Tea model for one conversation.
type Model struct {
	client *channel.Client
	router *router.Router
	view   *viewState
	sched  *teaScheduler
	logger zerolog.Logger

	mode  channel.Mode
	scope string

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	rotator  *placeholderRotator
	renderer *conversation.Renderer

	width  int
	height int
	ready  bool

	selectedAction int
	status         string
	lost           bool
	quitting       bool
}

func newModel(opts Options) *Model {
	view := &viewState{}
	sched := newTeaScheduler()

	r := router.New(router.Options{
		Surface:   view,
		Scheduler: sched,
		Send:      opts.Client.Send,
		Features:  opts.Features,
		Ack:       opts.Ack,
		SaveToken: opts.SaveToken,
		Recorder:  opts.Recorder,
		Logger:    opts.Logger,
	})

	rotator := newPlaceholderRotator(opts.Placeholders)

	input := textinput.New()
	input.Placeholder = rotator.current()
	input.Prompt = inputPromptStyle.Render("> ")
	input.CharLimit = 2000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = statusStyle

	return &Model{
		client:         opts.Client,
		router:         r,
		view:           view,
		sched:          sched,
		logger:         opts.Logger.With().Str("component", "tui").Logger(),
		mode:           opts.Mode,
		scope:          opts.Scope,
		input:          input,
		spin:           spin,
		rotator:        rotator,
		renderer:       conversation.NewRenderer(80),
		selectedAction: -1,
	}
}

func waitForFrame(client *channel.Client) tea.Cmd {
	return func() tea.Msg {
		data, ok := <-client.Frames()
		if !ok {
			return channelLostMsg{err: client.Err()}
		}
		return frameMsg(data)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spin.Tick,
		placeholderTick(),
		waitForFrame(m.client),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case frameMsg:
		m.router.HandleRaw(msg)
		cmds = append(cmds, m.apply()...)
		cmds = append(cmds, waitForFrame(m.client))

	case channelLostMsg:
		m.lost = true
		m.router.HandleChannelLost(msg.err)
		cmds = append(cmds, m.apply()...)

	case scheduledMsg:
		msg.fn()
		cmds = append(cmds, m.apply()...)

	case placeholderTickMsg:
		m.rotator.advance()
		m.input.Placeholder = m.rotator.current()
		cmds = append(cmds, placeholderTick())

	case settingsChangedMsg:
		m.rotator = newPlaceholderRotator(msg.settings.Placeholders)
		m.input.Placeholder = m.rotator.current()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		cmd, handled := m.handleKey(msg)
		cmds = append(cmds, cmd)
		if !handled {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}
		cmds = append(cmds, m.apply()...)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		m.client.Close()
		return tea.Quit, true

	case "tab":
		if actions := m.router.Actions(); len(actions) > 0 {
			m.selectedAction = (m.selectedAction + 1) % len(actions)
		}
		return nil, true

	case "shift+tab":
		if actions := m.router.Actions(); len(actions) > 0 {
			if m.selectedAction <= 0 {
				m.selectedAction = len(actions) - 1
			} else {
				m.selectedAction--
			}
		}
		return nil, true

	case "enter":
		return m.submit(), true

	default:
		// Typing drops the suggested-action highlight.
		m.selectedAction = -1
		return nil, false
	}
}

func (m *Model) submit() tea.Cmd {
	if m.lost {
		m.status = "Connection lost. Restart flowchat to continue."
		return nil
	}

	if actions := m.router.Actions(); m.selectedAction >= 0 && m.selectedAction < len(actions) {
		label := actions[m.selectedAction]
		m.selectedAction = -1
		if err := m.router.ChooseAction(label); err != nil {
			m.fail("send failed", err)
		}
		return nil
	}

	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return nil
	}
	m.input.Reset()

	if strings.HasPrefix(value, "/") {
		return m.runCommand(value)
	}

	m.status = ""
	if err := m.router.SubmitPrompt(value); err != nil {
		m.fail("send failed", err)
	}
	return nil
}

func (m *Model) runCommand(value string) tea.Cmd {
	fields := strings.Fields(value)
	switch fields[0] {
	case "/quit":
		m.quitting = true
		m.client.Close()
		return tea.Quit
	case "/complete":
		if len(fields) != 2 {
			m.status = "usage: /complete <task-id>"
			return nil
		}
		if err := m.router.CompleteTask(fields[1]); err != nil {
			m.fail("completion failed", err)
			return nil
		}
		m.status = fmt.Sprintf("Completing task %s...", fields[1])
		return nil
	default:
		m.status = fmt.Sprintf("unknown command %q", fields[0])
		return nil
	}
}

func (m *Model) fail(what string, err error) {
	m.logger.Error().Err(err).Msg(what)
	m.status = errorStyle.Render(fmt.Sprintf("%s: %v", what, err))
}

// apply drains the Surface effects recorded during the last router
// call and turns them into view updates.
func (m *Model) apply() []tea.Cmd {
	var cmds []tea.Cmd

	if m.view.refresh {
		m.view.refresh = false
		m.renderConversation()
	}

	if m.view.removedTask != "" {
		m.status = fmt.Sprintf("Task %s completed ✓", m.view.removedTask)
		m.view.removedTask = ""
	}

	if m.view.reload {
		m.view.reload = false
		m.status = "View reloaded"
		m.renderConversation()
	}

	if m.view.navigateTo != "" {
		target := m.view.navigateTo
		m.view.navigateTo = ""
		m.quitting = true
		m.status = fmt.Sprintf("Logged in — run `flowchat chat` to open your tasks (%s)", target)
		m.client.Close()
		cmds = append(cmds, tea.Quit)
	}

	if m.selectedAction >= len(m.router.Actions()) {
		m.selectedAction = -1
	}

	return cmds
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	contentWidth := width - 2
	if contentWidth < 10 {
		contentWidth = 10
	}
	m.renderer.SetWidth(contentWidth)

	viewportHeight := height - 7
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
	}
	m.input.Width = width - 4
	m.renderConversation()
}

func (m *Model) renderConversation() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, msg := range m.router.Log().Messages() {
		label := systemLabelStyle.Render("flowstate")
		if msg.Origin == conversation.OriginUser {
			label = userLabelStyle.Render("you")
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(m.renderer.Render(msg.Text))
		b.WriteString("\n\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if m.quitting {
		if m.status != "" {
			return m.status + "\n"
		}
		return ""
	}
	if !m.ready {
		return "starting..."
	}

	title := "flowchat — " + string(m.mode)
	if m.scope != "" {
		title += " · project " + m.scope
	}

	sections := []string{
		headerStyle.Render(title),
		m.viewport.View(),
	}

	if notice := m.noticeView(); notice != "" {
		sections = append(sections, notice)
	}
	if actions := m.actionsView(); actions != "" {
		sections = append(sections, actions)
	}

	sections = append(sections, m.statusView(), m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) noticeView() string {
	notices := m.router.Notices()
	if len(notices) == 0 {
		return ""
	}
	parts := make([]string, 0, len(notices))
	for _, n := range notices {
		style := noticeStyle
		if n.Fading {
			style = noticeFadingStyle
		}
		parts = append(parts, style.Render("⚙ "+n.Text))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) actionsView() string {
	actions := m.router.Actions()
	if len(actions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(actions))
	for i, label := range actions {
		style := actionStyle
		if i == m.selectedAction {
			style = actionSelectedStyle
		}
		parts = append(parts, style.Render(label))
	}
	return statusStyle.Render("suggestions:") + " " + strings.Join(parts, " ")
}

func (m *Model) statusView() string {
	switch {
	case m.lost:
		return errorStyle.Render("● disconnected")
	case m.router.Busy():
		return m.spin.View() + statusStyle.Render(" thinking...")
	case m.status != "":
		return statusStyle.Render(m.status)
	default:
		return statusStyle.Render("● connected")
	}
}
