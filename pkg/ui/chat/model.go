package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatwire/pkg/channel"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const mouseScrollLines = 3

type chatMessage struct {
	role    string
	content string
	buttons []channel.Button
}

type fragmentMsg struct {
	fragment channel.Fragment
}

type replyDoneMsg struct {
	err error
}

type bootTickMsg struct{}

type model struct {
	ctx    context.Context
	client Client

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	buttons   []channel.Button
	replies   <-chan tea.Msg
	width     int
	height    int
	isReady   bool
	isLoading bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool
	runtime   RuntimeInfo
	received  int
}

func newModel(ctx context.Context, client Client, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something, or pick a button number..."
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		client:    client,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		booting:   true,
		followLog: true,
		runtime:   info,
	}
}

func (m *model) Init() tea.Cmd {
	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		return m, textinput.Blink
	case tea.MouseMsg:
		if !m.booting && m.handleViewportMouse(typed) {
			return m, nil
		}
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting {
			return m, nil
		}
		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			return m, m.submit()
		}
	case fragmentMsg:
		m.addFragment(typed.fragment)
		return m, waitForReply(m.replies)
	case replyDoneMsg:
		m.isLoading = false
		m.replies = nil
		if typed.err != nil {
			m.lastErr = typed.err.Error()
			m.messages = append(m.messages, chatMessage{role: "error", content: typed.err.Error()})
		} else if m.received == 0 {
			m.messages = append(m.messages, chatMessage{role: "system", content: "(no reply)"})
		}
		m.refreshViewport(false)
		return m, nil
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input line. A number matching a button of the latest reply sends
// that button's payload instead of the typed text.
func (m *model) submit() tea.Cmd {
	if m.isLoading {
		return nil
	}

	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if isExitCommand(text) {
		return tea.Quit
	}

	shown, sent := text, text
	if button, ok := selectButton(m.buttons, text); ok {
		shown = button.Title
		sent = buttonPayload(button)
	}

	m.lastErr = ""
	m.buttons = nil
	m.received = 0
	m.messages = append(m.messages, chatMessage{role: "user", content: shown})
	m.input.SetValue("")
	m.isLoading = true
	m.followLog = true
	m.refreshViewport(true)

	m.replies = startReply(m.ctx, m.client, m.runtime.SenderID, sent)
	return tea.Batch(m.spinner.Tick, waitForReply(m.replies))
}

func (m *model) addFragment(fragment channel.Fragment) {
	m.received++
	m.messages = append(m.messages, chatMessage{
		role:    "bot",
		content: renderFragment(fragment),
		buttons: fragment.Buttons,
	})
	if len(fragment.Buttons) > 0 {
		m.buttons = fragment.Buttons
	}
	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("📟 Chatwire Console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"gateway:%s · sender:%s · turns:%d",
		displayOrNA(m.runtime.URL),
		displayOrNA(m.runtime.SenderID),
		conversationTurns(m.messages),
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  1-9 pick button  ·  PgUp/PgDn scroll  ·  🛑 Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ waiting for the bot...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 last message failed - try again")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("👤 You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	var sections []string
	for _, item := range m.messages {
		switch item.role {
		case "user":
			sections = append(sections, m.renderCard(
				m.theme.userTitle.Render("[ 👤 ]"),
				m.theme.userBox.Width(m.viewport.Width).Render(item.content),
			))
		case "bot":
			body := item.content
			if len(item.buttons) > 0 {
				body = strings.TrimSpace(body + "\n" + m.theme.buttonBox.Render(renderButtons(item.buttons)))
			}
			sections = append(sections, m.renderCard(
				m.theme.botTitle.Render("[ 🤖 ]"),
				m.theme.botBox.Width(m.viewport.Width).Render(body),
			))
		case "system":
			sections = append(sections, m.theme.hint.Render(item.content))
		case "error":
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("[ERROR]"),
				m.theme.errorBox.Width(m.viewport.Width).Render(item.content),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("📟 Chatwire Console")
	meta := m.theme.headerMeta.Render("connecting")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := range count {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("✅ ready"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		m.followLog = m.viewport.AtBottom()
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls on wheel events. Scrolling up stops following new
// replies until the view is back at the bottom.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(mouseScrollLines)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(mouseScrollLines)
		m.followLog = m.viewport.AtBottom()
		return true
	default:
		return false
	}
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] resolving gateway",
		"[BOOT] opening rest channel",
		"[BOOT] waiting for fragments",
	}
}

// startReply streams the reply in the background and delivers each fragment, then a
// replyDoneMsg, on the returned channel.
func startReply(ctx context.Context, client Client, senderID, text string) <-chan tea.Msg {
	replies := make(chan tea.Msg, 16)
	go func() {
		defer close(replies)
		err := client.Stream(ctx, senderID, text, func(fragment channel.Fragment) error {
			select {
			case replies <- fragmentMsg{fragment: fragment}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		select {
		case replies <- replyDoneMsg{err: err}:
		case <-ctx.Done():
		}
	}()

	return replies
}

func waitForReply(replies <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-replies
		if !ok {
			return replyDoneMsg{}
		}
		return msg
	}
}

// selectButton resolves a typed 1-based button number.
func selectButton(buttons []channel.Button, input string) (channel.Button, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(buttons) {
		return channel.Button{}, false
	}
	return buttons[n-1], true
}

func buttonPayload(button channel.Button) string {
	if button.Payload != "" {
		return button.Payload
	}
	return button.Title
}

// renderFragment turns one fragment into plain text; buttons are rendered separately.
func renderFragment(fragment channel.Fragment) string {
	var lines []string
	if text := strings.TrimSpace(fragment.Text); text != "" {
		lines = append(lines, text)
	}
	if fragment.Image != "" {
		lines = append(lines, "🖼  "+fragment.Image)
	}
	if fragment.Attachment != nil {
		lines = append(lines, "📎 "+describeAttachment(fragment.Attachment))
	}

	return strings.Join(lines, "\n")
}

func renderButtons(buttons []channel.Button) string {
	lines := make([]string, 0, len(buttons))
	for idx, button := range buttons {
		lines = append(lines, fmt.Sprintf("[%d] %s", idx+1, button.Title))
	}
	return strings.Join(lines, "\n")
}

func describeAttachment(attachment any) string {
	if s, ok := attachment.(string); ok {
		return s
	}
	raw, err := json.Marshal(attachment)
	if err != nil {
		return fmt.Sprint(attachment)
	}
	return string(raw)
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func conversationTurns(messages []chatMessage) int {
	count := 0
	for _, message := range messages {
		if message.role == "user" {
			count++
		}
	}

	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
