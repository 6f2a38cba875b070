package chatui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"sdqueue/internal/chat"
	"sdqueue/internal/logging"
	"sdqueue/internal/models"
)

// Sender is the conversation the UI talks to.
type Sender interface {
	Send(ctx context.Context, text string) (chat.Reply, error)
}

// Enqueuer publishes finalized prompts.
type Enqueuer interface {
	Enqueue(ctx context.Context, prompt string, modelType models.ModelType) (string, error)
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

const maxTranscript = 500

type lineKind int

const (
	lineInfo lineKind = iota
	lineUser
	lineAssistant
	lineError
	lineOK
)

type transcriptLine struct {
	at   time.Time
	kind lineKind
	text string
}

type replyMsg struct {
	reply chat.Reply
	err   error
}

type enqueuedMsg struct {
	name string
	err  error
}

// Model is the bubbletea model of the prompt chat.
type Model struct {
	ctx     context.Context
	conv    Sender
	queue   Enqueuer
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	input   textinput.Model
	spinner spinner.Model
	waiting bool
	lines   []transcriptLine
	width   int
	height  int
}

// New builds the chat model. timeout bounds each backend call; zero means no extra bound.
func New(ctx context.Context, conv Sender, q Enqueuer, timeout time.Duration, logger zerolog.Logger) Model {
	input := textinput.New()
	input.Placeholder = "Enter your prompt or feedback (type 'exit' to quit)"
	input.Prompt = "> "
	input.CharLimit = 2048
	input.Width = 80
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		conv:    conv,
		queue:   q,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
		input:   input,
		spinner: sp,
	}
}

// Run starts the interactive program and blocks until the user quits.
func Run(ctx context.Context, conv Sender, q Enqueuer, timeout time.Duration, logger zerolog.Logger) error {
	p := tea.NewProgram(New(ctx, conv, q, timeout, logger), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = clampInt(msg.Width-4, 20, 160)
		return m, nil
	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.logger.Error().Err(msg.err).Msg("chat call failed")
			m = m.appendLine(lineError, "Error calling model: "+msg.err.Error())
			return m, nil
		}
		m = m.appendLine(lineAssistant, "Assistant: "+msg.reply.Text)
		if msg.reply.Finalized() {
			return m, m.enqueueCmd(msg.reply)
		}
		return m, nil
	case enqueuedMsg:
		if msg.err != nil {
			m.logger.Error().Err(msg.err).Msg("failed to enqueue prompt")
			m = m.appendLine(lineError, "Could not save prompt: "+msg.err.Error())
			return m, nil
		}
		m.logger.Info().Str("file", msg.name).Msg("prompt enqueued")
		m = m.appendLine(lineOK, "Prompt finalized and saved to queue folder.")
		return m, nil
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if strings.EqualFold(text, "exit") {
		m = m.appendLine(lineInfo, "Goodbye!")
		return m, tea.Quit
	}
	if m.waiting {
		return m, nil
	}
	m.input.Reset()
	m.waiting = true
	m = m.appendLine(lineUser, "You: "+text)
	return m, tea.Batch(m.spinner.Tick, m.sendCmd(text))
}

func (m Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		ctx := m.ctx
		if m.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		reply, err := m.conv.Send(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m Model) enqueueCmd(reply chat.Reply) tea.Cmd {
	return func() tea.Msg {
		name, err := m.queue.Enqueue(m.ctx, reply.Prompt, reply.Model())
		return enqueuedMsg{name: name, err: err}
	}
}

func (m Model) appendLine(kind lineKind, text string) Model {
	lines := append(m.lines, transcriptLine{at: m.now(), kind: kind, text: text})
	if len(lines) > maxTranscript {
		lines = lines[len(lines)-maxTranscript:]
	}
	m.lines = lines
	return m
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("sdqueue prompt chat"))
	b.WriteString("\n\n")
	for _, line := range m.visibleLines() {
		b.WriteString(renderLine(line))
		b.WriteString("\n")
	}
	if m.waiting {
		b.WriteString(m.spinner.View() + mutedStyle.Render(" thinking..."))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("enter: send • exit / esc: quit"))
	return b.String()
}

func (m Model) visibleLines() []transcriptLine {
	if m.height <= 0 {
		return m.lines
	}
	budget := m.height - 6
	if budget < 1 {
		budget = 1
	}
	// Walk backwards so the newest exchange stays on screen.
	used := 0
	start := len(m.lines)
	for start > 0 {
		n := strings.Count(m.lines[start-1].text, "\n") + 1
		if used+n > budget {
			break
		}
		used += n
		start--
	}
	return m.lines[start:]
}

func renderLine(line transcriptLine) string {
	prefix := mutedStyle.Render(line.at.Format(logging.TimeFormat) + " -")
	text := line.text
	switch line.kind {
	case lineAssistant:
		text = assistantStyle.Render(text)
	case lineError:
		text = errorStyle.Render(text)
	case lineOK:
		text = okStyle.Render(text)
	}
	return fmt.Sprintf("%s %s", prefix, text)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
