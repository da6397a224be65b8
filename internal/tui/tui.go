// Package tui shows the assistant's state and conversation in the terminal
// and lets the user push control events from the keyboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/astrape-core/core"
	"github.com/koscakluka/astrape-core/core/events"
	"github.com/muesli/reflow/wordwrap"
)

const maxEntries = 50

// Assistant is the part of the orchestrator the status view drives.
type Assistant interface {
	Run(ctx context.Context, opts ...orchestration.RunOption) error
	Events() *orchestration.EventQueue
	ClearEmergency(ctx context.Context) error
	State() orchestration.State
}

type (
	stateMsg      orchestration.State
	transcriptMsg string
	responseMsg   string
	eventMsg      events.Event
	runDoneMsg    struct{ err error }
)

type entry struct {
	speaker string
	text    string
}

type model struct {
	ctx       context.Context
	cancel    context.CancelFunc
	assistant Assistant

	state    orchestration.State
	entries  []entry
	notice   string
	spinner  spinner.Model
	width    int
	stopping bool
	err      error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	noticeStyle = lipgloss.NewStyle().Faint(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	stateStyles = map[orchestration.State]lipgloss.Style{
		orchestration.StateListening:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		orchestration.StateSleeping:        lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		orchestration.StateEmergencyActive: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		orchestration.StateShutdown:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

func newModel(ctx context.Context, cancel context.CancelFunc, assistant Assistant) model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	return model{
		ctx:       ctx,
		cancel:    cancel,
		assistant: assistant,
		state:     assistant.State(),
		spinner:   s,
		width:     80,
	}
}

// Run runs the assistant behind a status view until the loop exits or the
// user quits, and returns the loop's error.
func Run(ctx context.Context, assistant Assistant, opts ...orchestration.RunOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(ctx, cancel, assistant), tea.WithAltScreen())

	opts = append(opts,
		orchestration.WithStateChangedCallback(func(_, to orchestration.State) { p.Send(stateMsg(to)) }),
		orchestration.WithTranscriptCallback(func(transcript string) { p.Send(transcriptMsg(transcript)) }),
		orchestration.WithResponseCallback(func(response string) { p.Send(responseMsg(response)) }),
		orchestration.WithEventCallback(func(event events.Event) { p.Send(eventMsg(event)) }),
	)

	loopDone := make(chan error, 1)
	go func() {
		err := assistant.Run(ctx, opts...)
		loopDone <- err
		p.Send(runDoneMsg{err: err})
	}()

	_, err := p.Run()
	cancel()
	loopErr := <-loopDone
	if err != nil {
		return fmt.Errorf("failed to run status view: %w", err)
	}
	return loopErr
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		return m.handleKey(msg)
	case stateMsg:
		m.state = orchestration.State(msg)
	case transcriptMsg:
		m.addEntry("you", string(msg))
	case responseMsg:
		m.addEntry("astrape", string(msg))
	case eventMsg:
		if msg.Kind != events.KindContinue {
			m.notice = fmt.Sprintf("%s event", msg.Kind)
		}
	case runDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var kind events.Kind
	switch msg.String() {
	case "ctrl+c", "q":
		m.stopping = true
		m.cancel()
		return m, nil
	case "c":
		if err := m.assistant.ClearEmergency(m.ctx); err != nil {
			m.notice = err.Error()
		} else {
			m.notice = "emergency cleared"
		}
		return m, nil
	case "w":
		kind = events.KindWake
	case "s":
		kind = events.KindSleep
	case "e":
		kind = events.KindEmergency
	case "x":
		kind = events.KindShutdown
	default:
		return m, nil
	}

	if err := m.assistant.Events().TryPush(kind); err != nil {
		m.notice = fmt.Sprintf("could not queue %s: %v", kind, err)
	} else {
		m.notice = fmt.Sprintf("queued %s", kind)
	}
	return m, nil
}

func (m *model) addEntry(speaker, text string) {
	m.entries = append(m.entries, entry{speaker: speaker, text: text})
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

func (m model) View() string {
	var b strings.Builder

	status := m.state.String()
	if style, ok := stateStyles[m.state]; ok {
		status = style.Render(status)
	}
	indicator := m.spinner.View()
	if m.stopping {
		indicator = "stopping..."
	}
	fmt.Fprintf(&b, "%s  %s %s\n\n", titleStyle.Render("Astrape"), indicator, status)

	width := max(m.width-2, 20)
	for _, e := range m.entries {
		style := replyStyle
		if e.speaker == "you" {
			style = userStyle
		}
		fmt.Fprintf(&b, "%s\n", style.Render(wordwrap.String(e.speaker+": "+e.text, width)))
	}

	if m.notice != "" {
		fmt.Fprintf(&b, "\n%s\n", noticeStyle.Render(m.notice))
	}
	if m.err != nil && !errors.Is(m.err, orchestration.ErrShutdown) {
		fmt.Fprintf(&b, "\nerror: %v\n", m.err)
	}
	b.WriteString(helpStyle.Render("\nw wake • s sleep • e emergency • c clear emergency • x shutdown • q quit"))
	return b.String()
}
