package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/inovacc/binderlaunch/internal/buildspec"
	buildprogress "github.com/inovacc/binderlaunch/internal/progress"
)

const (
	defaultWidth     = 80
	defaultLogHeight = 15

	// spinner, spec, progress bar, blank line, status bar, hints, log border
	chromeHeight = 8
)

// Model represents the Bubble Tea model for one build session
type Model struct {
	spinner  spinner.Model
	progress progress.Model
	logs     viewport.Model
	content  string

	spec        buildspec.Spec
	state       buildprogress.State
	fraction    float64
	showLogs    bool
	logsForced  bool
	redirectURL string
	status      string
	cancelling  bool
	done        bool
	err         error

	onCancel func()
}

// NewModel creates a model for spec. onCancel is invoked when the user asks
// to abort a running build; it may be nil.
func NewModel(spec buildspec.Spec, onCancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = PhaseStyle

	p := progress.New(progress.WithDefaultGradient(), progress.WithWidth(defaultWidth-4))

	return Model{
		spinner:  s,
		progress: p,
		logs:     viewport.New(defaultWidth-4, defaultLogHeight),
		spec:     spec,
		state:    buildprogress.NotStarted,
		status:   "Connecting to build service...",
		onCancel: onCancel,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.done || m.cancelling {
				return m, tea.Quit
			}

			m.cancelling = true
			m.status = "Cancelling..."

			if m.onCancel != nil {
				m.onCancel()
			}

			return m, nil

		case "l":
			m.showLogs = !m.showLogs

			return m, nil
		}

		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)

		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case SnapshotMsg:
		m.applySnapshot(msg)

	case LogMsg:
		m.appendLog(msg.Text)

	case DoneMsg:
		m.applySnapshot(SnapshotMsg{Snapshot: msg.Snapshot})
		m.done = true
		m.err = msg.Error
		m.status = doneStatus(m.state, m.redirectURL, msg.Error)

		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m *Model) resize(width, height int) {
	inner := max(width-4, 10)

	m.progress.Width = inner
	m.logs.Width = inner
	m.logs.Height = max(height-chromeHeight, 3)
}

func (m *Model) applySnapshot(msg SnapshotMsg) {
	snap := msg.Snapshot

	m.state = snap.State
	if snap.State != buildprogress.Failed {
		m.fraction = buildprogress.Fraction(snap.State)
	}

	// forcing only opens the pane once, the user may hide it again
	if snap.LogsVisible && !m.logsForced {
		m.logsForced = true
		m.showLogs = true
	}

	if snap.RedirectURL != "" {
		m.redirectURL = snap.RedirectURL
	}

	if !m.cancelling {
		m.status = phaseStatus(snap.State)
	}
}

// appendLog adds text to the log pane and keeps the newest text in view
func (m *Model) appendLog(text string) {
	m.content += strings.ReplaceAll(text, "\r\n", "\n")
	m.logs.SetContent(m.content)
	m.logs.GotoBottom()
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	switch {
	case !m.done:
		b.WriteString(m.spinner.View())
	case m.err != nil:
		b.WriteString(ErrorStyle.Render("x"))
	default:
		b.WriteString(SuccessStyle.Render("*"))
	}

	b.WriteString(" ")
	b.WriteString(PhaseStyle.Render(strings.ToUpper(m.state.String())))
	b.WriteString(" ")
	b.WriteString(SpecStyle.Render(m.spec.String()))
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(m.fraction))
	b.WriteString("\n")

	if m.showLogs {
		b.WriteString(LogBoxStyle.Render(m.logs.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(ErrorStyle.Render(m.status))
	case m.done:
		b.WriteString(SuccessStyle.Render(m.status))
	default:
		b.WriteString(StatusStyle.Render(m.status))
	}

	b.WriteString("\n")

	if !m.done {
		b.WriteString(HintStyle.Render(m.hints()))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) hints() string {
	if m.showLogs {
		return "l: hide logs • q: cancel"
	}

	return "l: show logs • q: cancel"
}

func phaseStatus(s buildprogress.State) string {
	switch s {
	case buildprogress.Waiting:
		return "Waiting for a build slot..."
	case buildprogress.Building:
		return "Building image..."
	case buildprogress.Pushing:
		return "Pushing image..."
	case buildprogress.Launching:
		return "Launching server..."
	case buildprogress.Success:
		return "Server is ready"
	case buildprogress.Failed:
		return "Build failed"
	}

	return "Connecting to build service..."
}

func doneStatus(s buildprogress.State, redirectURL string, err error) string {
	switch {
	case err != nil:
		return fmt.Sprintf("Error: %v", err)
	case s == buildprogress.Success && redirectURL != "":
		return fmt.Sprintf("Server is ready: %s", redirectURL)
	}

	return phaseStatus(s)
}
