// Package monitor provides a Bubble Tea dashboard for a running voicecanvas API.
package monitor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/mapping"
)

const pollInterval = 250 * time.Millisecond

// Styles for the dashboard
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Width(12)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(0, 1)
)

// Model is the Bubble Tea model for the monitor.
type Model struct {
	client   *Client
	spinner  spinner.Model
	progress progress.Model

	status    domain.Status
	connected bool
	err       error
	notice    string

	width int
}

// NewModel creates a monitor bound to client.
func NewModel(client *Client) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 40

	return Model{
		client:   client,
		spinner:  sp,
		progress: prog,
	}
}

// Message types
type (
	// StatusMsg carries one poll of GET /status.
	StatusMsg struct {
		Status domain.Status
		Err    error
	}

	// ActionMsg reports the outcome of a key-triggered request.
	ActionMsg struct {
		Notice string
		Err    error
	}

	// TickMsg schedules the next poll.
	TickMsg struct{}
)

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 24
		if m.progress.Width > 60 {
			m.progress.Width = 60
		}
		if m.progress.Width < 10 {
			m.progress.Width = 10
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "c":
			return m, m.clear()
		case "s":
			if m.status.Phase == domain.PhaseAnalyzing {
				m.notice = "a submission is already in flight"
				return m, nil
			}
			m.notice = "submitting..."
			return m, m.submit()
		case "m":
			return m, m.toggleMic()
		case "p":
			return m, m.nextProfile()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case StatusMsg:
		if msg.Err != nil {
			m.connected = false
			m.err = msg.Err
		} else {
			m.connected = true
			m.err = nil
			m.status = msg.Status
		}
		cmds = append(cmds, m.tick())

	case ActionMsg:
		m.notice = msg.Notice
		if msg.Err != nil {
			m.notice = ""
			m.err = msg.Err
		}

	case TickMsg:
		cmds = append(cmds, m.fetchStatus())

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(pollInterval, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) fetchStatus() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := client.Status(ctx)
		return StatusMsg{Status: st, Err: err}
	}
}

func (m Model) clear() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		err := client.Clear(context.Background())
		return ActionMsg{Notice: "canvas cleared", Err: err}
	}
}

func (m Model) submit() tea.Cmd {
	client, model := m.client, m.status.Model
	return func() tea.Msg {
		res, err := client.Submit(context.Background(), model)
		if err != nil {
			return ActionMsg{Err: err}
		}
		return ActionMsg{Notice: string(res.Kind)}
	}
}

func (m Model) toggleMic() tea.Cmd {
	client, on := m.client, !m.status.MicActive
	return func() tea.Msg {
		active, err := client.SetMic(context.Background(), on)
		if err != nil {
			return ActionMsg{Err: err}
		}
		switch {
		case active:
			return ActionMsg{Notice: "microphone on"}
		case on:
			return ActionMsg{Notice: "microphone unavailable, using fallback brush"}
		default:
			return ActionMsg{Notice: "microphone off"}
		}
	}
}

func (m Model) nextProfile() tea.Cmd {
	client := m.client
	next := nextProfileName(m.status.Profile)
	return func() tea.Msg {
		err := client.SetProfile(context.Background(), next)
		return ActionMsg{Notice: "profile " + next, Err: err}
	}
}

// nextProfileName cycles through the registered profiles in sorted order.
func nextProfileName(current string) string {
	names := mapping.Names()
	for i, n := range names {
		if n == current {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("🎨 voicecanvas monitor"))
	b.WriteString("\n")

	if !m.connected {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(warningStyle.Render("waiting for " + m.client.baseURL))
		b.WriteString("\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("q: quit"))
		return b.String()
	}

	st := m.status
	b.WriteString(m.row("session", dimStyle.Render(st.SessionID)))
	b.WriteString(m.row("mic", micLabel(st.MicActive)))
	b.WriteString(m.row("volume", m.progress.ViewAs(volumeFraction(st.VolumeLevel))))
	b.WriteString(m.row("pitch", fmt.Sprintf("%.1f Hz", st.PitchHz)))
	b.WriteString(m.row("profile", st.Profile))
	b.WriteString(m.row("brush", brush(st.CurrentParameters)))
	b.WriteString(m.row("strokes", fmt.Sprintf("%d (drawing: %v)", st.Strokes, st.Drawing)))
	b.WriteString(m.row("splatters", fmt.Sprintf("%d", len(st.Splatters))))
	b.WriteString(m.row("model", st.Model))

	phase := string(st.Phase)
	if st.Phase == domain.PhaseAnalyzing {
		phase = m.spinner.View() + " " + phase
	}
	b.WriteString(m.row("phase", phase))

	if st.Result != nil {
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(resultText(*st.Result)))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(successStyle.Render("✓ " + m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("m: mic • p: profile • c: clear • s: submit • q: quit"))
	return b.String()
}

func (m Model) row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func micLabel(active bool) string {
	if active {
		return successStyle.Render("● live")
	}
	return dimStyle.Render("○ off (fallback brush)")
}

// volumeFraction squashes RMS into [0,1] for the level meter.
func volumeFraction(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return v
}

func brush(p domain.DrawingParameters) string {
	c := p.Color.RGBA()
	hex := fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	swatch := lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render("    ")
	n := p.Color.Normalized()
	return fmt.Sprintf("%s %.1fpx hsl(%.0f, %.0f%%, %.0f%%)", swatch, p.StrokeWidthPx, n.Hue, n.Saturation, n.Lightness)
}

func resultText(r domain.SubmissionResult) string {
	switch r.Kind {
	case domain.ResultSuccess:
		return successStyle.Render(r.Text)
	case domain.ResultRateLimited:
		return warningStyle.Render(r.Text)
	default:
		return errorStyle.Render(r.Text)
	}
}

// Run starts the dashboard against client and blocks until the user quits.
func Run(client *Client) error {
	p := tea.NewProgram(NewModel(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
