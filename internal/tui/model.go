// Package tui renders a live view of bus traffic while a job runs.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	topicStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// EventMsg is one bus event rendered as a log line.
type EventMsg struct {
	Topic string
	Line  string
}

// JobDoneMsg ends the run with a summary line.
type JobDoneMsg struct {
	Summary string
	Failed  bool
}

// Model is the watch view: a scrollback of bus events with a status footer.
type Model struct {
	title    string
	viewport viewport.Model
	spinner  spinner.Model
	lines    []string
	summary  string
	failed   bool
	done     bool
	ready    bool
}

// New creates a watch model with the given title line.
func New(title string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	return Model{title: title, spinner: sp}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
		return m, nil

	case EventMsg:
		stamp := timeStyle.Render(time.Now().Format("15:04:05.000"))
		line := fmt.Sprintf("%s %s %s", stamp, topicStyle.Render(msg.Topic), msg.Line)
		m.lines = append(m.lines, line)
		if m.ready {
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
		}
		return m, nil

	case JobDoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.failed = msg.Failed
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	var status string
	switch {
	case m.done && m.failed:
		status = failStyle.Render(m.summary)
	case m.done:
		status = okStyle.Render(m.summary)
	default:
		status = m.spinner.View() + " running"
	}

	footer := footerStyle.Render("q to quit")
	return fmt.Sprintf("%s\n\n%s\n%s  %s",
		titleStyle.Render(m.title), m.viewport.View(), status, footer)
}
