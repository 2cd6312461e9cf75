package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bobarin/adforge/internal/models"
)

const pollInterval = 200 * time.Millisecond

var (
	progressTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	progressMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	progressErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	progressOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	progressPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type tickMsg time.Time

type doneMsg struct {
	status models.RunStatus
	err    error
}

// progressModel polls the run status and renders one line per stage.
type progressModel struct {
	runID       string
	poll        func() models.RunStatus
	cancel      context.CancelFunc
	spinner     spinner.Model
	current     models.RunStatus
	done        bool
	interrupted bool
	err         error
}

func newProgressModel(runID string, poll func() models.RunStatus, cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = progressTitleStyle
	return progressModel{
		runID:   runID,
		poll:    poll,
		cancel:  cancel,
		spinner: s,
		current: models.RunStatus{RunID: runID, OverallStatus: models.OverallPending},
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		if m.poll != nil {
			m.current = m.poll()
		}
		return m, tick()
	case doneMsg:
		m.done = true
		m.current = msg.status
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	header := progressTitleStyle.Render("adforge") + " " + progressMutedStyle.Render("run "+m.runID)
	if !m.done {
		header = m.spinner.View() + " " + header
	}
	b.WriteString(header)
	b.WriteString("\n")

	latest := make(map[models.StageName]models.StageEntry, len(m.current.Steps))
	for _, step := range m.current.Steps {
		latest[step.Stage] = step
	}

	var lines []string
	for _, stage := range models.Stages {
		entry, ok := latest[stage]
		status := models.StageStatusPending
		if ok {
			status = entry.Status
		}
		lines = append(lines, fmt.Sprintf("%s %-8s %s", stageMarker(status), stage, stageDetail(entry)))
	}
	b.WriteString(progressPanelStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(progressErrorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.interrupted:
		b.WriteString(progressErrorStyle.Render("interrupted, stopping run") + "\n")
	case m.done && m.current.OverallStatus == models.OverallSuccess:
		b.WriteString(progressOKStyle.Render("done") + "\n")
	case m.done:
		b.WriteString(progressErrorStyle.Render(string(m.current.OverallStatus)) + "\n")
	default:
		b.WriteString(progressMutedStyle.Render("q to cancel") + "\n")
	}
	return b.String()
}

func stageMarker(status models.StageStatus) string {
	switch status {
	case models.StageStatusCompleted:
		return progressOKStyle.Render("✓")
	case models.StageStatusFailed:
		return progressErrorStyle.Render("✗")
	case models.StageStatusRunning:
		return progressTitleStyle.Render("›")
	default:
		return progressMutedStyle.Render("·")
	}
}

func stageDetail(entry models.StageEntry) string {
	if msg, ok := entry.Payload["error"].(string); ok {
		return progressErrorStyle.Render(msg)
	}
	if entry.Status == "" {
		return progressMutedStyle.Render(string(models.StageStatusPending))
	}
	return progressMutedStyle.Render(string(entry.Status))
}
