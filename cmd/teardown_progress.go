package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bnema/partybot/internal/domain"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type partyTornDownMsg struct {
	owner domain.UserID
	err   error
}

type teardownFinishedMsg struct {
	err error
}

var (
	progressSpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	progressFailedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// teardownProgressModel counts parties off while an admin delete removes
// their platform resources.
type teardownProgressModel struct {
	spinner  spinner.Model
	subject  string
	total    int
	done     int
	failed   []domain.UserID
	last     domain.UserID
	task     tea.Cmd
	err      error
	finished bool
}

func newTeardownProgressModel(subject string, total int, task tea.Cmd) teardownProgressModel {
	return teardownProgressModel{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(progressSpinnerStyle)),
		subject: subject,
		total:   total,
		task:    task,
	}
}

func (m teardownProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.task)
}

func (m teardownProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case partyTornDownMsg:
		m.done++
		m.last = msg.owner
		if msg.err != nil {
			m.failed = append(m.failed, msg.owner)
		}
		return m, nil
	case teardownFinishedMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m teardownProgressModel) View() string {
	if m.finished {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Tearing down %s: %d/%d %s", m.spinner.View(), m.subject, m.done, m.total, plural(m.total, "party", "parties"))
	if m.last != "" {
		fmt.Fprintf(&b, " (last: %s)", m.last)
	}
	if len(m.failed) > 0 {
		b.WriteString(" ")
		b.WriteString(progressFailedStyle.Render(fmt.Sprintf("%d failed", len(m.failed))))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// runTeardown runs task behind a live progress line. task reports each party
// it finished through report.
func runTeardown(ctx context.Context, output io.Writer, subject string, total int, task func(ctx context.Context, report func(domain.UserID, error)) error) error {
	var p *tea.Program
	taskCmd := func() tea.Msg {
		return teardownFinishedMsg{err: task(ctx, func(owner domain.UserID, err error) {
			p.Send(partyTornDownMsg{owner: owner, err: err})
		})}
	}

	p = tea.NewProgram(
		newTeardownProgressModel(subject, total, taskCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(teardownProgressModel)
	if !ok {
		return fmt.Errorf("unexpected final progress model type %T", finalModel)
	}
	return result.err
}
