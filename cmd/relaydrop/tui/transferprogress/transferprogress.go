// Package transferprogress renders progress snapshots as a progress bar with a status line.
package transferprogress

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui"
	transfer "github.com/relaydrop/relaydrop/internal/progress"
)

// SnapshotMsg carries a new progress snapshot into the model.
type SnapshotMsg transfer.Snapshot

type Model struct {
	Snapshot transfer.Snapshot

	Width       int
	progressBar progress.Model
}

func New() Model {
	return Model{progressBar: tui.NewProgressBar()}
}

func (Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = min(msg.Width-2*tui.MARGIN-4, tui.MAX_WIDTH)
		m.progressBar.Width = m.Width
		return m, nil

	case SnapshotMsg:
		m.Snapshot = transfer.Snapshot(msg)
		return m, nil

	default:
		return m, nil
	}
}

func (m Model) View() string {
	s := m.Snapshot
	title := s.Title
	if m.Width > 0 && runewidth.StringWidth(title) > m.Width/2 {
		title = runewidth.Truncate(title, m.Width/2, "…")
	}
	status := fmt.Sprintf("%s  %s / %s", s.PercentText(), s.TransferredText(), s.TotalText())
	switch {
	case s.Failed:
		failed := "✗ failed at " + status
		if s.Err != nil {
			failed += ": " + s.Err.Error()
		}
		status = tui.ErrorText(failed)
	case s.Active:
		status = tui.HelpStyle(status + fmt.Sprintf("  %s  %s left", s.SpeedText(), s.RemainingText()))
	default:
		status = tui.HelpStyle(status)
	}
	return tui.BoldText(title) + "\n" +
		tui.PadText + m.progressBar.ViewAs(s.Percent/100) + "\n" +
		tui.PadText + status
}
