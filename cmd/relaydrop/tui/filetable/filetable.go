// Package filetable lists the files received during a session.
package filetable

import (
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui"
	"github.com/relaydrop/relaydrop/internal/progress"
)

const (
	defaultMaxTableHeight            = 4
	pathColumnWidthFactor    float64 = 0.65
	sizeColumnWidthFactor    float64 = 0.15
	backendColumnWidthFactor float64 = 1 - pathColumnWidthFactor - sizeColumnWidthFactor
)

var fileTableStyle = tui.BaseStyle.Copy().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color(tui.SECONDARY_COLOR)).
	MarginLeft(tui.MARGIN)

// Row is one received file.
type Row struct {
	Path    string
	Size    int64
	Backend string
}

type Model struct {
	Width       int
	MaxHeight   int
	rows        []Row
	table       table.Model
	tableStyles table.Styles
}

func New() Model {
	m := Model{
		MaxHeight: defaultMaxTableHeight,
		Width:     tui.MAX_WIDTH,
		table: table.New(
			table.WithFocused(true),
			table.WithHeight(1),
		),
	}

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(tui.SECONDARY_COLOR)).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(tui.DARK_COLOR)).
		Background(lipgloss.Color(tui.SECONDARY_ELEMENT_COLOR)).
		Bold(false)
	m.tableStyles = s
	m.table.SetStyles(m.tableStyles)
	m.updateColumns()
	return m
}

// Add appends a received file.
func (m *Model) Add(row Row) {
	m.rows = append(m.rows, row)
	m.table.SetHeight(min(m.MaxHeight, len(m.rows)))
	m.updateRows()
}

func (m *Model) Len() int {
	return len(m.rows)
}

func (m *Model) maxWidth() int {
	return min(tui.MAX_WIDTH-2*tui.MARGIN, m.Width)
}

func (m *Model) updateColumns() {
	w := float64(m.maxWidth())
	m.table.SetColumns([]table.Column{
		{Title: "File", Width: int(w * pathColumnWidthFactor)},
		{Title: "Size", Width: int(w * sizeColumnWidthFactor)},
		{Title: "Saved", Width: int(w * backendColumnWidthFactor)},
	})
}

func (m *Model) updateRows() {
	var tableRows []table.Row
	maxPathWidth := int(float64(m.maxWidth()) * pathColumnWidthFactor)
	for _, row := range m.rows {
		path := row.Path
		// truncate overflowing paths from the left, the file name is the interesting part
		if w := runewidth.StringWidth(path); w > maxPathWidth {
			path = runewidth.TruncateLeft(path, w-maxPathWidth+1, "…")
		}
		tableRows = append(tableRows, table.Row{path, progress.FormatSize(row.Size), row.Backend})
	}
	m.table.SetRows(tableRows)
}

func (Model) Init() tea.Cmd {
	return nil
}

// Finalize unfocuses the table so it renders as a static summary.
func (m Model) Finalize() Model {
	m.table.Blur()
	s := m.tableStyles
	s.Selected = s.Selected.UnsetBackground().UnsetForeground()
	m.table.SetStyles(s)
	return m
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = min(msg.Width-2*tui.MARGIN-4, tui.MAX_WIDTH)
		m.updateColumns()
		m.updateRows()
		return m, nil
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	return fileTableStyle.Render(m.table.View()) + "\n\n"
}
