package transferprogress_test

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui/transferprogress"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/stretchr/testify/assert"
)

func TestView(t *testing.T) {
	m := transferprogress.New()
	model, _ := m.Update(tea.WindowSizeMsg{Width: 40})
	model, _ = model.Update(transferprogress.SnapshotMsg(progress.Snapshot{
		Title:   strings.Repeat("very-long-name-", 5) + ".iso",
		Bytes:   400,
		Total:   1000,
		Percent: 40,
		Active:  true,
	}))
	view := model.View()

	assert.Contains(t, view, "40%")
	assert.Contains(t, view, "400 B / 1000 B")
	assert.Contains(t, view, "-- left")
	assert.Contains(t, view, "…")
	assert.NotContains(t, view, ".iso")
}

func TestViewFailed(t *testing.T) {
	model, _ := transferprogress.New().Update(transferprogress.SnapshotMsg(progress.Snapshot{
		Title:   "g.bin",
		Bytes:   300,
		Total:   1000,
		Percent: 30,
		Visible: true,
		Failed:  true,
		Err:     errors.New("disk full"),
	}))
	view := model.View()

	assert.Contains(t, view, "failed at 30%")
	assert.Contains(t, view, "300 B / 1000 B")
	assert.Contains(t, view, "disk full")
	assert.NotContains(t, view, "left")
}
