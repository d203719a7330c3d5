package receiver

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui/transferprogress"
	"github.com/relaydrop/relaydrop/internal/consent"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/relaydrop/relaydrop/internal/receiver"
	"github.com/relaydrop/relaydrop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestConsentPrompt(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		want consent.Decision
	}{
		{"accept", keyPress('y'), consent.Accept},
		{"reject", keyPress('n'), consent.Reject},
		{"confirm default", tea.KeyMsg{Type: tea.KeyEnter}, consent.Accept},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := update(t, newModel("relay:8000"), connectedMsg{ip: "10.0.0.2"})
			reply := make(chan consent.Decision, 1)
			m = update(t, m, consentRequestMsg{filename: "b.zip", sender: "10.0.0.9", reply: reply})
			assert.Equal(t, showConsentPrompt, m.state)

			m = update(t, m, tc.key)
			require.Len(t, reply, 1)
			assert.Equal(t, tc.want, <-reply)
			assert.Equal(t, showListening, m.state)
			assert.False(t, m.keys.ConsentYes.Enabled())
		})
	}
}

func TestQuitRejectsPendingRequest(t *testing.T) {
	reply := make(chan consent.Decision, 1)
	m := update(t, newModel("relay:8000"), consentRequestMsg{filename: "b.zip", sender: "peer", reply: reply})
	_, cmd := m.Update(keyPress('q'))
	require.NotNil(t, cmd)
	assert.Equal(t, consent.Reject, <-reply)
}

func TestConsentClosed(t *testing.T) {
	m := update(t, newModel("relay:8000"), consentRequestMsg{filename: "b.zip", sender: "peer", reply: make(chan consent.Decision, 1)})
	m = update(t, m, consentClosedMsg{})
	assert.Equal(t, showListening, m.state)
	assert.Nil(t, m.request.reply)
}

func TestTransferLifecycle(t *testing.T) {
	m := update(t, newModel("relay:8000"), connectedMsg{ip: "10.0.0.2"})
	m = update(t, m, transferprogress.SnapshotMsg(progress.Snapshot{Title: "a.txt", Total: 1000, Bytes: 400, Percent: 40, Visible: true, Active: true}))
	assert.Equal(t, showReceiving, m.state)
	assert.Contains(t, m.View(), "40%")

	m = update(t, m, completedMsg{result: receiver.Result{FileName: "a.txt", Path: "/tmp/a.txt", Size: 1000, Backend: storage.Streaming}})
	assert.Equal(t, showListening, m.state)
	assert.Equal(t, 1, m.fileTable.Len())
	assert.Equal(t, int64(1000), m.received)

	m = update(t, m, doneMsg{})
	assert.Equal(t, showFinished, m.state)
	assert.Contains(t, m.View(), "Received 1 file (1000 B)")
}

func TestDoneWithError(t *testing.T) {
	_, cmd := newModel("relay:8000").Update(doneMsg{err: errors.New("transfer failed")})
	assert.NotNil(t, cmd)
}

func TestExtracting(t *testing.T) {
	m := update(t, newModel("relay:8000"), connectedMsg{ip: "10.0.0.2"})
	m = update(t, m, extractingMsg{filename: "album.tar.gz"})
	assert.Equal(t, showExtracting, m.state)
	assert.Equal(t, tui.CompressingSpinner.Frames, m.spinner.Spinner.Frames)
	assert.Contains(t, m.View(), "Extracting album.tar.gz")

	m = update(t, m, completedMsg{
		result:    receiver.Result{FileName: "album.tar.gz", Path: "/tmp/album.tar.gz", Size: 10, Backend: storage.Streaming},
		extracted: []string{"album/one.txt"},
	})
	assert.Equal(t, showListening, m.state)
	assert.Empty(t, m.extracting)
}
