// Package receiver is the rich terminal interface of the receive command.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/erikgeiser/promptkit"
	"github.com/erikgeiser/promptkit/confirmation"
	"github.com/mattn/go-runewidth"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui/filetable"
	"github.com/relaydrop/relaydrop/cmd/relaydrop/tui/transferprogress"
	"github.com/relaydrop/relaydrop/internal/consent"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/relaydrop/relaydrop/internal/receiver"
	"github.com/relaydrop/relaydrop/internal/semver"
)

const maxClipboardPreview = 40

// ------------------------------------------------------ tui State -----------------------------------------------------
type tuiState int

const (
	showConnecting tuiState = iota
	showListening
	showConsentPrompt
	showReceiving
	showExtracting
	showFinished
)

// ------------------------------------------------------ Messages -----------------------------------------------------
type connectedMsg struct {
	ip string
}

type consentRequestMsg struct {
	filename string
	sender   string
	reply    chan<- consent.Decision
}

// consentClosedMsg is sent when a pending request was answered elsewhere, e.g. timed out.
type consentClosedMsg struct{}

type extractingMsg struct {
	filename string
}

type completedMsg struct {
	result    receiver.Result
	extracted []string
}

type clipboardMsg struct {
	text string
}

type doneMsg struct {
	err error
}

// ------------------------------------------------------- Model -------------------------------------------------------

type Option func(m *model)

func WithVersion(version semver.Version) Option {
	return func(m *model) {
		m.version = &version
	}
}

type model struct {
	state     tuiState
	relayAddr string
	version   *semver.Version
	ctx       context.Context

	ip         string
	request    consentRequestMsg
	extracting string
	received   int64

	width            int
	spinner          spinner.Model
	transferProgress transferprogress.Model
	fileTable        filetable.Model
	consentPrompt    confirmation.Model
	help             help.Model
	keys             tui.KeyMap
}

// UI drives the interface. Its methods are safe to call from the goroutine
// running the receiver.
type UI struct {
	program *tea.Program
}

// New creates the interface for a receiver connected to relayAddr.
func New(relayAddr string, opts ...Option) *UI {
	return &UI{program: tea.NewProgram(newModel(relayAddr, opts...))}
}

func newModel(relayAddr string, opts ...Option) model {
	m := model{
		relayAddr:        relayAddr,
		ctx:              context.Background(),
		transferProgress: transferprogress.New(),
		fileTable:        filetable.New(),
		consentPrompt:    *confirmation.NewModel(confirmation.New("", confirmation.Undecided)),
		help:             help.New(),
		keys:             tui.Keys,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.resetSpinner()
	return m
}

// Run blocks until the interface quits.
func (u *UI) Run() error {
	_, err := u.program.Run()
	return err
}

// Gate asks the user through the interface.
func (u *UI) Gate() consent.Gate {
	return consent.GateFunc(func(ctx context.Context, filename, sender string) (consent.Decision, error) {
		reply := make(chan consent.Decision, 1)
		u.program.Send(consentRequestMsg{filename: filename, sender: sender, reply: reply})
		select {
		case decision := <-reply:
			return decision, nil
		case <-ctx.Done():
			u.program.Send(consentClosedMsg{})
			return consent.Reject, ctx.Err()
		}
	})
}

// Renderer forwards progress snapshots to the interface.
func (u *UI) Renderer() progress.Renderer {
	return progress.RendererFunc(func(s progress.Snapshot) {
		u.program.Send(transferprogress.SnapshotMsg(s))
	})
}

func (u *UI) Connected(ip string) {
	u.program.Send(connectedMsg{ip: ip})
}

// Extracting shows that the archive filename is being unpacked.
func (u *UI) Extracting(filename string) {
	u.program.Send(extractingMsg{filename: filename})
}

// Completed records a finished transfer and the entries extracted from it, if any.
func (u *UI) Completed(res receiver.Result, extracted []string) {
	u.program.Send(completedMsg{result: res, extracted: extracted})
}

func (u *UI) Clipboard(text string) {
	u.program.Send(clipboardMsg{text: text})
}

// Done ends the interface with the outcome of the receiver.
func (u *UI) Done(err error) {
	u.program.Send(doneMsg{err: err})
}

func (m model) Init() tea.Cmd {
	var versionCmd tea.Cmd
	if m.version != nil {
		versionCmd = tui.VersionCmd(m.ctx, m.relayAddr)
	}
	return tea.Batch(m.spinner.Tick, versionCmd)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tui.VersionMsg:
		var message string
		switch m.version.Compare(msg.ServerVersion) {
		case semver.CompareNewMajor,
			semver.CompareOldMajor:
			//lint:ignore ST1005 error string displayed in tui
			return m, tui.ErrorCmd(fmt.Errorf("Relaydrop version (%s) incompatible with relay version (%s)", m.version, msg.ServerVersion))
		case semver.CompareNewMinor,
			semver.CompareNewPatch:
			message = tui.WarningText(fmt.Sprintf("Relaydrop version (%s) newer than relay version (%s)", m.version, msg.ServerVersion))
		case semver.CompareOldMinor,
			semver.CompareOldPatch:
			message = tui.WarningText(fmt.Sprintf("Relay version (%s) newer than relaydrop version (%s)", msg.ServerVersion, m.version))
		case semver.CompareEqual:
			message = tui.SuccessText(fmt.Sprintf("Relaydrop version (%s) compatible with relay version (%s)", m.version, msg.ServerVersion))
		}
		return m, tui.TaskCmd(message, nil)

	case connectedMsg:
		m.ip = msg.ip
		m.state = showListening
		m.resetSpinner()
		return m, tui.TaskCmd(fmt.Sprintf("Connected to relay (%s) as %s", m.relayAddr, msg.ip), m.spinner.Tick)

	case consentRequestMsg:
		m.request = msg
		m.state = showConsentPrompt
		m.resetSpinner()
		m.setConsentKeys(true)
		return m, tea.Batch(m.spinner.Tick, m.newConsentPrompt(msg.filename, msg.sender))

	case consentClosedMsg:
		if m.state != showConsentPrompt {
			return m, nil
		}
		m.request = consentRequestMsg{}
		m.state = showListening
		m.setConsentKeys(false)
		return m, tui.TaskCmd(tui.WarningText("Transfer request timed out and was rejected"), nil)

	case transferprogress.SnapshotMsg:
		var cmds []tea.Cmd
		if msg.Visible && msg.Active && m.state != showReceiving {
			m.state = showReceiving
			m.resetSpinner()
			cmds = append(cmds, m.spinner.Tick)
		}
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, tea.Batch(append(cmds, transferProgressCmd)...)

	case extractingMsg:
		m.extracting = msg.filename
		m.state = showExtracting
		m.resetSpinner()
		return m, m.spinner.Tick

	case completedMsg:
		m.extracting = ""
		res := msg.result
		m.received += res.Size
		m.fileTable.Add(filetable.Row{Path: res.Path, Size: res.Size, Backend: res.Backend.String()})
		m.state = showListening
		m.resetSpinner()
		message := fmt.Sprintf("Received %s (%s)", tui.BoldText(res.FileName), progress.FormatSize(res.Size))
		if len(msg.extracted) > 0 {
			message += fmt.Sprintf(", extracted %d entries", len(msg.extracted))
		}
		return m, tui.TaskCmd(message, m.spinner.Tick)

	case clipboardMsg:
		text := runewidth.Truncate(msg.text, maxClipboardPreview, "…")
		return m, tui.TaskCmd(fmt.Sprintf("Clipboard updated: %q", text), nil)

	case doneMsg:
		if msg.err != nil {
			return m, tui.ErrorCmd(msg.err)
		}
		m.state = showFinished
		m.fileTable = m.fileTable.Finalize()
		return m, tui.QuitCmd()

	case tui.ErrorMsg:
		return m, tui.ErrorCmd(errors.New(msg.Error()))

	case tea.KeyMsg:
		var cmds []tea.Cmd
		if key.Matches(msg, m.keys.Quit) {
			m.answer(consent.Reject)
			return m, tea.Quit
		}

		var fileTableCmd tea.Cmd
		m.fileTable, fileTableCmd = m.fileTable.Update(msg)
		cmds = append(cmds, fileTableCmd)

		_, promptCmd := m.consentPrompt.Update(msg)
		if m.state == showConsentPrompt {
			switch msg.String() {
			case "left", "right":
				cmds = append(cmds, promptCmd)
			}
			if key.Matches(msg, m.keys.ConsentYes, m.keys.ConsentNo, m.keys.ConsentConfirm) {
				accept, _ := m.consentPrompt.Value()
				decision := consent.Reject
				if accept {
					decision = consent.Accept
				}
				m.answer(decision)
				m.state = showListening
				m.setConsentKeys(false)
				m.resetSpinner()
				cmds = append(cmds, m.spinner.Tick)
			}
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)

		var fileTableCmd tea.Cmd
		m.fileTable, fileTableCmd = m.fileTable.Update(msg)

		m.consentPrompt.MaxWidth = msg.Width - 2*tui.MARGIN - 4
		_, promptCmd := m.consentPrompt.Update(msg)
		return m, tea.Batch(transferProgressCmd, fileTableCmd, promptCmd)

	default:
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		_, promptCmd := m.consentPrompt.Update(msg)
		return m, tea.Batch(spinnerCmd, promptCmd)
	}
}

func (m model) View() string {
	switch m.state {
	case showConnecting:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Connecting to relay (%s)", m.spinner.View(), m.relayAddr)) + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showListening:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Waiting for files as %s", m.spinner.View(), m.ip)) + "\n\n" +
			m.fileTable.View() +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showConsentPrompt:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Incoming transfer request", m.spinner.View())) + "\n\n" +
			tui.PadText + m.consentPrompt.View() + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showReceiving:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Receiving", m.spinner.View())) + " " +
			m.transferProgress.View() + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showExtracting:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Extracting %s", m.spinner.View(), m.extracting)) + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showFinished:
		files := "file"
		if m.fileTable.Len() != 1 {
			files += "s"
		}
		finishedText := fmt.Sprintf("Received %d %s (%s)", m.fileTable.Len(), files, progress.FormatSize(m.received))
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(finishedText) + "\n\n" +
			m.fileTable.View()

	default:
		return ""
	}
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

// answer replies to the pending consent request, if any.
func (m *model) answer(decision consent.Decision) {
	if m.request.reply == nil {
		return
	}
	m.request.reply <- decision
	m.request = consentRequestMsg{}
}

func (m *model) setConsentKeys(enabled bool) {
	m.keys.ConsentYes.SetEnabled(enabled)
	m.keys.ConsentNo.SetEnabled(enabled)
	m.keys.ConsentConfirm.SetEnabled(enabled)
}

func (m *model) newConsentPrompt(fileName, sender string) tea.Cmd {
	prompt := confirmation.New(fmt.Sprintf("Accept '%s' from %s?", fileName, sender), confirmation.Yes)
	m.consentPrompt = *confirmation.NewModel(prompt)
	m.consentPrompt.MaxWidth = m.width
	m.consentPrompt.WrapMode = promptkit.HardWrap
	m.consentPrompt.Template = confirmation.TemplateYN
	m.consentPrompt.ResultTemplate = confirmation.ResultTemplateYN
	m.consentPrompt.KeyMap.Abort = []string{}
	m.consentPrompt.KeyMap.Toggle = []string{}
	return m.consentPrompt.Init()
}

func (m *model) resetSpinner() {
	m.spinner = spinner.New()
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(tui.ELEMENT_COLOR))
	switch m.state {
	case showConnecting, showListening, showConsentPrompt:
		m.spinner.Spinner = tui.WaitingSpinner
	case showReceiving:
		m.spinner.Spinner = tui.ReceivingSpinner
	case showExtracting:
		m.spinner.Spinner = tui.CompressingSpinner
	}
}
