// Package tui holds the styles, keys and commands shared by the terminal user interfaces.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/relaydrop/relaydrop/internal/semver"
)

// ------------------------------------------------------ Styles -------------------------------------------------------

const (
	MARGIN                  = 2
	MAX_WIDTH               = 80
	PRIMARY_COLOR           = "#B8BABA"
	SECONDARY_COLOR         = "#626262"
	DARK_COLOR              = "#232323"
	ELEMENT_COLOR           = "#EE9F40"
	SECONDARY_ELEMENT_COLOR = "#EE9F70"
	ERROR_COLOR             = "#CC0000"
	WARNING_COLOR           = "#FF7900"
	CHECK_COLOR             = "#34B233"
	SHUTDOWN_PERIOD         = 500 * time.Millisecond
)

var PadText = strings.Repeat(" ", MARGIN)

var BaseStyle = lipgloss.NewStyle()
var InfoStyle = BaseStyle.Copy().Foreground(lipgloss.Color(PRIMARY_COLOR)).Render
var HelpStyle = BaseStyle.Copy().Foreground(lipgloss.Color(SECONDARY_COLOR)).Render
var BoldText = BaseStyle.Copy().Bold(true).Render
var ErrorText = BaseStyle.Copy().Foreground(lipgloss.Color(ERROR_COLOR)).Render
var WarningText = BaseStyle.Copy().Foreground(lipgloss.Color(WARNING_COLOR)).Render
var SuccessText = BaseStyle.Copy().Foreground(lipgloss.Color(CHECK_COLOR)).Render

func NewProgressBar() progress.Model {
	return progress.New(progress.WithGradient(SECONDARY_ELEMENT_COLOR, ELEMENT_COLOR), progress.WithoutPercentage())
}

// LogSeparator draws a faint rule across the usable width.
func LogSeparator(width int) string {
	w := min(width-2*MARGIN, MAX_WIDTH)
	if w <= 0 {
		return "\n"
	}
	return HelpStyle(strings.Repeat("─", w)) + "\n\n"
}

// ------------------------------------------------------ Spinners -----------------------------------------------------

var WaitingSpinner = spinner.Spinner{
	Frames: []string{"⠋ ", "⠙ ", "⠹ ", "⠸ ", "⠼ ", "⠴ ", "⠦ ", "⠧ ", "⠇ ", "⠏ "},
	FPS:    time.Second / 12,
}

var ReceivingSpinner = spinner.Spinner{
	Frames: []string{"   ", "  «", " ««", "«««"},
	FPS:    time.Second / 2,
}

var CompressingSpinner = spinner.Spinner{
	Frames: []string{"┉┉┉", "┅┅┅", "┄┄┄", "┉ ┉", "┅ ┅", "┄ ┄", " ┉ ", " ┉ ", " ┅ ", " ┅ ", " ┄ "},
	FPS:    time.Second / 3,
}

// -------------------------------------------------------- Keys -------------------------------------------------------

type KeyMap struct {
	Quit           key.Binding
	ConsentYes     key.Binding
	ConsentNo      key.Binding
	ConsentConfirm key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.ConsentYes, k.ConsentNo, k.ConsentConfirm}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var Keys = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("(q)", "quit"),
	),
	ConsentYes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("(y)", "accept"),
		key.WithDisabled(),
	),
	ConsentNo: key.NewBinding(
		key.WithKeys("n", "N"),
		key.WithHelp("(n)", "reject"),
		key.WithDisabled(),
	),
	ConsentConfirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("(enter)", "confirm"),
		key.WithDisabled(),
	),
}

// ------------------------------------------------------ Messages -----------------------------------------------------

type ErrorMsg error

type VersionMsg struct {
	ServerVersion semver.Version
}

// ------------------------------------------------------ Commands -----------------------------------------------------

// ErrorCmd prints err above the interface and quits.
func ErrorCmd(err error) tea.Cmd {
	return tea.Sequence(
		tea.Println(PadText+ErrorText("✗ "+err.Error())),
		QuitCmd(),
	)
}

// TaskCmd prints a finished task above the interface, then runs cmd.
func TaskCmd(message string, cmd tea.Cmd) tea.Cmd {
	return tea.Sequence(tea.Println(PadText+SuccessText("✓")+" "+message), cmd)
}

// QuitCmd quits after a short grace period so the last frame stays visible.
func QuitCmd() tea.Cmd {
	return tea.Tick(SHUTDOWN_PERIOD, func(time.Time) tea.Msg {
		return tea.Quit()
	})
}

// VersionCmd fetches the relay version.
func VersionCmd(ctx context.Context, relayAddr string) tea.Cmd {
	return func() tea.Msg {
		ver, err := semver.FetchRelayVersion(ctx, relayAddr)
		if err != nil {
			return ErrorMsg(fmt.Errorf("checking relay version: %w", err))
		}
		return VersionMsg{ServerVersion: ver}
	}
}
