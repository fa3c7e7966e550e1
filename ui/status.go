package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/recite/internal/playback"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
)

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	green     = lipgloss.Color("#04B575")
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	darkRed   = lipgloss.AdaptiveColor{Light: "#7A1F35", Dark: "#5C1A2A"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(lipgloss.Color("#7B61FF")).
			Bold(true)

	statusBarVoiceStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(green).
					Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(red).
				Background(darkRed).
				Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1F1F1")).
			Background(lipgloss.Color("#FF5F87")).
			Bold(true).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"})
)

func logoView() string {
	return logoStyle.Render(" Recite ")
}

// noteView describes the document and what playback is doing.
func (m model) noteView() string {
	s := m.driver.Snapshot()
	title := m.doc.Title
	if title == "" {
		title = "untitled"
	}
	var note string
	switch s.State {
	case playback.Speaking:
		note = fmt.Sprintf("%s · %s/%s", s.Status, humanize.Comma(int64(s.Position)), humanize.Comma(int64(s.TextLen)))
	case playback.Paused, playback.Erroring:
		note = fmt.Sprintf("%s · at %s", s.Status, humanize.Comma(int64(s.ResumeAt)))
	default:
		note = fmt.Sprintf("%s · %s chars", s.Status, humanize.Comma(int64(s.TextLen)))
	}
	if !m.handshake.Unlocked() && m.handshake.Pending() {
		note += " · press any key to start"
	}
	return title + " · " + note
}

func (m model) statusBarView(b *strings.Builder) {
	showStatusMessage := m.state == pagerStateStatusMessage

	logo := logoView()

	p := m.driver.Preferences()
	voice := statusBarVoiceStyle(fmt.Sprintf(" %s× %s ", p.FormatRate(), p.FormatPitch()))

	var helpNote string
	if showStatusMessage {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	noteStyle := statusBarNoteStyle
	note := m.noteView()
	if showStatusMessage {
		note = m.statusMessage.message
		noteStyle = statusBarMessageStyle
		if m.statusMessage.isError {
			noteStyle = statusBarErrorStyle
		}
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(voice)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	note = noteStyle(note)

	// Empty space
	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(voice)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := noteStyle(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		voice,
		helpNote,
	)
}

func (m model) helpView() string {
	s := "\n" + m.help.FullHelpView(m.keys.FullHelp()) + "\n"
	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := ansi.PrintableRuneWidth(lines[i])
			n := max(m.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}
