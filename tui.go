package main

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hark/bus"
)

// TUI message types
type StatusUpdateMsg struct {
	TabID       int
	HasAudio    bool
	IsSpeaking  bool
	HasTabAudio bool
	AudioLevel  float64
}
type TranscriptUpdateMsg struct {
	TabID   int
	Interim string
	Recent  []bus.TranscriptLine
}
type ActiveTabMsg struct{ TabID int }
type TranscribingMsg struct{ On bool }

const transcriptRows = 8

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	speakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	listenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	meterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	interimStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var tuiProgram *tea.Program
var tuiToggleFn func()

type tuiModel struct {
	width, height int
	tab           int
	hasAudio      bool
	isSpeaking    bool
	hasTabAudio   bool
	level         float64
	transcribing  bool
	recent        []bus.TranscriptLine
	interim       string
	copied        bool
}

func NewTUIProgram() *tea.Program {
	return tea.NewProgram(tuiModel{}, tea.WithAltScreen())
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "t":
			if tuiToggleFn != nil {
				tuiToggleFn()
			}
		case "c":
			if len(m.recent) > 0 {
				var sb strings.Builder
				for _, line := range m.recent {
					sb.WriteString(line.Text)
					sb.WriteString("\n")
				}
				if err := clipboard.WriteAll(sb.String()); err == nil {
					m.copied = true
				}
			}
		}

	case ActiveTabMsg:
		if msg.TabID != m.tab {
			m.tab = msg.TabID
			m.hasAudio, m.isSpeaking, m.hasTabAudio = false, false, false
			m.level = 0
			m.recent = nil
			m.interim = ""
			m.copied = false
		}

	case StatusUpdateMsg:
		if msg.TabID == m.tab || m.tab == 0 {
			m.tab = msg.TabID
			m.hasAudio = msg.HasAudio
			m.isSpeaking = msg.IsSpeaking
			m.hasTabAudio = msg.HasTabAudio
			m.level = msg.AudioLevel
		}

	case TranscriptUpdateMsg:
		if msg.TabID == m.tab || m.tab == 0 {
			m.recent = msg.Recent
			m.interim = msg.Interim
			m.copied = false
		}

	case TranscribingMsg:
		m.transcribing = msg.On
		if !msg.On {
			m.recent = nil
			m.interim = ""
		}
	}
	return m, nil
}

func (m tuiModel) statusLine() string {
	switch {
	case m.isSpeaking:
		return speakStyle.Render("● You are speaking (microphone active)")
	case m.hasTabAudio || m.hasAudio:
		return listenStyle.Render("◉ Audio detected in meeting")
	default:
		return idleStyle.Render("○ No audio activity detected")
	}
}

func levelMeter(level float64, width int) string {
	if width < 4 {
		width = 4
	}
	filled := int(level * float64(width))
	if filled > width {
		filled = width
	}
	return meterStyle.Render(strings.Repeat("█", filled)) +
		idleStyle.Render(strings.Repeat("░", width-filled))
}

func (m tuiModel) transcriptLines() []string {
	var out []string
	start := 0
	if len(m.recent) > transcriptRows {
		start = len(m.recent) - transcriptRows
	}
	for _, line := range m.recent[start:] {
		out = append(out, line.At.Format("15:04:05")+"  "+line.Text)
	}
	if m.interim != "" {
		out = append(out, interimStyle.Render(m.interim))
	}
	return out
}

func (m tuiModel) View() string {
	var sb strings.Builder

	title := "hark"
	if m.tab != 0 {
		title += fmt.Sprintf(" – tab %d", m.tab)
	}
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")
	sb.WriteString(levelMeter(m.level, 30))
	sb.WriteString("\n\n")

	if m.transcribing {
		lines := m.transcriptLines()
		if len(lines) == 0 {
			sb.WriteString(idleStyle.Render("(waiting for speech)"))
			sb.WriteString("\n")
		}
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString(idleStyle.Render("transcription off"))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	help := "t: transcribe  c: copy  q: quit"
	if m.copied {
		help += "  (copied)"
	}
	sb.WriteString(helpStyle.Render(help))
	return sb.String()
}
