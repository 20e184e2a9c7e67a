package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/models"
)

// Generator turns a photo on disk into a saved run.
type Generator interface {
	GenerateFile(ctx context.Context, path string, report engine.Reporter) (*models.Run, error)
}

type sessionState int

const (
	stateInputPath sessionState = iota
	stateGenerating
	stateDone
	stateError
)

type model struct {
	state      sessionState
	gen        Generator
	ctx        context.Context
	cancel     context.CancelFunc
	textInput  textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	renderer   *glamour.TermRenderer
	updates    chan tea.Msg
	stage      engine.Stage
	analysis   string
	reflection string
	run        *models.Run
	runsDir    string
	err        error
	width      int
	height     int
}

var (
	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	reflectionStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

// NewModel returns the TUI model. Saved games are reported relative to runsDir.
func NewModel(ctx context.Context, gen Generator, runsDir string) model {
	ti := textinput.New()
	ti.Placeholder = "path/to/photo.jpg"
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return model{
		state:     stateInputPath,
		gen:       gen,
		ctx:       ctx,
		textInput: ti,
		spinner:   sp,
		renderer:  renderer,
		runsDir:   runsDir,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

type progressMsg struct {
	update engine.Update
}

type generatedMsg struct {
	run *models.Run
	err error
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case tea.KeyEnter:
			if m.state != stateInputPath && m.state != stateDone {
				return m, nil
			}
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			switch input {
			case "":
				return m, nil
			case "/quit":
				return m, tea.Quit
			}
			return m.start(input)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.analysisWidth()
		m.viewport.Height = max(msg.Height-8, 5)
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(m.analysisWidth()-4, 20)),
		)
		m.viewport.SetContent(m.renderAnalysis())

	case spinner.TickMsg:
		if m.state != stateGenerating {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.stage = msg.update.Stage
		m.analysis = msg.update.Analysis
		if msg.update.Reflection != "" {
			m.reflection = msg.update.Reflection
		}
		m.viewport.SetContent(m.renderAnalysis())
		return m, waitForUpdate(m.updates)

	case generatedMsg:
		m.updates = nil
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.run = msg.run
		m.state = stateDone
		m.textInput.Placeholder = "another photo, or /quit"
		return m, nil
	}

	if m.state == stateInputPath || m.state == stateDone {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	if m.state == stateGenerating {
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) start(path string) (tea.Model, tea.Cmd) {
	m.state = stateGenerating
	m.stage = ""
	m.analysis = ""
	m.reflection = ""
	m.run = nil
	m.err = nil
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.analysisWidth(), max(m.height-8, 5))
	}
	m.viewport.SetContent("")

	// Buffered so the pipeline never blocks on a slow redraw.
	m.updates = make(chan tea.Msg, 16)
	return m, tea.Batch(m.spinner.Tick, generate(m.ctx, m.gen, path, m.updates), waitForUpdate(m.updates))
}

// generate runs the pipeline in the background, forwarding each update and
// finally the result on ch.
func generate(ctx context.Context, gen Generator, path string, ch chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		run, err := gen.GenerateFile(ctx, path, func(u engine.Update) {
			ch <- progressMsg{u}
		})
		ch <- generatedMsg{run: run, err: err}
		close(ch)
		return nil
	}
}

func waitForUpdate(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateInputPath:
		s = fmt.Sprintf(
			"Welcome to the Photo Game Generator!\n\n%s\n\n%s",
			"Which photo should become a game?",
			m.textInput.View(),
		)

	case stateGenerating:
		header := m.spinner.View() + " " + stageStyle.Render(stageLabel(m.stage))
		body := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderReflection(),
		)
		s = lipgloss.JoinVertical(lipgloss.Left,
			header,
			"",
			body,
			"\n"+helpStyle.Render("Esc to cancel."),
		)

	case stateDone:
		s = lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render(m.run.Spec.Title),
			"",
			m.reflection,
			"",
			"Saved to "+m.savedPath(),
			"\n"+m.textInput.View(),
			"\n"+helpStyle.Render("Open game.html in a browser to play. Enter another photo path or /quit."),
		)

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) analysisWidth() int {
	if m.width == 0 {
		return 80
	}
	return int(float64(m.width) * 0.6)
}

func (m model) renderAnalysis() string {
	if m.analysis == "" {
		return ""
	}
	if m.renderer == nil {
		return m.analysis
	}
	out, err := m.renderer.Render(m.analysis)
	if err != nil {
		return m.analysis
	}
	return out
}

func (m model) renderReflection() string {
	content := titleStyle.Render("PROGRESS") + "\n\n" + m.reflection
	width := int(float64(m.width) * 0.37)
	if width <= 0 {
		width = 40
	}
	return reflectionStyle.Width(width).Height(m.viewport.Height).Render(content)
}

func (m model) savedPath() string {
	if m.run == nil {
		return ""
	}
	return filepath.Join(m.runsDir, m.run.ID, "game.html")
}

func stageLabel(s engine.Stage) string {
	switch s {
	case "", engine.StageStarted:
		return "Analyzing photo"
	case engine.StageAnalyzed:
		return "Designing game"
	case engine.StageSpecified:
		return "Writing HTML"
	case engine.StageHTML:
		return "Writing CSS"
	case engine.StageCSS:
		return "Writing game logic"
	case engine.StageJS, engine.StageComponents:
		return "Assembling"
	default:
		return "Done"
	}
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, gen Generator, runsDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m := NewModel(ctx, gen, runsDir)
	m.cancel = cancel
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
