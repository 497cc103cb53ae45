package console

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

const historyLimit = 100

type (
	printMsg    string
	questionMsg string
)

type model struct {
	c     *Console
	input textinput.Model

	question    string
	history     []string
	histPos     int
	interrupted bool
	quitting    bool
}

func newModel(c *Console) *model {
	ti := textinput.New()
	ti.Prompt = c.prompt
	ti.PromptStyle = promptStyle
	ti.Placeholder = "help"
	ti.Focus()
	return &model{c: c, input: ti}
}

func (c *Console) runTUI(ctx context.Context) error {
	p := tea.NewProgram(newModel(c),
		tea.WithContext(ctx),
		tea.WithInput(c.in),
		tea.WithOutput(c.out),
	)

	c.mu.Lock()
	c.program = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.program = nil
		c.mu.Unlock()
	}()

	_, err := p.Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model. Nothing here may block on the program, so
// console output and the interrupt hook run as commands.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case printMsg:
		return m, tea.Println(render(string(msg)))

	case questionMsg:
		m.question = string(msg)
		m.input.Prompt = m.question
		m.input.PromptStyle = questionStyle
		m.input.Reset()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.interrupted || m.c.interrupt == nil {
				m.quitting = true
				return m, tea.Quit
			}
			m.interrupted = true
			interrupt := m.c.interrupt
			return m, tea.Batch(
				tea.Println(hintStyle.Render("Shutting down, press Ctrl+C again to close the console")),
				func() tea.Msg { interrupt(); return nil },
			)
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyTab:
			return m, m.complete()
		case tea.KeyUp:
			m.recall(-1)
			return m, nil
		case tea.KeyDown:
			m.recall(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) submit() tea.Cmd {
	line := m.input.Value()
	m.input.Reset()

	if m.question != "" {
		echo := tea.Println(questionStyle.Render(m.question) + line)
		m.question = ""
		m.input.Prompt = m.c.prompt
		m.input.PromptStyle = promptStyle
		m.c.answer(line)
		return echo
	}

	echo := tea.Println(promptStyle.Render(m.c.prompt) + line)
	if strings.TrimSpace(line) == "" {
		return echo
	}
	m.remember(line)

	c := m.c
	return tea.Sequence(echo, func() tea.Msg {
		if err := c.Handle(line); err != nil {
			return printMsg("[ERROR] " + err.Error())
		}
		return nil
	})
}

// complete fills in the command name through the registry trie. Several
// matches extend the input to their common prefix and are listed.
func (m *model) complete() tea.Cmd {
	value := m.input.Value()
	if m.question != "" || strings.ContainsAny(value, " \t") {
		return nil
	}

	matches := m.c.commands.Complete(value)
	switch len(matches) {
	case 0:
		return nil
	case 1:
		m.input.SetValue(matches[0] + " ")
		m.input.CursorEnd()
		return nil
	}

	if prefix := commonPrefix(matches); len(prefix) > len(value) {
		m.input.SetValue(prefix)
		m.input.CursorEnd()
	}
	return tea.Println(hintStyle.Render(strings.Join(matches, "  ")))
}

func commonPrefix(words []string) string {
	if len(words) == 0 {
		return ""
	}
	prefix := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

func (m *model) remember(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
	}
	m.histPos = len(m.history)
}

func (m *model) recall(step int) {
	if len(m.history) == 0 || m.question != "" {
		return
	}
	m.histPos = min(max(m.histPos+step, 0), len(m.history))
	if m.histPos == len(m.history) {
		m.input.Reset()
		return
	}
	m.input.SetValue(m.history[m.histPos])
	m.input.CursorEnd()
}

// View implements tea.Model.
func (m *model) View() string {
	if m.quitting {
		return ""
	}
	return m.input.View() + "\n" + hintStyle.Render("tab complete • ↑/↓ history • ctrl+c quit")
}

func render(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "[ERROR]") || strings.HasPrefix(l, "Unknown command:") {
			lines[i] = errorStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
