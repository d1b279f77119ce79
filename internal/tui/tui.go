// Package tui is an interactive suggestion client. Keystrokes are debounced
// and sent to a remote gateway; only the newest response is ever shown.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bastiangx/suggestserve/pkg/client"
	"github.com/bastiangx/suggestserve/pkg/gateway"
)

// SuggestFunc fetches suggestions for the current input.
type SuggestFunc func(ctx context.Context, text string) (*gateway.SuggestResponse, error)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8ec07c"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fabd2f"))
	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#928374"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#fb4934"))
)

type resultMsg client.Response[*gateway.SuggestResponse]

type closedMsg struct{}

// Model is the bubbletea model.
type Model struct {
	input     textinput.Model
	debouncer *client.Debouncer[*gateway.SuggestResponse]
	title     string

	results  *gateway.SuggestResponse
	seq      uint64
	err      error
	selected int
	chosen   string
}

// New creates a model. quiet is the debounce interval.
func New(title string, quiet time.Duration, fetch SuggestFunc) *Model {
	ti := textinput.New()
	ti.Placeholder = "start typing..."
	ti.Prompt = "> "
	ti.CharLimit = 256
	ti.Focus()

	return &Model{
		input:     ti,
		debouncer: client.NewDebouncer[*gateway.SuggestResponse](quiet, fetch),
		title:     title,
	}
}

// Chosen is the suggestion accepted with enter, if any.
func (m *Model) Chosen() string {
	return m.chosen
}

// Close stops the debouncer.
func (m *Model) Close() {
	m.debouncer.Close()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForResult())
}

// waitForResult turns the next debouncer response into a message.
func (m *Model) waitForResult() tea.Cmd {
	results := m.debouncer.Results()
	return func() tea.Msg {
		r, ok := <-results
		if !ok {
			return closedMsg{}
		}
		return resultMsg(r)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if s := m.selectedText(); s != "" {
				m.chosen = s
				return m, tea.Quit
			}
			return m, nil
		case tea.KeyUp, tea.KeyShiftTab:
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case tea.KeyDown, tea.KeyTab:
			if m.results != nil && m.selected < len(m.results.Suggestions)-1 {
				m.selected++
			}
			return m, nil
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if value := m.input.Value(); value != before {
			m.onInput(value)
		}
		return m, cmd

	case resultMsg:
		m.apply(client.Response[*gateway.SuggestResponse](msg))
		return m, m.waitForResult()

	case closedMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) onInput(value string) {
	if strings.TrimSpace(value) == "" {
		m.results = nil
		m.err = nil
		m.selected = 0
		return
	}
	m.debouncer.Input(value)
}

// apply shows r unless a newer response was already shown.
func (m *Model) apply(r client.Response[*gateway.SuggestResponse]) {
	if r.Seq < m.seq {
		return
	}
	m.seq = r.Seq
	if strings.TrimSpace(m.input.Value()) == "" {
		return
	}
	if r.Err != nil {
		if errors.Is(r.Err, context.Canceled) {
			return
		}
		m.err = r.Err
		m.results = nil
		return
	}
	m.err = nil
	m.results = r.Value
	m.selected = 0
}

func (m *Model) selectedText() string {
	if m.results == nil || m.selected >= len(m.results.Suggestions) {
		return ""
	}
	return m.results.Suggestions[m.selected].Text
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		if apiErr, ok := client.AsAPIError(m.err); ok && apiErr.Message != "" {
			b.WriteString(dimStyle.Render(apiErr.Message))
		} else {
			b.WriteString(errorStyle.Render(m.err.Error()))
		}
		b.WriteString("\n")
	case m.results != nil && len(m.results.Suggestions) == 0:
		b.WriteString(dimStyle.Render("no suggestions"))
		b.WriteString("\n")
	case m.results != nil:
		for i, s := range m.results.Suggestions {
			line := s.Text
			if i == m.selected {
				b.WriteString(selectedStyle.Render("› " + line))
			} else {
				b.WriteString(itemStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n%d results in %.2fms", len(m.results.Suggestions), m.results.TookMs)))
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render("\n↑/↓ select • enter accept • esc quit"))
	return b.String()
}

// Run starts the program and returns the accepted suggestion.
func Run(title string, quiet time.Duration, fetch SuggestFunc) (string, error) {
	m := New(title, quiet, fetch)
	defer m.Close()

	if _, err := tea.NewProgram(m).Run(); err != nil {
		return "", err
	}
	return m.Chosen(), nil
}
