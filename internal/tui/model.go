// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package tui is the interactive terminal chat.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nyaya-dev/nyaya/internal/chat"
	"github.com/nyaya-dev/nyaya/internal/rag"
)

// Chatter is the TUI-facing subset of the query service.
type Chatter interface {
	Chat(ctx context.Context, question string) (*rag.Response, error)
}

// turn is one question and its outcome.
type turn struct {
	question string
	resp     *rag.Response
	err      error
}

type answerMsg struct {
	question string
	resp     *rag.Response
	err      error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	service  Chatter
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	summary  string
	history  []turn
	pending  string
	ready    bool
	quitting bool
}

func New(ctx context.Context, service Chatter, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the Indian Constitution, or type quit"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:      ctx,
		service:  service,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		summary:  summary,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// Busy reports whether a question is awaiting its answer.
func (m Model) Busy() bool { return m.pending != "" }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + bh // header and summary, status, frames
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.pending = ""
		m.history = append(m.history, turn(msg))
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if !m.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if chat.IsExit(question) {
		m.quitting = true
		return m, tea.Quit
	}
	if question == "" || m.Busy() {
		return m, nil
	}

	m.input.Reset()
	m.pending = question
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.ask(question))
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.service.Chat(m.ctx, question)
		return answerMsg{question: question, resp: resp, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
}

func (m Model) transcript() string {
	if len(m.history) == 0 && m.pending == "" {
		return mutedStyle.Render("No questions yet.")
	}

	var b strings.Builder
	for _, t := range m.history {
		b.WriteString(questionStyle.Render("You: "+t.question) + "\n")
		if t.err != nil {
			b.WriteString(errorStyle.Render("Error: "+t.err.Error()) + "\n\n")
			continue
		}
		b.WriteString(lipgloss.NewStyle().Width(max(20, m.viewport.Width-2)).Render(t.resp.Answer) + "\n")
		if len(t.resp.Sources) > 0 {
			b.WriteString(mutedStyle.Render(sourceLine(t.resp.Sources)) + "\n")
		}
		b.WriteString("\n")
	}
	if m.pending != "" {
		b.WriteString(questionStyle.Render("You: "+m.pending) + "\n")
	}
	return b.String()
}

func sourceLine(sources []rag.Source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf("[%d] %s (%.2f)", s.Rank, s.RecordID, s.Relevance)
	}
	return "Sources: " + strings.Join(parts, "  ")
}

func (m Model) View() string {
	if m.quitting {
		return chat.Goodbye + "\n"
	}
	if !m.ready {
		return "Loading..."
	}

	status := statusStyle.Render("Enter to ask, PgUp/PgDn to scroll, Esc to quit")
	if m.Busy() {
		status = m.spinner.View() + " " + chat.Thinking
	}

	return headerStyle.Render("NyayaGPT") + "\n" +
		mutedStyle.Render(m.summary) + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, service Chatter, summary string) error {
	_, err := tea.NewProgram(New(ctx, service, summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
