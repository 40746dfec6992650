// Package tui renders the synchronized roster and the selected terminal's
// content as a Bubble Tea program.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pkt.systems/termsync/core"
	"pkt.systems/termsync/internal/eventbus"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
)

const listWidth = 32

// Source is the synchronization surface the viewer reads and drives.
type Source interface {
	Terminals() []schema.Terminal
	Content(id schema.TerminalID) (schema.TerminalContent, bool)
	Selected() (schema.Terminal, bool)
	Select(ctx context.Context, terminal *schema.Terminal) error
	SendCommand(ctx context.Context, id schema.TerminalID, text string, newline bool) (schema.CommandResponse, error)
	Disconnect(id schema.TerminalID)
	FetchTerminals(ctx context.Context) error
	Status() core.Status
	State(id schema.TerminalID) schema.ConnState
	RosterState() schema.ConnState
}

// Model is the Bubble Tea model of the viewer.
type Model struct {
	ctx    context.Context
	src    Source
	events <-chan eventbus.Event

	keys     keyMap
	help     help.Model
	input    textinput.Model
	viewport viewport.Model

	terminals []schema.Terminal
	cursor    int
	inputting bool
	notice    string
	err       error
	width     int
	height    int
}

type busMsg struct {
	event eventbus.Event
	ok    bool
}

type selectedMsg struct{ err error }

type sentMsg struct {
	id  schema.TerminalID
	err error
}

type fetchedMsg struct{ err error }

// New constructs the viewer. events may be nil, in which case the view only
// refreshes on user input.
func New(ctx context.Context, src Source, events <-chan eventbus.Event) Model {
	input := textinput.New()
	input.Placeholder = "command"
	input.Prompt = "> "
	m := Model{
		ctx:      ctx,
		src:      src,
		events:   events,
		keys:     defaultKeyMap(),
		help:     help.New(),
		input:    input,
		viewport: viewport.New(80, 20),
		width:    120,
		height:   30,
	}
	m.resize()
	m.reload()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitEvent(m.events)
}

func waitEvent(events <-chan eventbus.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		return busMsg{event: ev, ok: ok}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.reload()
		return m, nil
	case busMsg:
		if !msg.ok {
			m.events = nil
			return m, nil
		}
		m.reload()
		return m, waitEvent(m.events)
	case selectedMsg:
		m.err = msg.err
		m.reload()
		return m, nil
	case sentMsg:
		m.err = msg.err
		if msg.err == nil {
			m.notice = fmt.Sprintf("sent to %s", msg.id)
		}
		return m, nil
	case fetchedMsg:
		m.err = msg.err
		m.reload()
		return m, nil
	case tea.KeyMsg:
		if m.inputting {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.terminals)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Select):
		terminal, ok := m.highlighted()
		if !ok {
			return m, nil
		}
		m.notice = ""
		return m, m.selectCmd(terminal)
	case key.Matches(msg, m.keys.Input):
		if _, ok := m.src.Selected(); !ok {
			m.notice = "select a terminal first"
			return m, nil
		}
		m.inputting = true
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Disconnect):
		terminal, ok := m.highlighted()
		if !ok {
			return m, nil
		}
		m.src.Disconnect(terminal.ID)
		m.notice = fmt.Sprintf("disconnected %s", terminal.Label())
		m.reload()
	case key.Matches(msg, m.keys.Refresh):
		m.notice = ""
		return m, m.fetchCmd()
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.inputting = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.inputting = false
		m.input.Blur()
		terminal, ok := m.src.Selected()
		if !ok {
			return m, nil
		}
		text := m.input.Value()
		m.input.SetValue("")
		return m, m.sendCmd(terminal.ID, text)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) selectCmd(terminal schema.Terminal) tea.Cmd {
	ctx, src := m.ctx, m.src
	return func() tea.Msg {
		return selectedMsg{err: src.Select(ctx, &terminal)}
	}
}

func (m Model) sendCmd(id schema.TerminalID, text string) tea.Cmd {
	ctx, src := m.ctx, m.src
	return func() tea.Msg {
		_, err := src.SendCommand(ctx, id, text, true)
		if err != nil {
			logx.WithTerminalCtx(ctx, id).Warn("command send failed", "err", err)
		}
		return sentMsg{id: id, err: err}
	}
}

func (m Model) fetchCmd() tea.Cmd {
	ctx, src := m.ctx, m.src
	return func() tea.Msg {
		return fetchedMsg{err: src.FetchTerminals(ctx)}
	}
}

func (m Model) highlighted() (schema.Terminal, bool) {
	if m.cursor < 0 || m.cursor >= len(m.terminals) {
		return schema.Terminal{}, false
	}
	return m.terminals[m.cursor], true
}

// reload pulls the current roster and selected content from the source.
func (m *Model) reload() {
	var current schema.TerminalID
	if terminal, ok := m.highlighted(); ok {
		current = terminal.ID
	}
	m.terminals = m.src.Terminals()
	m.cursor = min(m.cursor, max(len(m.terminals)-1, 0))
	for i, terminal := range m.terminals {
		if terminal.ID == current {
			m.cursor = i
			break
		}
	}

	selected, ok := m.src.Selected()
	if !ok {
		m.viewport.SetContent(dimStyle.Render("no terminal selected"))
		return
	}
	content, ok := m.src.Content(selected.ID)
	if !ok {
		m.viewport.SetContent(dimStyle.Render("loading..."))
		return
	}
	m.viewport.SetContent(content.VisibleContent)
	m.viewport.GotoBottom()
}

func (m *Model) resize() {
	m.viewport.Width = max(m.width-listWidth-6, 10)
	m.viewport.Height = max(m.height-6, 3)
	m.input.Width = max(m.viewport.Width-4, 10)
	m.help.Width = m.width
}

// View implements tea.Model.
func (m Model) View() string {
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderList(), m.renderContent())
	var footer string
	if m.inputting {
		footer = m.input.View()
	} else {
		footer = m.help.View(m.keys)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatus(), footer)
}

func (m Model) renderList() string {
	selected, hasSelected := m.src.Selected()
	var b strings.Builder
	if len(m.terminals) == 0 {
		b.WriteString(dimStyle.Render("no terminals"))
	}
	for i, terminal := range m.terminals {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		line := truncate(terminal.Label(), listWidth-6)
		if hasSelected && terminal.ID == selected.ID {
			line = selectedStyle.Render(line)
		}
		if m.src.State(terminal.ID) == schema.ConnOpen {
			line += dimStyle.Render(" ●")
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(prefix + line)
	}
	return listStyle.Width(listWidth).Height(m.viewport.Height).Render(b.String())
}

func (m Model) renderContent() string {
	return contentStyle.Render(m.viewport.View())
}

func (m Model) renderStatus() string {
	parts := []string{fmt.Sprintf("roster: %s", m.src.RosterState())}
	status := m.src.Status()
	if status.Loading {
		parts = append(parts, "loading...")
	}
	if selected, ok := m.src.Selected(); ok {
		parts = append(parts, fmt.Sprintf("%s: %s", selected.Label(), m.src.State(selected.ID)))
	}
	if m.notice != "" {
		parts = append(parts, m.notice)
	}
	line := dimStyle.Render(strings.Join(parts, " | "))
	err := m.err
	if err == nil {
		err = status.Err
	}
	if err != nil {
		line += " " + errorStyle.Render(err.Error())
	}
	return line
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}
