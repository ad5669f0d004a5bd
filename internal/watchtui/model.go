// Package watchtui implements the subscriber dashboard: a bubbletea
// program that connects to a running chorusd's output socket and
// renders Turns as they're broadcast.
package watchtui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	metaStyle   = lipgloss.NewStyle().Faint(true)
	turnStyle   = lipgloss.NewStyle().PaddingLeft(2)
)

type turnMsg struct {
	Ts      int64  `json:"ts"`
	Session string `json:"session"`
	Turn    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"turn"`
}

type connectedMsg struct{ conn net.Conn }
type disconnectedMsg struct{ err error }
type turnReceivedMsg struct{ turn turnMsg }

// Model is the bubbletea model for the watch dashboard.
type Model struct {
	socketPath string
	viewport   viewport.Model
	turns      []turnMsg
	connected  bool
	lastErr    error
	conn       net.Conn
}

// New constructs a watch dashboard model for the output socket at
// socketPath.
func New(socketPath string) Model {
	vp := viewport.New(80, 20)
	return Model{socketPath: socketPath, viewport: vp}
}

// Init connects to the output socket.
func (m Model) Init() tea.Cmd {
	return connect(m.socketPath)
}

func connect(socketPath string) tea.Cmd {
	return func() tea.Msg {
		conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

func readNext(conn net.Conn) tea.Cmd {
	return func() tea.Msg {
		reader := bufio.NewReaderSize(conn, 64*1024)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return disconnectedMsg{err: err}
		}
		var t turnMsg
		if err := json.Unmarshal(line, &t); err != nil {
			return readNext(conn)()
		}
		return turnReceivedMsg{turn: t}
	}
}

// Update handles bubbletea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 3
		m.viewport.SetContent(m.render())
		return m, nil

	case connectedMsg:
		m.connected = true
		m.conn = msg.conn
		return m, readNext(msg.conn)

	case disconnectedMsg:
		m.connected = false
		m.lastErr = msg.err
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return connect(m.socketPath)()
		})

	case turnReceivedMsg:
		m.turns = append(m.turns, msg.turn)
		m.viewport.SetContent(m.render())
		m.viewport.GotoBottom()
		return m, readNext(m.conn)
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	status := "connecting..."
	if m.connected {
		status = "connected"
	} else if m.lastErr != nil {
		status = fmt.Sprintf("disconnected (%s), retrying...", m.lastErr)
	}
	header := headerStyle.Render("chorusd watch") + "  " + metaStyle.Render(status)
	return header + "\n" + m.viewport.View() + "\n" + metaStyle.Render(fmt.Sprintf("%s turns · q to quit", humanize.Comma(int64(len(m.turns)))))
}

func (m Model) render() string {
	var b strings.Builder
	for _, t := range m.turns {
		ts := time.Unix(t.Ts, 0).Local().Format("15:04:05")
		b.WriteString(metaStyle.Render(fmt.Sprintf("[%s] %s", ts, t.Session)))
		b.WriteString("\n")
		for _, block := range t.Turn {
			if block.Type == "text" && block.Text != "" {
				b.WriteString(turnStyle.Render(block.Text))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
