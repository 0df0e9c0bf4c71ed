package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tvroute/internal/hal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E8B53B"))
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	DetailScreen
)

var (
	quitKey    = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKey      = key.NewBinding(key.WithKeys("up", "k"))
	downKey    = key.NewBinding(key.WithKeys("down", "j"))
	enterKey   = key.NewBinding(key.WithKeys("enter"))
	backKey    = key.NewBinding(key.WithKeys("esc"))
	refreshKey = key.NewBinding(key.WithKeys("r"))
)

// LoadFunc enumerates the ports to display.
type LoadFunc func() ([]hal.Port, error)

// PortListModel is the Bubble Tea model for browsing the hardware port
// inventory and the configurations live patches put on it.
type PortListModel struct {
	load          LoadFunc
	ports         []hal.Port
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
}

type portsMsg struct {
	ports []hal.Port
}

type errMsg struct {
	err error
}

// NewPortListModel creates a model that enumerates ports with load.
func NewPortListModel(load LoadFunc) PortListModel {
	return PortListModel{load: load, activeScreen: ListScreen}
}

// Init starts the first enumeration.
func (m PortListModel) Init() tea.Cmd {
	return m.fetchPorts
}

func (m PortListModel) fetchPorts() tea.Msg {
	ports, err := m.load()
	if err != nil {
		return errMsg{err}
	}
	return portsMsg{ports}
}

func (m PortListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.render()

	case portsMsg:
		m.ports = msg.ports
		m.err = nil
		if m.selectedIndex >= len(m.ports) {
			m.selectedIndex = max(0, len(m.ports)-1)
		}
		if len(m.ports) == 0 {
			m.activeScreen = ListScreen
		}
		m.render()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			return m, tea.Quit
		}
		if key.Matches(msg, refreshKey) {
			return m, m.fetchPorts
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKey):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, downKey):
				if m.selectedIndex < len(m.ports)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, enterKey):
				if len(m.ports) > 0 {
					m.activeScreen = DetailScreen
				}
			}
		case DetailScreen:
			if key.Matches(msg, backKey) {
				m.activeScreen = ListScreen
			}
		}
		m.render()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *PortListModel) render() {
	if !m.ready {
		return
	}
	if m.activeScreen == DetailScreen {
		m.viewport.SetContent(m.renderPortDetail())
		return
	}
	m.viewport.SetContent(m.renderPorts())
}

// View renders the UI
func (m PortListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nr: Retry • q: Quit", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Ports")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Details • r: Refresh • q: Quit")
	} else {
		title = titleStyle.Render("Port Details")
		help = infoStyle.Render("Esc: Back • r: Refresh • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m PortListModel) renderPorts() string {
	if len(m.ports) == 0 {
		return "No audio ports found."
	}

	var sb strings.Builder
	for i, p := range m.ports {
		line := fmt.Sprintf("[%d] %-6s %-16s %s (%s)", i, p.Direction, p.Class, p.Address, p.Name)
		switch {
		case i == m.selectedIndex:
			line = highlightStyle.Render(line)
		case p.Active != nil:
			line = activeStyle.Render(line)
		}
		sb.WriteString(line)
		if p.Active != nil {
			sb.WriteString(" *")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m PortListModel) renderPortDetail() string {
	p := m.ports[m.selectedIndex]

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", highlightStyle.Render(p.String()))
	fmt.Fprintf(&sb, "  Sample rates: %s\n", joinInts(p.SampleRates))

	masks := make([]string, len(p.Masks))
	for i, mask := range p.Masks {
		masks[i] = fmt.Sprintf("0x%x (%dch)", uint32(mask), mask.Count())
	}
	fmt.Fprintf(&sb, "  Channel masks: %s\n", strings.Join(masks, ", "))

	encodings := make([]string, len(p.Encodings))
	for i, e := range p.Encodings {
		encodings[i] = e.String()
	}
	fmt.Fprintf(&sb, "  Encodings: %s\n", strings.Join(encodings, ", "))

	if p.Gain.Controllable() {
		fmt.Fprintf(&sb, "  Gain: %d..%d mB, step %d, default %d\n", p.Gain.Min, p.Gain.Max, p.Gain.Step, p.Gain.Default)
	} else {
		sb.WriteString("  Gain: none\n")
	}

	if p.Active != nil {
		fmt.Fprintf(&sb, "\n  Active: %s\n", activeStyle.Render(p.Active.String()))
	} else {
		sb.WriteString("\n  Active: idle\n")
	}
	return sb.String()
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, ", ")
}

// StartPortListUI launches the Bubble Tea TUI for browsing ports.
func StartPortListUI(load LoadFunc) error {
	p := tea.NewProgram(
		NewPortListModel(load),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
