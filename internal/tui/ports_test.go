package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvroute/internal/hal"
	"tvroute/internal/hal/sim"
)

func update(t *testing.T, m PortListModel, msg tea.Msg) (PortListModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(PortListModel)
	require.True(t, ok)
	return pm, cmd
}

func loadedModel(t *testing.T) PortListModel {
	t.Helper()
	ports := sim.DefaultPorts()
	active := hal.PortConfig{Port: ports[0].Ref(), SampleRate: 48000, Mask: hal.InStereo, Encoding: hal.EncodingPCM16}
	ports[0].Active = &active

	m := NewPortListModel(func() ([]hal.Port, error) { return ports, nil })
	msg := m.Init()()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, msg)
	return m
}

func TestPortListRendersInventory(t *testing.T) {
	m := NewPortListModel(func() ([]hal.Port, error) { return nil, nil })
	assert.Equal(t, "Initializing...", m.View())

	m = loadedModel(t)
	view := m.View()
	assert.Contains(t, view, "Audio Ports")
	assert.Contains(t, view, "tv_tuner")
	assert.Contains(t, view, "hdmi_arc")
	assert.Contains(t, view, "*", "active ports are marked")
}

func TestPortListNavigation(t *testing.T) {
	m := loadedModel(t)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.selectedIndex)
	for range 10 {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	}
	assert.Equal(t, len(sim.DefaultPorts())-1, m.selectedIndex)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, DetailScreen, m.activeScreen)
	view := m.View()
	assert.Contains(t, view, "Port Details")
	assert.Contains(t, view, "spdif")
	assert.Contains(t, view, "Gain: none")
	assert.Contains(t, view, "Active: idle")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ListScreen, m.activeScreen)
}

func TestPortDetailShowsActiveConfig(t *testing.T) {
	m := loadedModel(t)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	view := m.View()
	assert.Contains(t, view, "Gain: -6400..0 mB")
	assert.Contains(t, view, "48000Hz")
	assert.Contains(t, view, "pcm16, ac3, eac3")
}

func TestPortListErrorsAndRefresh(t *testing.T) {
	calls := 0
	m := NewPortListModel(func() ([]hal.Port, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("hardware offline")
		}
		return sim.DefaultPorts(), nil
	})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	m, _ = update(t, m, m.Init()())
	assert.Contains(t, m.View(), "hardware offline")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, 2, calls)
	assert.Contains(t, m.View(), "tv_tuner")
}

func TestPortListQuit(t *testing.T) {
	m := loadedModel(t)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestPortListEmpty(t *testing.T) {
	m := NewPortListModel(func() ([]hal.Port, error) { return nil, nil })
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	m, _ = update(t, m, m.Init()())
	assert.Contains(t, m.View(), "No audio ports found.")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ListScreen, m.activeScreen)
}
