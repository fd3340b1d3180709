package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	results := m.app.SearchState().Results

	switch msg.String() {
	case "esc":
		m.view = viewConversations
		m.searchInput.Blur()
		m.app.ClearSearch()
		return m, nil
	case "up":
		if m.searchSel > 0 {
			m.searchSel--
		}
		return m, nil
	case "down":
		if m.searchSel < len(results)-1 {
			m.searchSel++
		}
		return m, nil
	case "enter":
		if len(results) == 0 {
			return m, nil
		}
		user := results[m.searchSel]
		m.searchInput.Blur()
		m.app.ClearSearch()
		return m.enterChat(user.ID, &user)
	case "ctrl+p":
		if len(results) == 0 {
			return m, nil
		}
		m.back = viewSearch
		return m, m.loadPeer(results[m.searchSel].ID, true)
	}

	before := m.searchInput.Value()
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	if m.searchInput.Value() == before {
		return m, cmd
	}

	m.banner = ""
	seq, schedule := m.app.SearchInput(m.searchInput.Value())
	if !schedule {
		return m, cmd
	}
	return m, tea.Batch(cmd, searchTick(seq))
}

func (m Model) searchView() string {
	var s strings.Builder
	s.WriteString("\n")
	s.WriteString(titleStyle.Render("Find people"))
	s.WriteString("\n\n  ")
	s.WriteString(m.searchInput.View())
	s.WriteString("\n\n")

	state := m.app.SearchState()
	switch {
	case m.banner != "":
		s.WriteString(errorStyle.Render("  "+m.banner) + "\n")
	case state.Searching:
		s.WriteString(mutedStyle.Render("  Searching...\n"))
	case strings.TrimSpace(m.searchInput.Value()) != "" && len(state.Results) == 0:
		s.WriteString(mutedStyle.Render("  No users found.\n"))
	}

	for i, user := range state.Results {
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.searchSel {
			prefix = "→ "
			style = selectedStyle
		}
		s.WriteString(style.Render(fmt.Sprintf("%s%s", prefix, user.Name)))
		s.WriteString(mutedStyle.Render(" @"+user.Username) + "\n")
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  Type to search • ↑/↓ select • Enter to chat • Ctrl+P profile • Esc to go back"))
	return s.String()
}
