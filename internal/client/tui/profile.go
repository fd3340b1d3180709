package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mitchellh/go-homedir"
)

func (m Model) updateProfile(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.view = m.back
		m.viewing = nil
		if m.view == viewChat {
			return m, m.input.Focus()
		}
		if m.view == viewSearch {
			return m, m.searchInput.Focus()
		}
		return m, nil
	case "enter":
		if m.viewing == nil || m.viewing.ID == m.app.Identity().ID {
			return m, nil
		}
		user := *m.viewing
		m.viewing = nil
		m.app.ClearSearch()
		return m.enterChat(user.ID, &user)
	}
	return m, nil
}

func (m Model) profileView() string {
	var s strings.Builder
	s.WriteString("\n")
	if m.viewing == nil {
		s.WriteString(mutedStyle.Render("  Loading profile..."))
		return s.String()
	}
	u := *m.viewing

	s.WriteString(titleStyle.Render(u.Name))
	s.WriteString(" " + m.presenceText(u))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("  Username: @%s\n", u.Username))
	s.WriteString(fmt.Sprintf("  Email:    %s\n", u.Email))
	if u.Bio != "" {
		s.WriteString(fmt.Sprintf("  Bio:      %s\n", u.Bio))
	}
	if u.AvatarURL != "" {
		s.WriteString(mutedStyle.Render("  Avatar:   "+u.AvatarURL) + "\n")
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  Enter to send a message • Esc to go back"))
	return s.String()
}

func expandHome(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	if abs, err := filepath.Abs(expanded); err == nil {
		if _, statErr := os.Stat(abs); statErr == nil {
			return abs
		}
	}
	return expanded
}
