package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cloudzz-dev/cldzchat/internal/models"
)

func (m Model) updateConversations(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.convs)-1 {
			m.selected++
		}
	case "enter":
		if len(m.convs) > 0 {
			conv := m.convs[m.selected]
			return m.enterChat(conv.PeerUserID, &models.User{
				ID:        conv.PeerUserID,
				Name:      conv.Name,
				Username:  conv.Username,
				AvatarURL: conv.AvatarURL,
			})
		}
	case "p":
		if len(m.convs) > 0 {
			m.back = viewConversations
			return m, m.loadPeer(m.convs[m.selected].PeerUserID, true)
		}
	case "n", "/":
		m.view = viewSearch
		m.banner = ""
		m.searchInput.Reset()
		m.app.ClearSearch()
		return m, m.searchInput.Focus()
	case "s":
		m.view = viewSettings
		m.notice = ""
		m.settings.reset()
		m.fillSettings(nil)
		return m, m.loadProfile()
	case "r":
		return m, m.loadConversations()
	case "ctrl+l":
		m.app.Logout()
		m.toLogin("")
	}
	return m, nil
}

func (m Model) conversationsView() string {
	var s strings.Builder
	s.WriteString("\n")

	if m.banner != "" {
		s.WriteString(errorStyle.Render("  "+m.banner) + "\n\n")
	}

	if len(m.convs) == 0 {
		s.WriteString(mutedStyle.Render("  No conversations yet.\n"))
		s.WriteString(mutedStyle.Render("  Press 'n' to find someone to talk to.\n"))
	} else {
		for i, conv := range m.convs {
			s.WriteString(m.conversationLine(i, conv))
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("  ↑/↓ navigate • Enter to open • p profile • n new chat • s settings • Ctrl+L log out • q quit"))
	return s.String()
}

func (m Model) conversationLine(i int, conv models.Conversation) string {
	prefix := "  "
	style := lipgloss.NewStyle()
	if i == m.selected {
		prefix = "→ "
		style = selectedStyle
	}

	dot := mutedStyle.Render("○")
	if online, _ := m.app.PeerPresence(models.User{ID: conv.PeerUserID}); online {
		dot = onlineStyle.Render("●")
	}

	name := conv.Name
	if name == "" {
		name = conv.Username
	}
	line := fmt.Sprintf("%s%s %s", prefix, dot, style.Render(name))
	if conv.Username != "" {
		line += mutedStyle.Render(" @" + conv.Username)
	}
	if conv.UnreadCount > 0 {
		line += " " + badgeStyle.Render(fmt.Sprintf("%d", conv.UnreadCount))
	}

	if conv.LastMessage != "" {
		preview := conv.LastMessage
		if conv.LastMessageSenderID == m.app.Identity().ID {
			preview = "You: " + preview
		}
		line += "\n      " + mutedStyle.Render(truncate(preview, 48))
	}
	return line
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
