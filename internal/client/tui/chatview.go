package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/chat"
	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// enterChat opens the thread with peerID. known is shown in the header until
// the full user arrives.
func (m Model) enterChat(peerID string, known *models.User) (tea.Model, tea.Cmd) {
	m.view = viewChat
	m.peerID = peerID
	m.peer = known
	m.threadErr = ""
	m.input.Reset()
	m.viewport.SetContent(mutedStyle.Render("Loading messages..."))
	return m, tea.Batch(
		m.input.Focus(),
		m.openThread(peerID),
		m.loadPeer(peerID, false),
	)
}

func (m Model) leaveChat() (tea.Model, tea.Cmd) {
	m.app.CloseThread()
	m.view = viewConversations
	m.peerID = ""
	m.peer = nil
	m.input.Blur()
	return m, m.loadConversations()
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.leaveChat()
	case "ctrl+p":
		m.back = viewChat
		return m, m.loadPeer(m.peerID, true)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		content := m.input.Value()
		if strings.TrimSpace(content) == "" {
			return m, nil
		}
		m.input.SetValue("")
		_, err := m.app.SendMessage(content)
		m.threadErr = ""
		if err != nil {
			m.threadErr = m.errorText(err)
		}
		m.renderThread()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) renderThread() {
	if m.view != viewChat {
		return
	}
	rows := m.app.ThreadRows(m.now())
	if len(rows) == 0 {
		m.viewport.SetContent(mutedStyle.Render("There are no messages yet. Say hi!"))
		return
	}

	self := m.app.Identity()
	peerName := "Them"
	if m.peer != nil && m.peer.Name != "" {
		peerName = m.peer.Name
	}

	var content strings.Builder
	for _, row := range rows {
		if row.Separator != "" {
			content.WriteString(separatorStyle.Render(fmt.Sprintf("── %s ──", row.Separator)) + "\n")
		}
		content.WriteString(m.messageLine(row, self.ID, peerName) + "\n")
	}
	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

func (m *Model) messageLine(row chat.Row, selfID, peerName string) string {
	msg := row.Message
	stamp := "     "
	if msg.Timestamp != nil {
		stamp = msg.Timestamp.In(m.now().Location()).Format("15:04")
	}

	name, style := peerName, otherMessageStyle
	if msg.SenderID == selfID {
		name, style = "You", ownMessageStyle
	}
	who := strings.Repeat(" ", len(name))
	if row.ShowName {
		who = style.Render(name)
	}

	line := fmt.Sprintf("%s %s: %s", mutedStyle.Render(stamp), who, msg.Content)
	switch {
	case m.app.Undelivered(msg):
		line += " " + errorStyle.Render("! not delivered")
	case msg.Pending():
		line += " " + mutedStyle.Render("…")
	}
	return line
}

func (m Model) chatView() string {
	var s strings.Builder

	name := "..."
	if m.peer != nil {
		name = m.peer.Name
		if name == "" {
			name = m.peer.Username
		}
	}
	s.WriteString(titleStyle.Render(fmt.Sprintf("💬 %s", name)))
	if m.peer != nil {
		s.WriteString(" " + m.presenceText(*m.peer))
	}
	s.WriteString("\n")
	s.WriteString(rule(m.width))
	s.WriteString("\n")

	s.WriteString(m.viewport.View())
	s.WriteString("\n")
	if m.threadErr != "" {
		s.WriteString(errorStyle.Render(m.threadErr) + "\n")
	}
	s.WriteString(rule(m.width))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("Enter to send • PgUp/PgDn scroll • Ctrl+P profile • Esc to go back"))
	return s.String()
}

func (m Model) presenceText(user models.User) string {
	online, lastSeen := m.app.PeerPresence(user)
	if online {
		return onlineStyle.Render("● online")
	}
	return mutedStyle.Render("last seen " + chat.FormatLastSeen(lastSeen, m.now()))
}

func (m Model) handlePeer(msg peerMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		text := m.errorText(msg.err)
		if m.view == viewChat {
			m.threadErr = text
		} else {
			m.banner = text
		}
		return m, nil
	}
	if msg.profile {
		m.viewing = msg.user
		m.view = viewProfile
		return m, nil
	}
	if m.view == viewChat && msg.user.ID == m.peerID {
		m.peer = msg.user
		m.renderThread()
	}
	return m, nil
}
