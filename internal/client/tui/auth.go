package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/models"
)

func newLoginForm() form {
	return newForm(
		newField("email", "Email", "you@email.com", limit(128)),
		newField("password", "Password", "Password", secret, limit(64)),
	)
}

func newSignupForm() form {
	return newForm(
		newField("name", "Name", "Your name", limit(64)),
		newField("username", "Username", "Letters, digits, underscores", limit(32)),
		newField("email", "Email", "you@email.com", limit(128)),
		newField("password", "Password", "At least 6 characters", secret, limit(64)),
	)
}

const logo = "╔═══════════════════════════════╗\n║          CLDZCHAT             ║\n╚═══════════════════════════════╝"

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "down":
		m.login.next()
		return m, nil
	case "shift+tab", "up":
		m.login.prev()
		return m, nil
	case "ctrl+r":
		m.view = viewSignup
		m.signup.reset()
		return m, nil
	case "enter":
		m.login.clearErrors()
		return m, m.submitLogin(m.login.value("email"), m.login.value("password"))
	}
	return m, m.login.update(msg)
}

func (m Model) updateSignup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+r":
		m.view = viewLogin
		return m, nil
	case "tab", "down":
		m.signup.next()
		return m, nil
	case "shift+tab", "up":
		m.signup.prev()
		return m, nil
	case "enter":
		m.signup.clearErrors()
		return m, m.submitSignup(models.RegisterRequest{
			Name:     strings.TrimSpace(m.signup.value("name")),
			Username: strings.TrimSpace(m.signup.value("username")),
			Email:    strings.TrimSpace(m.signup.value("email")),
			Password: m.signup.value("password"),
		})
	}
	return m, m.signup.update(msg)
}

func (m Model) handleAuth(msg authMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if m.view == viewSignup {
			m.signup.setError(msg.err)
		} else {
			m.login.setError(msg.err)
		}
		return m, nil
	}
	m.login.reset()
	m.signup.reset()
	m.view = viewConversations
	m.banner = ""
	return m, m.loadConversations()
}

func (m Model) loginView() string {
	var s strings.Builder
	s.WriteString("\n\n")
	s.WriteString(titleStyle.Render(logo))
	s.WriteString("\n\n")
	s.WriteString(selectedStyle.Render("  → Log in"))
	s.WriteString(mutedStyle.Render("   Sign up\n"))
	s.WriteString(helpStyle.Render("  (Ctrl+R to switch)\n\n"))

	if m.login.banner != "" {
		s.WriteString(errorStyle.Render("  "+m.login.banner) + "\n\n")
	}
	s.WriteString(m.login.view())
	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to submit • Esc to quit\n"))
	return s.String()
}

func (m Model) signupView() string {
	var s strings.Builder
	s.WriteString("\n\n")
	s.WriteString(titleStyle.Render(logo))
	s.WriteString("\n\n")
	s.WriteString(mutedStyle.Render("  Log in   "))
	s.WriteString(selectedStyle.Render("→ Sign up\n"))
	s.WriteString(helpStyle.Render("  (Ctrl+R to switch)\n\n"))

	if m.signup.banner != "" {
		s.WriteString(errorStyle.Render("  "+m.signup.banner) + "\n\n")
	}
	s.WriteString(m.signup.view())
	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to create account • Esc to go back\n"))
	return s.String()
}
