package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// Settings fields fall in three groups, each submitted on its own.
const (
	groupProfile  = "profile"
	groupPassword = "password"
	groupAvatar   = "avatar"
)

var settingsGroups = map[string]string{
	"name":            groupProfile,
	"username":        groupProfile,
	"email":           groupProfile,
	"bio":             groupProfile,
	"currentPassword": groupPassword,
	"newPassword":     groupPassword,
	"confirmPassword": groupPassword,
	"avatar":          groupAvatar,
}

func newSettingsForm() form {
	return newForm(
		newField("name", "Name", "Your name", limit(64)),
		newField("username", "Username", "Letters, digits, underscores", limit(32)),
		newField("email", "Email", "you@email.com", limit(128)),
		newField("bio", "Bio", "A few words about you", limit(280)),
		newField("currentPassword", "Current password", "", secret, limit(64)),
		newField("newPassword", "New password", "At least 6 characters", secret, limit(64)),
		newField("confirmPassword", "Confirm new password", "", secret, limit(64)),
		newField("avatar", "Avatar image path", "~/Pictures/me.png", limit(512)),
	)
}

// fillSettings loads user into the profile fields, or the stored identity
// when user is nil.
func (m *Model) fillSettings(user *models.User) {
	var id models.Identity
	if user != nil {
		id = user.Identity()
	} else {
		id = m.app.Identity()
	}
	m.settings.set("name", id.Name)
	m.settings.set("username", id.Username)
	m.settings.set("email", id.Email)
	m.settings.set("bio", id.Bio)
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.view = viewConversations
		m.settings.reset()
		return m, nil
	case "tab", "down":
		m.settings.next()
		return m, nil
	case "shift+tab", "up":
		m.settings.prev()
		return m, nil
	case "ctrl+d":
		if m.settings.focusedKey() == "avatar" {
			m.settings.clearErrors()
			return m, m.deleteAvatar()
		}
	case "enter":
		m.settings.clearErrors()
		m.notice = ""
		return m, m.submitSettings()
	}
	return m, m.settings.update(msg)
}

func (m Model) submitSettings() tea.Cmd {
	f := &m.settings
	switch settingsGroups[f.focusedKey()] {
	case groupProfile:
		return m.saveProfile(models.ProfileUpdate{
			Name:     strings.TrimSpace(f.value("name")),
			Username: strings.TrimSpace(f.value("username")),
			Email:    strings.TrimSpace(f.value("email")),
			Bio:      strings.TrimSpace(f.value("bio")),
		})
	case groupPassword:
		return m.changePassword(f.value("currentPassword"), f.value("newPassword"), f.value("confirmPassword"))
	case groupAvatar:
		path := strings.TrimSpace(f.value("avatar"))
		if path == "" {
			return nil
		}
		return m.uploadAvatar(expandHome(path))
	}
	return nil
}

func (m Model) handleSettings(msg settingsMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.notice = ""
		var valErr *api.ValidationError
		switch {
		case errors.As(msg.err, &valErr) && msg.group == groupAvatar:
			m.settings.clearErrors()
			m.settings.errs["avatar"] = valErr.Error()
		case errors.As(msg.err, &valErr):
			m.settings.setError(msg.err)
		default:
			m.settings.clearErrors()
			m.settings.banner = m.errorText(msg.err)
		}
		return m, nil
	}

	m.notice = msg.notice
	switch msg.group {
	case groupPassword:
		m.settings.clear("currentPassword", "newPassword", "confirmPassword")
	case groupAvatar:
		m.settings.clear("avatar")
	}
	if msg.user != nil {
		m.fillSettings(msg.user)
	}
	return m, nil
}

func (m Model) settingsView() string {
	var s strings.Builder
	s.WriteString("\n")
	s.WriteString(titleStyle.Render("Settings"))
	s.WriteString("\n\n")

	if m.settings.banner != "" {
		s.WriteString(errorStyle.Render("  "+m.settings.banner) + "\n\n")
	}
	if m.notice != "" {
		s.WriteString(noticeStyle.Render("  ✓ "+m.notice) + "\n\n")
	}

	s.WriteString(selectedStyle.Render("  Profile") + "\n")
	s.WriteString(m.settings.view("name", "username", "email", "bio"))
	s.WriteString(selectedStyle.Render("  Password") + "\n")
	s.WriteString(m.settings.view("currentPassword", "newPassword", "confirmPassword"))
	s.WriteString(selectedStyle.Render("  Avatar") + "\n")
	if url := m.app.Identity().AvatarURL; url != "" {
		s.WriteString(mutedStyle.Render("  Current: "+url) + "\n")
	}
	s.WriteString(m.settings.view("avatar"))

	s.WriteString(helpStyle.Render("  Tab to move • Enter saves the focused section • Ctrl+D on avatar removes it • Esc to go back"))
	return s.String()
}
