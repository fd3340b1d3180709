package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/chat"
	"github.com/cloudzz-dev/cldzchat/internal/client/realtime"
	"github.com/cloudzz-dev/cldzchat/internal/models"
)

// --- Messages ---

type redirectMsg struct{}

type statusMsg struct {
	status realtime.Status
}

type inboundMsg struct {
	msg *models.Message
}

type presenceMsg struct{}

type clockMsg time.Time

type authMsg struct {
	identity *models.Identity
	err      error
}

type conversationsMsg struct {
	items []models.Conversation
	err   error
}

type threadMsg struct {
	peerID string
	err    error
}

type sentMsg struct {
	err error
}

type peerMsg struct {
	user    *models.User
	err     error
	profile bool
}

type searchTickMsg struct {
	seq uint64
}

type searchResultMsg struct {
	seq uint64
	err error
}

type profileMsg struct {
	user *models.User
	err  error
}

type settingsMsg struct {
	notice string
	user   *models.User
	err    error
	group  string
}

// --- Subscriptions ---

func waitRedirect(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return redirectMsg{}
	}
}

func waitStatus(ch <-chan realtime.Status) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return statusMsg{status: s}
	}
}

func waitInbound(ch <-chan *models.Message) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-ch
		if !ok {
			return nil
		}
		return inboundMsg{msg: m}
	}
}

func waitPresence(ch <-chan uint64) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return presenceMsg{}
	}
}

func clockTick() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func searchTick(seq uint64) tea.Cmd {
	return tea.Tick(chat.SearchDebounce, func(time.Time) tea.Msg { return searchTickMsg{seq: seq} })
}

// --- Requests ---

func (m Model) loadConversations() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		items, err := a.Conversations(ctx)
		return conversationsMsg{items: items, err: err}
	}
}

func (m Model) openThread(peerID string) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		_, err := a.OpenThread(ctx, peerID)
		return threadMsg{peerID: peerID, err: err}
	}
}

func (m Model) refreshThread(peerID string) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		return threadMsg{peerID: peerID, err: a.RefreshThread(ctx)}
	}
}

func (m Model) loadPeer(id string, profile bool) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		user, err := a.Peer(ctx, id)
		return peerMsg{user: user, err: err, profile: profile}
	}
}

func (m Model) submitLogin(email, password string) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		id, err := a.Login(ctx, email, password)
		return authMsg{identity: id, err: err}
	}
}

func (m Model) submitSignup(req models.RegisterRequest) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		id, err := a.Register(ctx, req)
		return authMsg{identity: id, err: err}
	}
}

func (m Model) runSearch(seq uint64) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		ran, err := a.RunSearch(ctx, seq)
		if !ran && err == nil {
			return nil
		}
		return searchResultMsg{seq: seq, err: err}
	}
}

func (m Model) loadProfile() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		user, err := a.Profile(ctx)
		return profileMsg{user: user, err: err}
	}
}

func (m Model) saveProfile(update models.ProfileUpdate) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		user, err := a.UpdateProfile(ctx, update)
		return settingsMsg{notice: "Profile updated", user: user, err: err, group: groupProfile}
	}
}

func (m Model) changePassword(current, next, confirm string) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		err := a.ChangePassword(ctx, current, next, confirm)
		return settingsMsg{notice: "Password changed", err: err, group: groupPassword}
	}
}

func (m Model) uploadAvatar(path string) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		user, err := a.UploadAvatar(ctx, path)
		return settingsMsg{notice: "Avatar updated", user: user, err: err, group: groupAvatar}
	}
}

func (m Model) deleteAvatar() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		err := a.DeleteAvatar(ctx)
		return settingsMsg{notice: "Avatar removed", err: err, group: groupAvatar}
	}
}
