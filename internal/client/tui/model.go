// Package tui is the terminal view layer. Screens read the session through
// the app container and re-render on pushed events.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/app"
	"github.com/cloudzz-dev/cldzchat/internal/client/realtime"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
	"github.com/cloudzz-dev/cldzchat/internal/models"
)

type viewState int

const (
	viewLogin viewState = iota
	viewSignup
	viewConversations
	viewChat
	viewSearch
	viewSettings
	viewProfile
)

type Model struct {
	app *app.App
	ctx context.Context
	now func() time.Time

	statusCh   <-chan realtime.Status
	inboundCh  <-chan *models.Message
	presenceCh <-chan uint64
	cancels    []func()

	view   viewState
	width  int
	height int
	status realtime.Status
	banner string

	// Auth
	login  form
	signup form

	// Conversations
	convs    []models.Conversation
	selected int

	// Chat
	peerID    string
	peer      *models.User
	input     textinput.Model
	viewport  viewport.Model
	threadErr string

	// Search
	searchInput textinput.Model
	searchSel   int

	// Settings
	settings form
	notice   string

	// Profile
	viewing *models.User
	back    viewState
}

func New(ctx context.Context, a *app.App) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 1000
	input.Width = 50

	searchInput := textinput.New()
	searchInput.Placeholder = "Search by name or username..."
	searchInput.CharLimit = 64
	searchInput.Width = 40

	m := Model{
		app:         a,
		ctx:         ctx,
		now:         time.Now,
		login:       newLoginForm(),
		signup:      newSignupForm(),
		settings:    newSettingsForm(),
		input:       input,
		searchInput: searchInput,
		viewport:    viewport.New(80, 20),
		view:        viewLogin,
		status:      a.ConnectionStatus(),
	}

	var cancel func()
	m.statusCh, cancel = a.SubscribeStatus()
	m.cancels = append(m.cancels, cancel)
	m.inboundCh, cancel = a.Shared().SubscribeMessages()
	m.cancels = append(m.cancels, cancel)
	m.presenceCh, cancel = a.Shared().Presence().Subscribe()
	m.cancels = append(m.cancels, cancel)

	if a.Resume() {
		m.view = viewConversations
	}
	return m
}

// Close releases the event subscriptions.
func (m Model) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		waitRedirect(m.app.Redirects()),
		waitStatus(m.statusCh),
		waitInbound(m.inboundCh),
		waitPresence(m.presenceCh),
		clockTick(),
	}
	if m.view == viewConversations {
		cmds = append(cmds, m.loadConversations())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 9
		m.renderThread()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case redirectMsg:
		m.toLogin(api.Message(api.ErrUnauthorized))
		return m, waitRedirect(m.app.Redirects())

	case statusMsg:
		m.status = msg.status
		return m, waitStatus(m.statusCh)

	case presenceMsg:
		return m, waitPresence(m.presenceCh)

	case clockMsg:
		m.renderThread()
		return m, clockTick()

	case inboundMsg:
		return m.handleInbound(msg)

	case authMsg:
		return m.handleAuth(msg)

	case conversationsMsg:
		if msg.err != nil {
			m.banner = m.errorText(msg.err)
			return m, nil
		}
		m.convs = msg.items
		if m.selected >= len(m.convs) {
			m.selected = max(0, len(m.convs)-1)
		}
		return m, nil

	case threadMsg:
		if msg.peerID != m.peerID {
			return m, nil
		}
		m.threadErr = ""
		if msg.err != nil && !errors.Is(msg.err, app.ErrNoThread) {
			m.threadErr = m.errorText(msg.err)
		}
		m.renderThread()
		return m, nil

	case sentMsg:
		if msg.err != nil {
			m.threadErr = m.errorText(msg.err)
		}
		return m, nil

	case peerMsg:
		return m.handlePeer(msg)

	case searchTickMsg:
		return m, m.runSearch(msg.seq)

	case searchResultMsg:
		if msg.err != nil {
			m.banner = m.errorText(msg.err)
		}
		m.searchSel = 0
		return m, nil

	case profileMsg:
		if msg.err != nil {
			m.settings.banner = m.errorText(msg.err)
			return m, nil
		}
		m.fillSettings(msg.user)
		return m, nil

	case settingsMsg:
		return m.handleSettings(msg)
	}

	return m.updateInputs(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view {
	case viewLogin:
		return m.updateLogin(msg)
	case viewSignup:
		return m.updateSignup(msg)
	case viewConversations:
		return m.updateConversations(msg)
	case viewChat:
		return m.updateChat(msg)
	case viewSearch:
		return m.updateSearch(msg)
	case viewSettings:
		return m.updateSettings(msg)
	case viewProfile:
		return m.updateProfile(msg)
	}
	return m, nil
}

// updateInputs forwards non-key messages such as cursor blinks to the
// focused input of the current screen.
func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case viewLogin:
		cmd = m.login.update(msg)
	case viewSignup:
		cmd = m.signup.update(msg)
	case viewChat:
		m.input, cmd = m.input.Update(msg)
	case viewSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	case viewSettings:
		cmd = m.settings.update(msg)
	}
	return m, cmd
}

func (m Model) handleInbound(msg inboundMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitInbound(m.inboundCh)}
	if msg.msg == nil {
		return m, tea.Batch(cmds...)
	}

	inThread := m.app.HandleInbound(*msg.msg)
	m.convs = m.app.ConversationItems()
	cmds = append(cmds, m.loadConversations())
	if inThread && m.view == viewChat {
		m.renderThread()
		cmds = append(cmds, m.refreshThread(m.peerID))
	}
	return m, tea.Batch(cmds...)
}

// toLogin drops all screen state and shows the login form.
func (m *Model) toLogin(banner string) {
	m.view = viewLogin
	m.convs = nil
	m.selected = 0
	m.peerID = ""
	m.peer = nil
	m.viewing = nil
	m.banner = ""
	m.threadErr = ""
	m.notice = ""
	m.input.Reset()
	m.searchInput.Reset()
	m.settings.reset()
	m.signup.reset()
	m.login.reset()
	m.login.banner = banner
}

// errorText turns an error into banner text. Auth failures produce none:
// the redirect already handles them.
func (m *Model) errorText(err error) string {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return ""
	case errors.Is(err, session.ErrNotLoggedIn):
		m.toLogin("")
		return ""
	}
	return api.Message(err)
}

func (m Model) View() string {
	var body string
	switch m.view {
	case viewLogin:
		body = m.loginView()
	case viewSignup:
		body = m.signupView()
	case viewConversations:
		body = m.conversationsView()
	case viewChat:
		body = m.chatView()
	case viewSearch:
		body = m.searchView()
	case viewSettings:
		body = m.settingsView()
	case viewProfile:
		body = m.profileView()
	}
	if m.view == viewLogin || m.view == viewSignup {
		return body
	}
	return m.header() + "\n" + body
}

func (m Model) header() string {
	id := m.app.Identity()
	left := titleStyle.Render(fmt.Sprintf("CLDZCHAT - %s", id.Username))
	if n := m.app.TotalUnread(); n > 0 {
		left += " " + badgeStyle.Render(fmt.Sprintf("%d new", n))
	}
	return left + "  " + statusText(m.status)
}

func statusText(s realtime.Status) string {
	switch s.State {
	case realtime.Connected:
		return onlineStyle.Render("● connected")
	case realtime.Connecting:
		return warnStyle.Render("◌ connecting...")
	case realtime.Reconnecting:
		return warnStyle.Render("◌ " + s.String())
	default:
		if s.Err != nil {
			return errorStyle.Render("○ " + s.String())
		}
		return mutedStyle.Render("○ disconnected")
	}
}

func rule(width int) string {
	if width < 4 {
		width = 40
	}
	return strings.Repeat("─", width-2)
}
