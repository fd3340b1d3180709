// Package app is the authenticated session container. It owns the single
// realtime channel and connects the session store, the HTTP gateway and the
// shared event state to the screens.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/chat"
	"github.com/cloudzz-dev/cldzchat/internal/client/events"
	"github.com/cloudzz-dev/cldzchat/internal/client/realtime"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("app")

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoThread     = errors.New("no conversation is open")
)

type Store interface {
	Save(identity models.Identity, token string) error
	Clear() error
	UpdateIdentity(fn func(*models.Identity)) error
	State() (session.AuthState, *session.Session)
}

type Gateway interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SearchUsers(ctx context.Context, query, currentUserID string) ([]models.User, error)
	Conversations(ctx context.Context, userID string) ([]models.Conversation, error)
	Messages(ctx context.Context, userID, peerID string) ([]models.Message, error)
	GetProfile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, change models.PasswordChange, confirm string) error
	UploadAvatarFile(ctx context.Context, userID, path string) (*models.User, error)
	DeleteAvatar(ctx context.Context, userID string) error
}

type Channel interface {
	Start(ctx context.Context)
	Stop()
	Send(payload models.ChatPayload) error
	Status() realtime.Status
	Subscribe() (<-chan realtime.Status, func())
}

type App struct {
	ctx     context.Context
	store   Store
	gw      Gateway
	channel Channel
	shared  *events.Shared

	redirects chan struct{}

	mu     sync.Mutex
	thread *chat.Thread
	convs  *chat.Conversations
	search chat.Search
}

func New(ctx context.Context, store Store, gw Gateway, channel Channel, shared *events.Shared) *App {
	return &App{
		ctx:       ctx,
		store:     store,
		gw:        gw,
		channel:   channel,
		shared:    shared,
		redirects: make(chan struct{}, 16),
		convs:     chat.NewConversations(),
	}
}

// Guard reports whether a session is available.
func (a *App) Guard() (session.AuthState, *session.Session) {
	return a.store.State()
}

func (a *App) self() (models.Identity, error) {
	state, sess := a.store.State()
	if state != session.Authenticated {
		return models.Identity{}, session.ErrNotLoggedIn
	}
	return sess.Identity, nil
}

// Identity returns the logged in user, or the zero identity.
func (a *App) Identity() models.Identity {
	id, _ := a.self()
	return id
}

// Resume starts the realtime channel for a session restored from disk.
func (a *App) Resume() bool {
	if state, _ := a.Guard(); state != session.Authenticated {
		return false
	}
	a.channel.Start(a.ctx)
	return true
}

func (a *App) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	resp, err := a.gw.Login(ctx, models.LoginRequest{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, err
	}
	return a.begin(resp)
}

func (a *App) Register(ctx context.Context, req models.RegisterRequest) (*models.Identity, error) {
	resp, err := a.gw.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.begin(resp)
}

func (a *App) begin(resp *models.AuthResponse) (*models.Identity, error) {
	identity := resp.Identity()
	if err := a.store.Save(identity, resp.Token); err != nil {
		return nil, err
	}
	log.Infof("logged in as %s", identity.Username)
	a.channel.Start(a.ctx)
	return &identity, nil
}

// Logout stops the channel, blanks the stored session and drops all
// session-scoped state.
func (a *App) Logout() {
	a.channel.Stop()
	if err := a.store.Clear(); err != nil {
		log.Errorf("clear session: %v", err)
	}
	a.shared.Reset()

	a.mu.Lock()
	a.thread = nil
	a.convs.Reset()
	a.search = chat.Search{}
	a.mu.Unlock()
}

// HandleUnauthorized runs once for every 401/403 from the gateway.
func (a *App) HandleUnauthorized() {
	log.Notice("session rejected by server, logging out")
	a.Logout()
	select {
	case a.redirects <- struct{}{}:
	default:
	}
}

// Redirects delivers one value per forced return to the login screen.
func (a *App) Redirects() <-chan struct{} {
	return a.redirects
}

func (a *App) ConnectionStatus() realtime.Status {
	return a.channel.Status()
}

func (a *App) SubscribeStatus() (<-chan realtime.Status, func()) {
	return a.channel.Subscribe()
}

func (a *App) Shared() *events.Shared {
	return a.shared
}

// Conversations fetches the conversation list for the logged in user.
func (a *App) Conversations(ctx context.Context) ([]models.Conversation, error) {
	self, err := a.self()
	if err != nil {
		return nil, err
	}
	list, err := a.gw.Conversations(ctx, self.ID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.convs.Replace(list)
	return a.convs.Items(), nil
}

func (a *App) ConversationItems() []models.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.convs.Items()
}

func (a *App) TotalUnread() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.convs.TotalUnread()
}

func (a *App) Users(ctx context.Context) ([]models.User, error) {
	self, err := a.self()
	if err != nil {
		return nil, err
	}
	users, err := a.gw.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if u.ID != self.ID {
			out = append(out, u)
		}
	}
	return out, nil
}

// OpenThread makes peerID the open conversation and loads its history. A
// pending inbound message from that peer is consumed.
func (a *App) OpenThread(ctx context.Context, peerID string) ([]models.Message, error) {
	self, err := a.self()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.thread = chat.NewThread(self.ID, peerID)
	a.convs.SetActive(peerID)
	a.mu.Unlock()
	a.shared.ConsumeFrom(peerID)

	if err := a.RefreshThread(ctx); err != nil {
		return nil, err
	}
	return a.ThreadMessages(), nil
}

func (a *App) CloseThread() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thread = nil
	a.convs.SetActive("")
}

func (a *App) ThreadPeer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread == nil {
		return ""
	}
	return a.thread.PeerID
}

func (a *App) ThreadMessages() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread == nil {
		return nil
	}
	return a.thread.Messages()
}

// ThreadRows lays out the open thread for display.
func (a *App) ThreadRows(now time.Time) []chat.Row {
	return chat.Layout(a.ThreadMessages(), now)
}

func (a *App) Undelivered(m models.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thread != nil && a.thread.Undelivered(m)
}

// RefreshThread refetches the open thread's history and reconciles local
// sends against it.
func (a *App) RefreshThread(ctx context.Context) error {
	a.mu.Lock()
	thread := a.thread
	a.mu.Unlock()
	if thread == nil {
		return ErrNoThread
	}

	history, err := a.gw.Messages(ctx, thread.SelfID, thread.PeerID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread != thread {
		return nil
	}
	thread.Replace(history)
	return nil
}

// SendMessage appends the message to the open thread immediately and then
// publishes it. The entry stays visible even when publishing fails.
func (a *App) SendMessage(content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}

	a.mu.Lock()
	thread := a.thread
	if thread == nil {
		a.mu.Unlock()
		return models.Message{}, ErrNoThread
	}
	entry := thread.AppendOptimistic(content)
	a.convs.Promote(entry, thread.SelfID)
	a.mu.Unlock()

	err := a.channel.Send(models.ChatPayload{
		SenderID:   entry.SenderID,
		ReceiverID: entry.ReceiverID,
		Content:    entry.Content,
	})
	if err != nil {
		log.Warningf("publish message: %v", err)
	}
	return entry, err
}

// HandleInbound applies a message observed in the shared state. It returns
// true when the message belongs to the open thread, in which case it has
// been consumed and appended there.
func (a *App) HandleInbound(m models.Message) bool {
	self, err := a.self()
	if err != nil {
		return false
	}

	a.mu.Lock()
	thread := a.thread
	inThread := thread != nil && m.SenderID == thread.PeerID
	if inThread {
		thread.AppendInbound(m)
	}
	a.convs.Promote(m, self.ID)
	a.mu.Unlock()

	if inThread {
		a.shared.ConsumeFrom(m.SenderID)
	}
	return inThread
}

// SearchInput records search box text. See chat.Search.Input.
func (a *App) SearchInput(query string) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.search.Input(query)
}

// RunSearch issues the search for seq if it is still the latest input.
func (a *App) RunSearch(ctx context.Context, seq uint64) (bool, error) {
	self, err := a.self()
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	query, ok := a.search.Ready(seq)
	a.mu.Unlock()
	if !ok {
		return false, nil
	}

	users, err := a.gw.SearchUsers(ctx, query, self.ID)

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.search.Resolve(seq, users, err), err
}

func (a *App) SearchState() chat.Search {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.search
	s.Results = append([]models.User(nil), s.Results...)
	return s
}

func (a *App) ClearSearch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.search.Clear()
}
