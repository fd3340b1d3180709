// Package realtime keeps the STOMP connection that carries inbound chat
// messages and presence broadcasts, and publishes outbound messages.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudzz-dev/cldzchat/internal/client/events"
	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/go-stomp/stomp/v3"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("realtime")

// ErrNotConnected is returned by Send while there is no live connection.
var ErrNotConnected = errors.New("realtime: not connected")

var errConnectionLost = errors.New("connection lost")

type TokenSource interface {
	Token() string
}

// Sink receives decoded inbound frames.
type Sink interface {
	PublishMessage(models.Message)
	UpsertPresence(models.Presence)
}

type Channel struct {
	endpoint         string
	tokens           TokenSource
	sink             Sink
	dialer           Dialer
	newBackOff       func() backoff.BackOff
	handshakeTimeout time.Duration

	status *events.Cell[Status]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	conn   *stomp.Conn
}

type Option func(*Channel)

func WithDialer(d Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithBackOff sets the reconnect policy. fn is called once per Start.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Channel) { c.newBackOff = fn }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Channel) { c.handshakeTimeout = d }
}

func defaultBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxInterval(30*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
}

func New(endpoint string, tokens TokenSource, sink Sink, opts ...Option) *Channel {
	c := &Channel{
		endpoint:         endpoint,
		tokens:           tokens,
		sink:             sink,
		dialer:           WebSocketDialer{},
		newBackOff:       defaultBackOff,
		handshakeTimeout: 10 * time.Second,
		status:           events.NewCell(Status{State: Disconnected}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Status() Status {
	return c.status.Get()
}

// Subscribe delivers every status change.
func (c *Channel) Subscribe() (<-chan Status, func()) {
	return c.status.Subscribe()
}

func (c *Channel) setStatus(s Status) {
	c.status.Set(s)
}

// Start activates the channel. Calling it while already active does nothing,
// so there is never more than one connection.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		select {
		case <-c.done:
		default:
			return
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Stop deactivates the channel and waits for the connection to close. It is
// safe to call when already stopped.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Send publishes a chat message. Delivery is not acknowledged.
func (c *Channel) Send(payload models.ChatPayload) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := conn.Send(models.DestChat, "application/json", body); err != nil {
		if errors.Is(err, stomp.ErrAlreadyClosed) {
			return ErrNotConnected
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := c.newBackOff()
	attempt := 0
	var lastErr error
	for {
		c.setStatus(Status{State: Connecting, Attempt: attempt, Err: lastErr})

		err := c.session(ctx, func() {
			b.Reset()
			attempt = 0
		})
		if ctx.Err() != nil {
			c.setStatus(Status{State: Disconnected})
			return
		}

		attempt++
		lastErr = err
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			log.Errorf("giving up after %d attempts: %v", attempt, err)
			c.setStatus(Status{State: Disconnected, Err: err, Attempt: attempt})
			return
		}
		log.Warningf("connection failed (attempt %d), retrying in %s: %v", attempt, wait, err)
		c.setStatus(Status{State: Reconnecting, Err: err, Attempt: attempt, RetryIn: wait})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setStatus(Status{State: Disconnected})
			return
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to drop. It returns nil only when ctx
// is canceled.
func (c *Channel) session(ctx context.Context, onConnected func()) error {
	hsCtx, hsCancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer hsCancel()

	rwc, err := c.dialer.Dial(hsCtx, c.endpoint, http.Header{})
	if err != nil {
		return err
	}

	conn, err := c.handshake(hsCtx, rwc)
	if err != nil {
		rwc.Close()
		return err
	}

	messages, err := conn.Subscribe(models.DestUserMessages, stomp.AckAuto)
	if err != nil {
		c.abort(conn, rwc)
		return fmt.Errorf("subscribe %s: %w", models.DestUserMessages, err)
	}
	statuses, err := conn.Subscribe(models.DestStatus, stomp.AckAuto)
	if err != nil {
		c.abort(conn, rwc)
		return fmt.Errorf("subscribe %s: %w", models.DestStatus, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	onConnected()
	c.setStatus(Status{State: Connected})
	log.Infof("connected to %s", c.endpoint)

	for {
		select {
		case <-ctx.Done():
			c.disconnect(conn, rwc)
			return nil
		case msg, ok := <-messages.C:
			if err := frameErr(msg, ok); err != nil {
				c.abort(conn, rwc)
				return err
			}
			c.handleMessage(msg.Body)
		case msg, ok := <-statuses.C:
			if err := frameErr(msg, ok); err != nil {
				c.abort(conn, rwc)
				return err
			}
			c.handlePresence(msg.Body)
		}
	}
}

func (c *Channel) handshake(ctx context.Context, rwc io.ReadWriteCloser) (*stomp.Conn, error) {
	stop := context.AfterFunc(ctx, func() { rwc.Close() })

	var token string
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	conn, err := stomp.Connect(rwc,
		stomp.ConnOpt.Header("Authorization", "Bearer "+token),
		stomp.ConnOpt.HeartBeat(0, 0),
	)

	if !stop() {
		if conn != nil {
			conn.MustDisconnect()
		}
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("stomp handshake: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("stomp handshake: %w", err)
	}
	return conn, nil
}

func frameErr(msg *stomp.Message, ok bool) error {
	if !ok || msg == nil {
		return errConnectionLost
	}
	if msg.Err != nil {
		return fmt.Errorf("%w: %v", errConnectionLost, msg.Err)
	}
	return nil
}

func (c *Channel) handleMessage(body []byte) {
	var payload models.ChatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warningf("dropping malformed message frame: %v", err)
		return
	}
	c.sink.PublishMessage(models.Message{
		SenderID:   payload.SenderID,
		ReceiverID: payload.ReceiverID,
		Content:    payload.Content,
	})
}

func (c *Channel) handlePresence(body []byte) {
	var status models.Presence
	if err := json.Unmarshal(body, &status); err != nil {
		log.Warningf("dropping malformed presence frame: %v", err)
		return
	}
	c.sink.UpsertPresence(status)
}

// disconnect sends DISCONNECT and waits briefly for the receipt before
// closing the transport.
func (c *Channel) disconnect(conn *stomp.Conn, rwc io.ReadWriteCloser) {
	done := make(chan error, 1)
	go func() { done <- conn.Disconnect() }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, stomp.ErrAlreadyClosed) {
			log.Debugf("disconnect: %v", err)
		}
	case <-time.After(2 * time.Second):
		log.Debug("disconnect receipt timed out")
	}
	rwc.Close()
}

func (c *Channel) abort(conn *stomp.Conn, rwc io.ReadWriteCloser) {
	rwc.Close()
	conn.MustDisconnect()
}
