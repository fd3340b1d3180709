package ws

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/cloudzz-dev/cldzchat/internal/server/auth"
	"github.com/go-stomp/stomp/v3/frame"
)

const (
	sendBuffer       = 256
	handshakeTimeout = 10 * time.Second
	protocolVersion  = "1.2"
)

// Conn is the byte stream a session runs over, usually a wsconn.Conn.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

type Client struct {
	hub    *Hub
	conn   Conn
	send   chan *frame.Frame
	done   chan struct{}
	IP     string
	userID string

	mu   sync.Mutex
	subs map[string]string // destination -> subscription id

	msgSeq atomic.Uint64
}

// ServeConn runs one STOMP session until the peer disconnects or the
// connection fails. It blocks.
func (h *Hub) ServeConn(ctx context.Context, conn Conn, ip string) {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan *frame.Frame, sendBuffer),
		done: make(chan struct{}),
		IP:   ip,
		subs: make(map[string]string),
	}

	go c.WritePump()
	c.ReadPump(ctx)
}

// ReadPump owns the reading side. On return it asks the writer to flush and
// close the connection.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		if c.userID != "" {
			c.hub.unregister(c)
		}
		select {
		case c.send <- nil:
		case <-c.done:
		}
	}()

	reader := frame.NewReader(c.conn)

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	f, err := readFrame(reader)
	if err != nil {
		log.Debugf("handshake read from %s failed: %v", c.IP, err)
		return
	}
	if !c.handshake(f) {
		return
	}
	c.conn.SetReadDeadline(time.Time{})
	c.hub.register(c)

	for {
		f, err := readFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debugf("session %s read error: %v", c.userID, err)
			}
			return
		}
		if !c.ProcessFrame(ctx, f) {
			return
		}
	}
}

// readFrame skips heart-beats.
func readFrame(reader *frame.Reader) (*frame.Frame, error) {
	for {
		f, err := reader.Read()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}
}

// WritePump owns the writing side. A nil frame ends the session after
// everything queued before it is written.
func (c *Client) WritePump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	writer := frame.NewWriter(c.conn)
	for f := range c.send {
		if f == nil {
			return
		}
		if err := writer.Write(f); err != nil {
			log.Debugf("write to %s failed: %v", c.IP, err)
			return
		}
	}
}

func (c *Client) handshake(f *frame.Frame) bool {
	if f.Command != frame.CONNECT && f.Command != frame.STOMP {
		c.sendError("expected CONNECT", f)
		return false
	}

	if c.hub.limiter != nil && !c.hub.limiter.CanAuth(c.IP) {
		log.Warningf("rate limited auth from %s", c.IP)
		c.sendError("Too many login attempts. Please wait a minute.", f)
		return false
	}

	token, ok := auth.BearerToken(f.Header.Get("Authorization"))
	if !ok {
		c.sendError("Missing or invalid Authorization header", f)
		return false
	}
	claims, err := c.hub.tokens.ValidateToken(token)
	if err != nil {
		c.sendError("Invalid JWT token", f)
		return false
	}
	if _, err := c.hub.store.UserByID(context.Background(), claims.UserID); err != nil {
		c.sendError("User not found", f)
		return false
	}

	c.userID = claims.UserID
	c.queue(frame.New(frame.CONNECTED,
		frame.Version, protocolVersion,
		frame.HeartBeat, "0,0",
		"user-name", c.userID,
	))
	log.Infof("user %s connected from %s", c.userID, c.IP)
	return true
}

// ProcessFrame handles one client frame and reports whether the session
// should continue.
func (c *Client) ProcessFrame(ctx context.Context, f *frame.Frame) bool {
	switch f.Command {
	case frame.SUBSCRIBE:
		dest, id := f.Header.Get(frame.Destination), f.Header.Get(frame.Id)
		if dest == "" || id == "" {
			c.sendError("SUBSCRIBE requires destination and id", f)
			return false
		}
		c.mu.Lock()
		c.subs[dest] = id
		c.mu.Unlock()

	case frame.UNSUBSCRIBE:
		id := f.Header.Get(frame.Id)
		c.mu.Lock()
		for dest, subID := range c.subs {
			if subID == id {
				delete(c.subs, dest)
			}
		}
		c.mu.Unlock()

	case frame.SEND:
		if dest := f.Header.Get(frame.Destination); dest == models.DestChat {
			c.hub.routeChat(ctx, c, f)
		} else {
			log.Debugf("ignoring SEND to %q from %s", dest, c.userID)
		}

	case frame.DISCONNECT:
		c.receipt(f)
		log.Infof("user %s disconnected", c.userID)
		return false

	case frame.ACK, frame.NACK, frame.BEGIN, frame.COMMIT, frame.ABORT:
		// Subscriptions are auto-ack and there is no transaction support.

	default:
		c.sendError("unsupported command "+f.Command, f)
		return false
	}

	c.receipt(f)
	return true
}

func (c *Client) receipt(f *frame.Frame) {
	if id := f.Header.Get(frame.Receipt); id != "" {
		c.queue(frame.New(frame.RECEIPT, frame.ReceiptId, id))
	}
}

func (c *Client) sendError(message string, cause *frame.Frame) {
	f := frame.New(frame.ERROR, frame.Message, message)
	if cause != nil {
		if id := cause.Header.Get(frame.Receipt); id != "" {
			f.Header.Add(frame.ReceiptId, id)
		}
	}
	c.queue(f)
}

// queue enqueues a control frame for this session. Slow consumers lose
// frames rather than stall the broker.
func (c *Client) queue(f *frame.Frame) bool {
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		log.Warningf("send buffer full for %s, dropping %s", c.IP, f.Command)
		return false
	}
}

// deliver sends body as a MESSAGE if the session subscribes to dest.
func (c *Client) deliver(dest string, body []byte) bool {
	c.mu.Lock()
	subID, ok := c.subs[dest]
	c.mu.Unlock()
	if !ok {
		return false
	}

	f := frame.New(frame.MESSAGE,
		frame.Destination, dest,
		frame.Subscription, subID,
		frame.MessageId, c.userID+"-"+strconv.FormatUint(c.msgSeq.Add(1), 10),
		frame.ContentType, "application/json",
	)
	f.Body = body
	return c.queue(f)
}
