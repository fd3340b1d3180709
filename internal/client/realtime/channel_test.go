package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudzz-dev/cldzchat/internal/client/events"
	"github.com/cloudzz-dev/cldzchat/internal/models"
	"github.com/go-stomp/stomp/v3/frame"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// fakeBroker speaks just enough STOMP over one side of a net.Pipe.
type fakeBroker struct {
	t    *testing.T
	conn net.Conn

	writeMu sync.Mutex
	writer  *frame.Writer

	mu      sync.Mutex
	subs    map[string]string
	authHdr string

	subscribed chan struct{}
	sent       chan *frame.Frame
	closed     chan struct{}
}

func newFakeBroker(t *testing.T, conn net.Conn) *fakeBroker {
	b := &fakeBroker{
		t:          t,
		conn:       conn,
		writer:     frame.NewWriter(conn),
		subs:       make(map[string]string),
		subscribed: make(chan struct{}),
		sent:       make(chan *frame.Frame, 10),
		closed:     make(chan struct{}),
	}
	go b.serve()
	return b
}

func (b *fakeBroker) write(f *frame.Frame) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.writer.Write(f)
}

func (b *fakeBroker) serve() {
	defer close(b.closed)
	reader := frame.NewReader(b.conn)
	for {
		f, err := reader.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECT, frame.STOMP:
			b.mu.Lock()
			b.authHdr = f.Header.Get("Authorization")
			b.mu.Unlock()
			b.write(frame.New(frame.CONNECTED, frame.Version, "1.2", frame.HeartBeat, "0,0"))
		case frame.SUBSCRIBE:
			b.mu.Lock()
			b.subs[f.Header.Get(frame.Destination)] = f.Header.Get(frame.Id)
			n := len(b.subs)
			b.mu.Unlock()
			if n == 2 {
				close(b.subscribed)
			}
		case frame.SEND:
			b.sent <- f
		case frame.DISCONNECT:
			if receipt := f.Header.Get(frame.Receipt); receipt != "" {
				b.write(frame.New(frame.RECEIPT, frame.ReceiptId, receipt))
			}
			b.conn.Close()
			return
		}
	}
}

func (b *fakeBroker) push(dest string, body any) {
	b.t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		b.t.Fatal(err)
	}
	b.mu.Lock()
	id := b.subs[dest]
	b.mu.Unlock()
	f := frame.New(frame.MESSAGE,
		frame.Destination, dest,
		frame.Subscription, id,
		frame.MessageId, "m-1",
		frame.ContentType, "application/json")
	f.Body = data
	if err := b.write(f); err != nil {
		b.t.Fatalf("push: %v", err)
	}
}

func (b *fakeBroker) waitSubscribed() {
	b.t.Helper()
	select {
	case <-b.subscribed:
	case <-time.After(2 * time.Second):
		b.t.Fatal("client never subscribed")
	}
}

// pipeDialer hands the client side of a fresh pipe to each Dial and starts
// a broker on the other side.
type pipeDialer struct {
	t       *testing.T
	dials   atomic.Int32
	fail    error
	brokers chan *fakeBroker
}

func newPipeDialer(t *testing.T) *pipeDialer {
	return &pipeDialer{t: t, brokers: make(chan *fakeBroker, 10)}
}

func (d *pipeDialer) Dial(ctx context.Context, endpoint string, header http.Header) (io.ReadWriteCloser, error) {
	d.dials.Add(1)
	if d.fail != nil {
		return nil, d.fail
	}
	client, server := net.Pipe()
	d.brokers <- newFakeBroker(d.t, server)
	return client, nil
}

func (d *pipeDialer) nextBroker() *fakeBroker {
	d.t.Helper()
	select {
	case b := <-d.brokers:
		return b
	case <-time.After(2 * time.Second):
		d.t.Fatal("no dial happened")
		return nil
	}
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestChannel(t *testing.T, d *pipeDialer, shared *events.Shared) *Channel {
	ch := New("ws://chat.test/ws", staticToken("tok-1"), shared,
		WithDialer(d),
		WithBackOff(fastBackOff),
		WithHandshakeTimeout(time.Second),
	)
	t.Cleanup(ch.Stop)
	return ch
}

func TestConnectSubscribesAndAuthenticates(t *testing.T) {
	d := newPipeDialer(t)
	ch := newTestChannel(t, d, events.NewShared())

	ch.Start(context.Background())
	b := d.nextBroker()
	b.waitSubscribed()
	waitFor(t, func() bool { return ch.Status().State == Connected })

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.authHdr != "Bearer tok-1" {
		t.Errorf("Authorization = %q", b.authHdr)
	}
	for _, dest := range []string{models.DestUserMessages, models.DestStatus} {
		if _, ok := b.subs[dest]; !ok {
			t.Errorf("missing subscription to %s", dest)
		}
	}
}

func TestInboundFramesReachSharedState(t *testing.T) {
	d := newPipeDialer(t)
	shared := events.NewShared()
	ch := newTestChannel(t, d, shared)

	msgs, cancel := shared.SubscribeMessages()
	defer cancel()
	presence, cancelPresence := shared.Presence().Subscribe()
	defer cancelPresence()

	ch.Start(context.Background())
	b := d.nextBroker()
	b.waitSubscribed()

	b.push(models.DestUserMessages, models.ChatPayload{SenderID: "u1", ReceiverID: "me", Content: "hi"})
	select {
	case m := <-msgs:
		if m == nil || m.SenderID != "u1" || m.Content != "hi" || m.ID != "" {
			t.Errorf("latest message = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never published")
	}

	b.push(models.DestStatus, map[string]any{"userId": "u2", "isOnline": true, "lastSeen": "2024-05-01T10:00:00"})
	select {
	case <-presence:
	case <-time.After(2 * time.Second):
		t.Fatal("presence never updated")
	}
	if p, ok := shared.Presence().Lookup("u2"); !ok || !p.IsOnline {
		t.Errorf("presence for u2 = %+v, %v", p, ok)
	}
}

func TestSendPublishesToChatDestination(t *testing.T) {
	d := newPipeDialer(t)
	ch := newTestChannel(t, d, events.NewShared())

	if err := ch.Send(models.ChatPayload{SenderID: "u1", ReceiverID: "u2", Content: "hi"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send before start = %v, want ErrNotConnected", err)
	}

	ch.Start(context.Background())
	b := d.nextBroker()
	b.waitSubscribed()
	waitFor(t, func() bool { return ch.Status().State == Connected })

	if err := ch.Send(models.ChatPayload{SenderID: "u1", ReceiverID: "u2", Content: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case f := <-b.sent:
		if dest := f.Header.Get(frame.Destination); dest != models.DestChat {
			t.Errorf("destination = %q", dest)
		}
		var got models.ChatPayload
		if err := json.Unmarshal(f.Body, &got); err != nil {
			t.Fatal(err)
		}
		if got != (models.ChatPayload{SenderID: "u1", ReceiverID: "u2", Content: "hi"}) {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broker never received SEND")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	d := newPipeDialer(t)
	ch := newTestChannel(t, d, events.NewShared())

	ch.Start(context.Background())
	ch.Start(context.Background())
	d.nextBroker().waitSubscribed()
	ch.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	if n := d.dials.Load(); n != 1 {
		t.Errorf("dialed %d times, want 1", n)
	}
}

func TestStopDisconnects(t *testing.T) {
	d := newPipeDialer(t)
	ch := newTestChannel(t, d, events.NewShared())

	ch.Start(context.Background())
	b := d.nextBroker()
	b.waitSubscribed()
	waitFor(t, func() bool { return ch.Status().State == Connected })

	ch.Stop()
	ch.Stop()

	if s := ch.Status(); s.State != Disconnected {
		t.Errorf("state after Stop = %v", s.State)
	}
	select {
	case <-b.closed:
	case <-time.After(2 * time.Second):
		t.Error("broker connection still open after Stop")
	}
	if err := ch.Send(models.ChatPayload{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Stop = %v", err)
	}
}

func TestReconnectsAfterDrop(t *testing.T) {
	d := newPipeDialer(t)
	ch := newTestChannel(t, d, events.NewShared())

	ch.Start(context.Background())
	first := d.nextBroker()
	first.waitSubscribed()
	first.conn.Close()

	second := d.nextBroker()
	second.waitSubscribed()
	waitFor(t, func() bool { return ch.Status().State == Connected })
	if n := d.dials.Load(); n != 2 {
		t.Errorf("dials = %d, want 2", n)
	}
}

func TestDialFailureIsObservable(t *testing.T) {
	d := newPipeDialer(t)
	d.fail = errors.New("connection refused")
	ch := New("ws://chat.test/ws", staticToken("tok"), events.NewShared(),
		WithDialer(d),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }),
	)
	defer ch.Stop()

	ch.Start(context.Background())
	waitFor(t, func() bool { return ch.Status().State == Reconnecting })

	s := ch.Status()
	if s.Err == nil || s.Attempt != 1 || s.RetryIn != time.Hour {
		t.Errorf("status = %+v", s)
	}
}

func TestGivesUpWhenBackOffStops(t *testing.T) {
	d := newPipeDialer(t)
	d.fail = errors.New("connection refused")
	ch := New("ws://chat.test/ws", staticToken("tok"), events.NewShared(),
		WithDialer(d),
		WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
		}),
	)
	defer ch.Stop()

	ch.Start(context.Background())
	waitFor(t, func() bool {
		s := ch.Status()
		return s.State == Disconnected && s.Err != nil
	})
	if n := d.dials.Load(); n != 3 {
		t.Errorf("dials = %d, want 3", n)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"http://localhost:8080", "/ws", "ws://localhost:8080/ws"},
		{"https://chat.example.com/", "ws", "wss://chat.example.com/ws"},
		{"http://host/prefix", "/ws", "ws://host/prefix/ws"},
	}
	for _, tt := range tests {
		got, err := Endpoint(tt.base, tt.path)
		if err != nil || got != tt.want {
			t.Errorf("Endpoint(%q, %q) = %q, %v; want %q", tt.base, tt.path, got, err, tt.want)
		}
	}
	if _, err := Endpoint("ftp://host", "/ws"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
