package wsconn

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := New(ws)
		defer conn.Close()
		io.Copy(conn, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return New(ws)
}

func TestReadSpansMessages(t *testing.T) {
	conn := dial(t, echoServer(t))
	defer conn.Close()

	for _, part := range []string{"hello ", "over ", "websocket\n"} {
		if _, err := conn.Write([]byte(part)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "hello over websocket\n" {
		t.Errorf("got %q", line)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := dial(t, echoServer(t))
	first := conn.Close()
	if second := conn.Close(); second != first {
		t.Errorf("second Close() = %v, want %v", second, first)
	}
}
