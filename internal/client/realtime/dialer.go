package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudzz-dev/cldzchat/internal/wsconn"
	"github.com/gorilla/websocket"
)

// Dialer opens the byte stream STOMP runs over.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, header http.Header) (io.ReadWriteCloser, error)
}

// WebSocketDialer dials the endpoint with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebSocketDialer) Dial(ctx context.Context, endpoint string, header http.Header) (io.ReadWriteCloser, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return wsconn.New(ws), nil
}

// Endpoint turns the HTTP base URL of the backend into the websocket URL
// of the STOMP endpoint.
func Endpoint(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path += path
	return u.String(), nil
}
