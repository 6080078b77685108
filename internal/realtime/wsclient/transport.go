package wsclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the raw bidirectional pipe under the connection manager. The
// websocket implementation lives behind this so the reconnect machinery is
// testable against an in-memory fake.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Transport, error)
}

type WebsocketDialerSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
}

func DefaultWebsocketDialerSettings() WebsocketDialerSettings {
	return WebsocketDialerSettings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     25 * time.Second,
	}
}

type websocketDialer struct {
	settings WebsocketDialerSettings
}

func NewWebsocketDialer(settings WebsocketDialerSettings) Dialer {
	return &websocketDialer{settings: settings}
}

func (d *websocketDialer) DialContext(ctx context.Context, url string, header http.Header) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.settings.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return newWebsocketTransport(conn, d.settings), nil
}

// websocketTransport owns the liveness of one socket: it pings on an
// interval and treats a missed pong as a dead read deadline. Layers above
// never deal with ping/pong.
type websocketTransport struct {
	conn     *websocket.Conn
	settings WebsocketDialerSettings

	writeMu   sync.Mutex
	closeOnce sync.Once
	stopPing  chan struct{}
}

func newWebsocketTransport(conn *websocket.Conn, settings WebsocketDialerSettings) *websocketTransport {
	t := &websocketTransport{
		conn:     conn,
		settings: settings,
		stopPing: make(chan struct{}),
	}
	_ = conn.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(settings.ReadTimeout))
	})
	go t.pingLoop()
	return t
}

func (t *websocketTransport) pingLoop() {
	ticker := time.NewTicker(t.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopPing:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.settings.WriteTimeout))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *websocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
	return data, nil
}

func (t *websocketTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *websocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopPing)
		err = t.conn.Close()
	})
	return err
}
