package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/realtime"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateFailed is terminal: reconnect attempts are exhausted and no
	// further automatic attempt will be made.
	StateFailed State = "failed"
)

type Config struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   time.Second,
	}
}

// Client is the connection manager of the realtime bus: it owns the socket
// lifecycle, queues sends made while disconnected, re-asserts room
// memberships after every reconnect, and feeds inbound envelopes to the
// router. One instance per authenticated session; construct fresh instances
// rather than sharing a package-level one.
type Client struct {
	log     *logger.Logger
	cfg     Config
	dialer  Dialer
	router  *realtime.Router
	rooms   *realtime.RoomSet
	toaster Toaster

	mu        sync.Mutex
	state     State
	userID    string
	token     string
	transport Transport
	queue     []realtime.Envelope
	stop      chan struct{}
	running   bool

	onStateChange func(State)

	// timeAfter is swapped out in tests to drive the backoff deterministically.
	timeAfter func(time.Duration) <-chan time.Time
}

func NewClient(log *logger.Logger, cfg Config, dialer Dialer, router *realtime.Router) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	return &Client{
		log:       log.With("component", "BusClient"),
		cfg:       cfg,
		dialer:    dialer,
		router:    router,
		rooms:     realtime.NewRoomSet(),
		timeAfter: time.After,
	}
}

func (c *Client) Router() *realtime.Router { return c.router }
func (c *Client) Rooms() *realtime.RoomSet { return c.rooms }

func (c *Client) SetToaster(t Toaster) { c.toaster = t }

// SetStateHandler registers a callback invoked on every state transition.
// Must be set before Connect.
func (c *Client) SetStateHandler(fn func(State)) { c.onStateChange = fn }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Connect starts the connection loop for the given user. A failed first
// attempt is not surfaced to the caller; it rolls into the retry loop like
// any other transport failure.
func (c *Client) Connect(userID, authToken string) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.userID = userID
	c.token = authToken
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	go c.run(stop)
}

// Disconnect sends a best-effort offline status, tears the socket down,
// clears the outbound queue and every router subscription. The teardown
// also runs when the connection loop already gave up (terminal failure):
// queued envelopes carry the old user id and must not leak into a later
// Connect as someone else.
func (c *Client) Disconnect() {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	if wasRunning {
		close(c.stop)
	}
	transport := c.transport
	userID := c.userID
	c.transport = nil
	c.queue = nil
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if transport != nil {
		c.writeEnvelope(transport, c.presenceEnvelope(userID, realtime.PresenceOffline))
		_ = transport.Close()
	}
	c.router.Clear()
	c.rooms.Clear()
	if changed {
		c.notifyState(StateDisconnected)
	}
}

// Send transmits immediately when connected, otherwise appends to the
// outbound queue for flush on the next successful connect. The client
// timestamp and current user id ride every envelope.
func (c *Client) Send(msgType realtime.MessageType, data any) error {
	env, err := realtime.NewEnvelope(msgType, data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msgType, err)
	}

	c.mu.Lock()
	env.UserID = c.userID
	if c.state != StateConnected || c.transport == nil {
		c.queue = append(c.queue, env)
		c.mu.Unlock()
		c.log.Debug("Queued send while disconnected", "messageType", msgType)
		return nil
	}
	transport := c.transport
	c.mu.Unlock()

	return c.writeEnvelope(transport, env)
}

// JoinRoom records membership and, when connected, asserts it to the server
// immediately. While disconnected the membership is only recorded; the
// connect sequence asserts it.
func (c *Client) JoinRoom(room string) {
	if !c.rooms.Add(room) {
		return
	}
	c.mu.Lock()
	connected := c.state == StateConnected && c.transport != nil
	transport := c.transport
	userID := c.userID
	c.mu.Unlock()
	if connected {
		env, _ := realtime.NewEnvelope(realtime.MessageJoinRoom, nil)
		env.Room = room
		env.UserID = userID
		_ = c.writeEnvelope(transport, env)
	}
}

func (c *Client) LeaveRoom(room string) {
	if !c.rooms.Remove(room) {
		return
	}
	c.mu.Lock()
	connected := c.state == StateConnected && c.transport != nil
	transport := c.transport
	userID := c.userID
	c.mu.Unlock()
	if connected {
		env, _ := realtime.NewEnvelope(realtime.MessageLeaveRoom, nil)
		env.Room = room
		env.UserID = userID
		_ = c.writeEnvelope(transport, env)
	}
}

// SetVisible reports page visibility: hidden maps to away, visible to
// online. Liveness itself is the transport's ping/pong, not this signal.
func (c *Client) SetVisible(visible bool) {
	status := realtime.PresenceOnline
	if !visible {
		status = realtime.PresenceAway
	}
	_ = c.Send(realtime.MessageUserStatus, realtime.PresencePayload{UserID: c.UserID(), Status: status})
}

func (c *Client) run(stop chan struct{}) {
	attempt := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		c.setState(StateConnecting)
		transport, err := c.dial()
		if err != nil {
			attempt++
			c.log.Warn("Connect attempt failed", "attempt", attempt, "error", err)
			if attempt >= c.cfg.MaxReconnectAttempts {
				c.enterFailed()
				return
			}
			delay := c.cfg.ReconnectBaseDelay << (attempt - 1)
			select {
			case <-stop:
				return
			case <-c.timeAfter(delay):
			}
			continue
		}

		attempt = 0
		queued := c.attachTransport(transport)
		c.notifyState(StateConnected)

		// Connect sequence: queued sends in FIFO order, then one
		// join_room per held membership, then the online status.
		userID := c.UserID()
		for _, env := range queued {
			if env.UserID == "" {
				env.UserID = userID
			}
			_ = c.writeEnvelope(transport, env)
		}
		for _, room := range c.rooms.List() {
			env, _ := realtime.NewEnvelope(realtime.MessageJoinRoom, nil)
			env.Room = room
			env.UserID = userID
			_ = c.writeEnvelope(transport, env)
		}
		c.writeEnvelope(transport, c.presenceEnvelope(userID, realtime.PresenceOnline))

		c.readLoop(transport, stop)

		_ = transport.Close()
		c.detachTransport(transport)

		select {
		case <-stop:
			return
		default:
		}
		c.setState(StateDisconnected)
	}
}

func (c *Client) dial() (Transport, error) {
	c.mu.Lock()
	token := c.token
	userID := c.userID
	c.mu.Unlock()

	endpoint := c.cfg.URL
	if token != "" {
		sep := "?"
		if u, err := url.Parse(endpoint); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		endpoint = endpoint + sep + "token=" + url.QueryEscape(token)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if userID != "" {
		header.Set("X-User-ID", userID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.dialer.DialContext(ctx, endpoint, header)
}

// attachTransport installs the live transport, drains the queue, and flips
// to connected in one critical section so no Send lands between the drain
// and the state change.
func (c *Client) attachTransport(transport Transport) []realtime.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = transport
	c.state = StateConnected
	queued := c.queue
	c.queue = nil
	return queued
}

func (c *Client) detachTransport(transport Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == transport {
		c.transport = nil
	}
}

func (c *Client) readLoop(transport Transport, stop chan struct{}) {
	for {
		data, err := transport.ReadMessage()
		if err != nil {
			select {
			case <-stop:
			default:
				c.log.Warn("Read failed, scheduling reconnect", "error", err)
			}
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn("Dropping malformed inbound frame", "error", err)
			continue
		}
		c.router.Dispatch(env)
	}
}

func (c *Client) writeEnvelope(transport Transport, env realtime.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := transport.WriteMessage(raw); err != nil {
		c.log.Warn("Write failed", "messageType", env.Type, "error", err)
		return err
	}
	return nil
}

func (c *Client) presenceEnvelope(userID string, status realtime.PresenceStatus) realtime.Envelope {
	env, _ := realtime.NewEnvelope(realtime.MessageUserStatus, realtime.PresencePayload{UserID: userID, Status: status})
	env.UserID = userID
	return env
}

func (c *Client) enterFailed() {
	c.mu.Lock()
	c.state = StateFailed
	c.running = false
	c.mu.Unlock()
	c.log.Error("Reconnect attempts exhausted, giving up", "maxAttempts", c.cfg.MaxReconnectAttempts)
	if c.toaster != nil {
		c.toaster.Show(Toast{
			Severity:   SeverityError,
			Title:      "Connection lost",
			Message:    "Realtime updates are unavailable. Refresh the page to reconnect.",
			Persistent: true,
		})
	}
	c.notifyState(StateFailed)
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed {
		c.notifyState(state)
	}
}

func (c *Client) notifyState(state State) {
	if c.onStateChange != nil {
		c.onStateChange(state)
	}
}
