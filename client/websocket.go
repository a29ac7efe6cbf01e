// WebSocket support for real-time coordination notifications.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Notification is a push from the server: task.assigned, task.claimed or
// status.changed. Task and Change are populated per type.
type Notification struct {
	Type   string          `json:"type"`
	Task   json.RawMessage `json:"task,omitempty"`
	Change json.RawMessage `json:"change,omitempty"`
}

// AsTask decodes the notification payload as a Task.
func (n Notification) AsTask() (Task, error) {
	var t Task
	return t, json.Unmarshal(n.Task, &t)
}

// StatusChange is the payload of a status.changed notification.
type StatusChange struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	GraphID    string `json:"graph_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	ChangedBy  string `json:"changed_by"`
	ChangedAt  string `json:"changed_at"`
}

// AsStatusChange decodes the notification payload as a StatusChange.
func (n Notification) AsStatusChange() (StatusChange, error) {
	var sc StatusChange
	return sc, json.Unmarshal(n.Change, &sc)
}

// NotificationHandler is called for each notification received.
type NotificationHandler func(n Notification)

// WSClient subscribes an actor to its push channel.
type WSClient struct {
	baseURL   string
	apiKey    string
	orgID     string
	actorID   string
	conn      *websocket.Conn
	handlers  []NotificationHandler
	mu        sync.RWMutex
	done      chan struct{}
	reconnect bool
}

type WSOption func(*WSClient)

func WithWSAPIKey(key string) WSOption {
	return func(c *WSClient) {
		c.apiKey = key
	}
}

func WithWSOrg(orgID string) WSOption {
	return func(c *WSClient) {
		c.orgID = orgID
	}
}

// WithAutoReconnect enables automatic reconnection on disconnect.
func WithAutoReconnect(enabled bool) WSOption {
	return func(c *WSClient) {
		c.reconnect = enabled
	}
}

// NewWSClient creates a websocket subscription for the given actor.
func NewWSClient(baseURL, actorID string, opts ...WSOption) *WSClient {
	c := &WSClient{
		baseURL:   baseURL,
		actorID:   actorID,
		done:      make(chan struct{}),
		reconnect: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnNotification registers a handler.
func (c *WSClient) OnNotification(handler NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Connect establishes the websocket connection and starts the read loop.
func (c *WSClient) Connect(ctx context.Context) error {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	opts := &websocket.DialOptions{}
	if c.apiKey != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + c.apiKey},
		}
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	go c.readLoop(ctx)

	return nil
}

// Close closes the connection and stops reconnection.
func (c *WSClient) Close() error {
	close(c.done)
	if c.conn != nil {
		return c.conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

func (c *WSClient) buildWSURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/actors/" + c.actorID
	if c.orgID != "" {
		q := u.Query()
		q.Set("org", c.orgID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		var n Notification
		err := wsjson.Read(ctx, c.conn, &n)
		if err != nil {
			if c.reconnect {
				select {
				case <-c.done:
					return
				default:
					c.handleReconnect(ctx)
					continue
				}
			}
			return
		}

		c.dispatch(n)
	}
}

func (c *WSClient) dispatch(n Notification) {
	c.mu.RLock()
	handlers := make([]NotificationHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	for _, h := range handlers {
		h(n)
	}
}

func (c *WSClient) handleReconnect(ctx context.Context) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err := c.Connect(ctx); err == nil {
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
