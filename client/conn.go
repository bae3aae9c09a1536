package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	log "github.com/sirupsen/logrus"
)

const eventBuffer = 64

// ErrConnClosed is returned by Join and Leave after Close.
var ErrConnClosed = errors.New("realtime connection closed")

// Event is a frame received from the server.
type Event struct {
	Name      string          `json:"event"`
	ProjectID string          `json:"projectId"`
	Data      json.RawMessage `json:"data"`
}

type controlFrame struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
}

// Conn is one real-time session. It is created with Dial and owned by the
// caller; nothing about it is global.
type Conn struct {
	ws     *websocket.Conn
	logger *log.Logger
	events chan Event
	acks   chan Event
	cancel context.CancelFunc
	done   chan struct{}

	// ctl serializes join and leave so each waits for its own ack.
	ctl sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial opens the WebSocket at baseURL/ws as username.
func Dial(ctx context.Context, baseURL, username string, logger *log.Logger) (*Conn, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	u, err := realtimeURL(baseURL, username)
	if err != nil {
		return nil, err
	}
	ws, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	readCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:     ws,
		logger: logger,
		events: make(chan Event, eventBuffer),
		acks:   make(chan Event, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.read(readCtx)
	return c, nil
}

func realtimeURL(baseURL, username string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"username": {username}}.Encode()
	return u.String(), nil
}

// Events delivers task lifecycle events for every joined project. The
// channel is closed when the connection ends. Events arriving while the
// buffer is full are dropped.
func (c *Conn) Events() <-chan Event { return c.events }

// Join subscribes to projectID and waits for the server to accept it.
func (c *Conn) Join(ctx context.Context, projectID string) error {
	return c.control(ctx, "join", projectID)
}

// Leave unsubscribes from projectID.
func (c *Conn) Leave(ctx context.Context, projectID string) error {
	return c.control(ctx, "leave", projectID)
}

func (c *Conn) control(ctx context.Context, kind, projectID string) error {
	c.ctl.Lock()
	defer c.ctl.Unlock()

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	c.drainAcks()
	if err := wsjson.Write(ctx, c.ws, controlFrame{Type: kind, ProjectID: projectID}); err != nil {
		return fmt.Errorf("%s %s: %w", kind, projectID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrConnClosed
		case ack := <-c.acks:
			if !answers(ack, kind, projectID) {
				// Late reply to an earlier request that gave up waiting.
				c.logger.WithFields(log.Fields{"event": ack.Name, "project": ack.ProjectID}).Debug("discarding stale realtime ack")
				continue
			}
			if ack.Name == "error" {
				var body struct {
					Error string `json:"error"`
				}
				_ = sonic.Unmarshal(ack.Data, &body)
				return fmt.Errorf("%s %s: %s", kind, projectID, body.Error)
			}
			return nil
		}
	}
}

func (c *Conn) drainAcks() {
	for {
		select {
		case <-c.acks:
		default:
			return
		}
	}
}

// answers reports whether ack is the reply to a kind request for projectID.
func answers(ack Event, kind, projectID string) bool {
	if ack.ProjectID != projectID {
		return false
	}
	switch ack.Name {
	case "joined":
		return kind == "join"
	case "left":
		return kind == "leave"
	case "error":
		return true
	}
	return false
}

func (c *Conn) read(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.logger.WithError(err).Debug("realtime connection ended")
			}
			return
		}
		var ev Event
		if err := sonic.Unmarshal(data, &ev); err != nil {
			c.logger.WithError(err).Warn("discarding malformed realtime frame")
			continue
		}
		switch ev.Name {
		case "joined", "left", "error":
			select {
			case c.acks <- ev:
			default:
				c.logger.WithField("event", ev.Name).Debug("unexpected realtime ack")
			}
		default:
			select {
			case c.events <- ev:
			default:
				c.logger.WithFields(log.Fields{"event": ev.Name, "project": ev.ProjectID}).Warn("realtime event dropped")
			}
		}
	}
}

// Close ends the session. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		err := c.ws.Close(websocket.StatusNormalClosure, "")
		c.cancel()
		<-c.done
		if err != nil && websocket.CloseStatus(err) == -1 {
			c.closeErr = err
		}
	})
	return c.closeErr
}
