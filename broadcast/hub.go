// Package broadcast fans task lifecycle events out to the clients viewing a
// project.
package broadcast

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Message is one encoded event addressed to a project group.
type Message struct {
	ProjectID string
	Event     string
	Frame     []byte
}

// Subscription is a connected client. It receives messages for every project
// it has joined until it is closed.
type Subscription struct {
	ch    chan Message
	rooms map[string]struct{}
}

// C returns the delivery channel. It is closed by Hub.Unsubscribe.
func (s *Subscription) C() <-chan Message { return s.ch }

// Hub keeps per-project groups of subscriptions in process memory. Delivery
// never blocks: a subscriber whose buffer is full misses the message.
type Hub struct {
	buffer int
	logger *log.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Subscription]struct{}
}

func NewHub(buffer int, logger *log.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{buffer: buffer, logger: logger, rooms: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe() *Subscription {
	return &Subscription{ch: make(chan Message, h.buffer), rooms: make(map[string]struct{})}
}

// Join adds sub to the group of projectID. Joining twice is a no-op.
func (h *Hub) Join(sub *Subscription, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.rooms == nil {
		return
	}
	room, ok := h.rooms[projectID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[projectID] = room
	}
	room[sub] = struct{}{}
	sub.rooms[projectID] = struct{}{}
}

func (h *Hub) Leave(sub *Subscription, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, projectID)
}

func (h *Hub) leaveLocked(sub *Subscription, projectID string) {
	if room, ok := h.rooms[projectID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, projectID)
		}
	}
	delete(sub.rooms, projectID)
}

// Unsubscribe leaves every group and closes the delivery channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.rooms == nil {
		return
	}
	for projectID := range sub.rooms {
		h.leaveLocked(sub, projectID)
	}
	sub.rooms = nil
	close(sub.ch)
}

// Members reports how many subscriptions are in the group of projectID.
func (h *Hub) Members(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// Deliver hands msg to every member of its group and returns how many
// subscribers were skipped because their buffer was full.
func (h *Hub) Deliver(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for sub := range h.rooms[msg.ProjectID] {
		select {
		case sub.ch <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.WithFields(log.Fields{"project": msg.ProjectID, "event": msg.Event, "dropped": dropped}).Warn("slow subscribers missed event")
	}
	return dropped
}

// Publish encodes ev and delivers it to local subscribers.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	h.Deliver(Message{ProjectID: ev.ProjectID, Event: ev.Name, Frame: frame})
	return nil
}

// Encode renders ev as the wire frame sent to clients.
func Encode(ev domain.Event) ([]byte, error) {
	return sonic.Marshal(ev)
}
