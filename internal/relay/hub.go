package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/RunRun-labs/RunRun-Backend-sub001/internal/obslog"
	"github.com/RunRun-labs/RunRun-Backend-sub001/pkg/battledto"
)

const defaultSubscriberBuffer = 32

// Publisher fans a frame out to all subscribers of a session topic.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, frame *battledto.Frame) error
}

// Subscription receives every frame published to one session topic.
type Subscription struct {
	C <-chan *battledto.Frame

	hub       *Hub
	sessionID string
	ch        chan *battledto.Frame
	once      sync.Once

	mu     sync.Mutex // serializes send against close
	closed bool
}

// Close detaches the subscription from its topic.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// send delivers without blocking. Sends and close share s.mu so a concurrent
// Close can never turn this into a send on a closed channel.
func (s *Subscription) send(frame *battledto.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- frame:
		return true
	default:
		return false
	}
}

// Hub is the in-process fan-out for session topics. Publishing never blocks:
// a subscriber whose buffer is full loses the frame instead of stalling
// session-state mutation.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscription]struct{}), buffer: defaultSubscriberBuffer}
}

// Subscribe attaches to a session topic.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{hub: h, sessionID: sessionID, ch: make(chan *battledto.Frame, h.buffer)}
	sub.C = sub.ch

	h.mu.Lock()
	subs := h.topics[sessionID]
	if subs == nil {
		subs = make(map[*Subscription]struct{})
		h.topics[sessionID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if subs := h.topics[sub.sessionID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.sessionID)
		}
	}
	h.mu.Unlock()

	sub.mu.Lock()
	sub.closed = true
	close(sub.ch)
	sub.mu.Unlock()
}

// Broadcast delivers a frame to every subscriber of the topic. Within one
// topic frames arrive in publish order; a full subscriber drops the frame.
func (h *Hub) Broadcast(sessionID string, frame *battledto.Frame) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.topics[sessionID]))
	for sub := range h.topics[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.send(frame) {
			obslog.L().Warn("relay_subscriber_drop",
				zap.String("session_id", sessionID),
				zap.String("type", string(frame.Type)),
			)
		}
	}
}

// SubscriberCount reports the current subscribers of a topic.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[sessionID])
}

// Publish implements the coordinator's publisher contract for single-instance
// deployments: frames go straight to local subscribers.
func (h *Hub) Publish(_ context.Context, sessionID string, frame *battledto.Frame) error {
	h.Broadcast(sessionID, frame)
	return nil
}
