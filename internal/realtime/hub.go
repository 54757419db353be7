// Package realtime provides the change-notification plugin: a subscriber
// hub fed by after-hooks ahead of a websocket transport.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one operation outcome fanned out to subscribers.
type Event struct {
	Resource  string      `json:"resource"`
	Operation string      `json:"operation"`
	RecordID  string      `json:"recordId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscription filters events by resource and operation. An empty Resource
// matches every resource; an empty Operations list matches every operation.
type Subscription struct {
	Resource   string   `json:"resource"`
	Operations []string `json:"operations"`
}

// Matches reports whether an event passes the filter.
func (s Subscription) Matches(resource, operation string) bool {
	if s.Resource != "" && s.Resource != resource {
		return false
	}
	if len(s.Operations) == 0 {
		return true
	}
	for _, op := range s.Operations {
		if op == operation {
			return true
		}
	}
	return false
}

const sendBuffer = 64

// Subscriber is one registered event consumer.
type Subscriber struct {
	id   string
	send chan []byte

	mu            sync.Mutex
	closed        bool
	subscriptions []Subscription
	lastHeartbeat time.Time
}

// ID returns the subscriber id.
func (s *Subscriber) ID() string { return s.id }

// Events is the subscriber's delivery channel. The hub closes it on
// eviction.
func (s *Subscriber) Events() <-chan []byte { return s.send }

// Subscribe replaces the subscriber's filters.
func (s *Subscriber) Subscribe(subs []Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = subs
}

// Heartbeat marks the subscriber alive.
func (s *Subscriber) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

func (s *Subscriber) matches(resource, operation string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscriptions) == 0 {
		return false
	}
	for _, sub := range s.subscriptions {
		if sub.Matches(resource, operation) {
			return true
		}
	}
	return false
}

func (s *Subscriber) heartbeatAge(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastHeartbeat)
}

// trySend delivers without blocking. The lock orders sends against close:
// once closed no send can reach the channel. Returns whether the event was
// delivered and whether the buffer was full.
func (s *Subscriber) trySend(data []byte) (delivered, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	select {
	case s.send <- data:
		return true, false
	default:
		return false, true
	}
}

// close closes the delivery channel exactly once.
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// Hub tracks subscribers and broadcasts events. Sends never block: a
// subscriber with a full buffer is evicted rather than stalling delivery to
// the others. Subscribers that miss heartbeats beyond the timeout are
// evicted by a sweep loop.
type Hub struct {
	heartbeatTimeout time.Duration
	sweepInterval    time.Duration
	logger           *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// DefaultHeartbeatTimeout applies when the hub is configured without one.
const DefaultHeartbeatTimeout = 90 * time.Second

// NewHub creates a hub.
func NewHub(heartbeatTimeout time.Duration, logger *zap.Logger) *Hub {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		heartbeatTimeout: heartbeatTimeout,
		sweepInterval:    heartbeatTimeout / 3,
		logger:           logger,
		subscribers:      make(map[string]*Subscriber),
	}
}

// Start launches the heartbeat sweep loop. Idempotent.
func (h *Hub) Start() {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.running {
		return
	}
	h.running = true
	h.stopChan = make(chan struct{})
	h.wg.Add(1)
	go h.sweep(h.stopChan)
}

// Stop halts the sweep loop and evicts every subscriber. Idempotent.
func (h *Hub) Stop() {
	h.runMu.Lock()
	if !h.running {
		h.runMu.Unlock()
		return
	}
	h.running = false
	close(h.stopChan)
	h.runMu.Unlock()
	h.wg.Wait()

	h.mu.Lock()
	for id, sub := range h.subscribers {
		sub.close()
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

// Register adds a subscriber with the given filters and returns it.
func (h *Hub) Register(id string, subs []Subscription) *Subscriber {
	sub := &Subscriber{
		id:            id,
		send:          make(chan []byte, sendBuffer),
		subscriptions: subs,
		lastHeartbeat: time.Now(),
	}

	h.mu.Lock()
	if old, ok := h.subscribers[id]; ok {
		old.close()
	}
	h.subscribers[id] = sub
	h.mu.Unlock()
	return sub
}

// Unregister removes a subscriber and closes its channel.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		sub.close()
		delete(h.subscribers, id)
	}
}

// Subscriber looks up a registered subscriber.
func (h *Hub) Subscriber(id string) (*Subscriber, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.subscribers[id]
	return sub, ok
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast delivers the event to every matching subscriber. A full send
// buffer evicts that subscriber; the rest still receive the event.
func (h *Hub) Broadcast(event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if sub.matches(event.Resource, event.Operation) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		ok, full := sub.trySend(data)
		if ok {
			delivered++
			continue
		}
		if full {
			h.logger.Warn("subscriber send buffer full, evicting", zap.String("subscriber", sub.id))
			h.Unregister(sub.id)
		}
	}
	return delivered
}

// sweep evicts subscribers whose last heartbeat is older than the timeout.
func (h *Hub) sweep(stop chan struct{}) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			var stale []string
			h.mu.RLock()
			for id, sub := range h.subscribers {
				if sub.heartbeatAge(now) > h.heartbeatTimeout {
					stale = append(stale, id)
				}
			}
			h.mu.RUnlock()

			for _, id := range stale {
				h.logger.Info("evicting stale subscriber", zap.String("subscriber", id))
				h.Unregister(id)
			}
		}
	}
}
