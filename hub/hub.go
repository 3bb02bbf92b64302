package hub

import (
	"fmt"
	"sync"
)

// Broadcaster fans out an event to whoever currently listens on a named group.
// Publish is fire-and-forget: with no subscribers the event is dropped, there
// is no durability and no replay.
type Broadcaster interface {
	Publish(group string, data []byte)
}

// UserGroup is the per-user notification group, used for unread-count pushes.
func UserGroup(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// ConversationGroup is the per-conversation group, used for live message delivery.
func ConversationGroup(conversationID int64) string {
	return fmt.Sprintf("chat_%d", conversationID)
}

const subscriberBuffer = 16

// Subscriber is one connection's membership in a single group. Every
// connection gets its own Subscriber, so several devices of the same user can
// join and leave the same group independently.
type Subscriber struct {
	group string
	ch    chan []byte
}

// C yields events published to the subscriber's group, in publish order.
// Safe to call on a nil Subscriber; it then returns a nil (never-ready) channel.
func (s *Subscriber) C() <-chan []byte {
	if s == nil {
		return nil
	}
	return s.ch
}

// Hub is an in-process broadcast registry keyed by group name. It is the
// single-instance implementation of Broadcaster; see RedisBridge for the
// multi-instance variant.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscriber]struct{}
}

func New() *Hub {
	return &Hub{groups: make(map[string]map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe(group string) *Subscriber {
	s := &Subscriber{group: group, ch: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	members := h.groups[group]
	if members == nil {
		members = make(map[*Subscriber]struct{})
		h.groups[group] = members
	}
	members[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes the subscriber from its group. It is idempotent and
// tolerates a nil subscriber, so teardown paths may run it unconditionally
// even when connection setup never completed.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	if members, ok := h.groups[s.group]; ok {
		if _, ok := members[s]; ok {
			delete(members, s)
			close(s.ch)
		}
		if len(members) == 0 {
			delete(h.groups, s.group)
		}
	}
	h.mu.Unlock()
}

// Publish delivers data to every current member of the group. A subscriber
// whose buffer is full misses the event; the next recompute or poll reconciles.
func (h *Hub) Publish(group string, data []byte) {
	h.mu.RLock()
	for s := range h.groups[group] {
		select {
		case s.ch <- data:
		default:
		}
	}
	h.mu.RUnlock()
}
