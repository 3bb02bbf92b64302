package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscriber) []byte {
	t.Helper()
	select {
	case data := <-s.C():
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesAllGroupMembers(t *testing.T) {
	h := New()
	a := h.Subscribe("chat_1")
	b := h.Subscribe("chat_1")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish("chat_1", []byte("hello"))

	assert.Equal(t, []byte("hello"), recv(t, a))
	assert.Equal(t, []byte("hello"), recv(t, b))
}

func TestPublishIsScopedToGroup(t *testing.T) {
	h := New()
	a := h.Subscribe("chat_1")
	b := h.Subscribe("chat_2")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish("chat_1", []byte("x"))

	assert.Equal(t, []byte("x"), recv(t, a))
	select {
	case data := <-b.C():
		t.Fatalf("chat_2 subscriber received %q", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	h := New()
	s := h.Subscribe("user_1")
	defer h.Unsubscribe(s)

	h.Publish("user_1", []byte("first"))
	h.Publish("user_1", []byte("second"))
	h.Publish("user_1", []byte("third"))

	assert.Equal(t, []byte("first"), recv(t, s))
	assert.Equal(t, []byte("second"), recv(t, s))
	assert.Equal(t, []byte("third"), recv(t, s))
}

func TestNoBacklogAfterResubscribe(t *testing.T) {
	h := New()
	s := h.Subscribe("user_1")
	h.Publish("user_1", []byte("missed"))
	h.Unsubscribe(s)

	s2 := h.Subscribe("user_1")
	defer h.Unsubscribe(s2)
	select {
	case data, ok := <-s2.C():
		require.True(t, ok)
		t.Fatalf("fresh subscriber received old event %q", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSameUserMultipleDevices(t *testing.T) {
	h := New()
	phone := h.Subscribe(UserGroup(42))
	laptop := h.Subscribe(UserGroup(42))
	defer h.Unsubscribe(laptop)

	h.Publish(UserGroup(42), []byte("ping"))
	assert.Equal(t, []byte("ping"), recv(t, phone))
	assert.Equal(t, []byte("ping"), recv(t, laptop))

	// Dropping one device must not affect the other.
	h.Unsubscribe(phone)
	h.Publish(UserGroup(42), []byte("pong"))
	assert.Equal(t, []byte("pong"), recv(t, laptop))
}

func TestUnsubscribeIsIdempotentAndNilSafe(t *testing.T) {
	h := New()
	s := h.Subscribe("chat_9")
	h.Unsubscribe(s)
	h.Unsubscribe(s)
	h.Unsubscribe(nil)

	_, ok := <-s.C()
	assert.False(t, ok, "channel closed after unsubscribe")
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := New()
	s := h.Subscribe("user_5")
	defer h.Unsubscribe(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			h.Publish("user_5", []byte{byte(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestGroupNames(t *testing.T) {
	assert.Equal(t, "user_7", UserGroup(7))
	assert.Equal(t, "chat_12", ConversationGroup(12))
}
