package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/service"
)

func (e *testEnv) wsURL(path, token string) string {
	url := strings.Replace(e.srv.URL, "http://", "ws://", 1) + path
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(v))
}

// startConversation wires a mutual follow and opens the conversation directly
// through the service; the websocket behavior under test sits on top of it.
func (e *testEnv) startConversation(t *testing.T, aliceID, bobID int64) int64 {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.ToggleFollow(ctx, aliceID, bobID)
	require.NoError(t, err)
	_, err = e.svc.ToggleFollow(ctx, bobID, aliceID)
	require.NoError(t, err)
	conv, err := e.svc.StartConversation(ctx, aliceID, bobID)
	require.NoError(t, err)
	return conv.ID
}

func TestNotificationsRejectsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("/ws/notifications", ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotificationsInitialSnapshotAndPush(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.signup(t, "alice")
	bobID, bobToken := env.signup(t, "bob")
	convID := env.startConversation(t, aliceID, bobID)

	conn := dialWS(t, env.wsURL("/ws/notifications", bobToken))

	// The current count arrives immediately on connect.
	var event dto.UnreadCountEvent
	readEvent(t, conn, &event)
	assert.Equal(t, dto.EventUnreadCount, event.Type)
	assert.Zero(t, event.Count)

	_, err := env.svc.SendMessage(context.Background(), convID, aliceID, service.SendMessageInput{Body: "hi"})
	require.NoError(t, err)

	readEvent(t, conn, &event)
	assert.Equal(t, dto.EventUnreadCount, event.Type)
	assert.Equal(t, int64(1), event.Count, "pushed count is recomputed, not echoed")
}

func TestNotificationsMultipleDevices(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.signup(t, "alice")
	bobID, bobToken := env.signup(t, "bob")
	convID := env.startConversation(t, aliceID, bobID)

	phone := dialWS(t, env.wsURL("/ws/notifications", bobToken))
	laptop := dialWS(t, env.wsURL("/ws/notifications", bobToken))

	var event dto.UnreadCountEvent
	readEvent(t, phone, &event)
	readEvent(t, laptop, &event)

	_, err := env.svc.SendMessage(context.Background(), convID, aliceID, service.SendMessageInput{Body: "hi"})
	require.NoError(t, err)

	readEvent(t, phone, &event)
	assert.Equal(t, int64(1), event.Count)
	readEvent(t, laptop, &event)
	assert.Equal(t, int64(1), event.Count)
}

func TestChatRelaysNewMessages(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signup(t, "alice")
	bobID, bobToken := env.signup(t, "bob")
	convID := env.startConversation(t, aliceID, bobID)

	path := fmt.Sprintf("/ws/chat/%d", convID)
	aliceConn := dialWS(t, env.wsURL(path, aliceToken))
	bobConn := dialWS(t, env.wsURL(path, bobToken))

	sent, err := env.svc.SendMessage(context.Background(), convID, aliceID, service.SendMessageInput{Body: "hello"})
	require.NoError(t, err)

	// Both participants, sender included, receive the identical event.
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		var event dto.NewMessageEvent
		readEvent(t, conn, &event)
		assert.Equal(t, dto.EventNewMessage, event.Type)
		assert.Equal(t, sent.ID, event.Message.ID)
		assert.Equal(t, "hello", event.Message.Body)
		assert.Equal(t, "alice", event.Message.SenderUsername)
	}
}

func TestChatRejectsOutsiders(t *testing.T) {
	env := newTestEnv(t)
	aliceID, _ := env.signup(t, "alice")
	bobID, _ := env.signup(t, "bob")
	_, carolToken := env.signup(t, "carol")
	convID := env.startConversation(t, aliceID, bobID)

	_, resp, err := websocket.DefaultDialer.Dial(
		env.wsURL(fmt.Sprintf("/ws/chat/%d", convID), carolToken), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// An unknown conversation answers the same way.
	_, resp, err = websocket.DefaultDialer.Dial(env.wsURL("/ws/chat/99999", carolToken), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
