package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deddy77/Moun-project/hub"
	"github.com/deddy77/Moun-project/repo"
	"github.com/deddy77/Moun-project/service"
)

type testEnv struct {
	srv *httptest.Server
	svc *service.Service
	hub *hub.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	h := hub.New()
	svc := service.New(repo.NewMemStore(), h, 24*time.Hour)
	server := NewServer(svc, h, t.TempDir())
	srv := httptest.NewServer(server.Routes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, svc: svc, hub: h}
}

// signup registers and logs a user in through the service, returning id and token.
func (e *testEnv) signup(t *testing.T, username string) (int64, string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.svc.Register(ctx, username, username+"@example.com", username, "secret123")
	require.NoError(t, err)
	token, _, _, err := e.svc.Login(ctx, username, "secret123")
	require.NoError(t, err)
	return u.ID, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRegisterAndLoginOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"username": "Alice", "email": "alice@example.com", "name": "Alice", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	decode(t, resp, &user)
	assert.Equal(t, "alice", user.Username)

	resp = env.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "alice", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	decode(t, resp, &login)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, user.ID, login.UserID)

	resp = env.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "alice", "password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/inbox", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/inbox", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestDirectMessageFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signup(t, "alice")
	bobID, bobToken := env.signup(t, "bob")

	// No mutual follow yet.
	resp := env.do(t, http.MethodPost, "/api/conversations", aliceToken, map[string]int64{"user_id": bobID})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/follow", bobID), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/follow", aliceID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/conversations", aliceToken, map[string]int64{"user_id": bobID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conv struct {
		ConversationID int64 `json:"conversation_id"`
	}
	decode(t, resp, &conv)
	require.NotZero(t, conv.ConversationID)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conv.ConversationID),
		aliceToken, map[string]string{"body": "hello bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent struct {
		ID             int64  `json:"id"`
		Body           string `json:"body"`
		SenderUsername string `json:"sender_username"`
	}
	decode(t, resp, &sent)
	assert.Equal(t, "hello bob", sent.Body)
	assert.Equal(t, "alice", sent.SenderUsername)

	resp = env.do(t, http.MethodGet, "/api/unread-count", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unread struct {
		Count int64 `json:"count"`
	}
	decode(t, resp, &unread)
	assert.Equal(t, int64(1), unread.Count)

	// Viewing the thread clears the unread count.
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conv.ConversationID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var messages []struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
	}
	decode(t, resp, &messages)
	require.Len(t, messages, 1)
	assert.Equal(t, sent.ID, messages[0].ID)

	resp = env.do(t, http.MethodGet, "/api/unread-count", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &unread)
	assert.Zero(t, unread.Count)

	// A third user cannot read the thread.
	_, carolToken := env.signup(t, "carol")
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conv.ConversationID), carolToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestSendMessageMultipartUpload(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signup(t, "alice")
	bobID, bobToken := env.signup(t, "bob")

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/follow", bobID), aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/follow", aliceID), bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/conversations", aliceToken, map[string]int64{"user_id": bobID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conv struct {
		ConversationID int64 `json:"conversation_id"`
	}
	decode(t, resp, &conv)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a png"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/conversations/%d/messages", env.srv.URL, conv.ConversationID), &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set("Content-Type", form.FormDataContentType())
	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, httpResp.StatusCode)

	var sent struct {
		FileURL  *string `json:"file_url"`
		FileType string  `json:"file_type"`
	}
	decode(t, httpResp, &sent)
	require.NotNil(t, sent.FileURL)
	assert.Contains(t, *sent.FileURL, "/uploads/")
	assert.Contains(t, *sent.FileURL, ".png")
	assert.Equal(t, "image", sent.FileType)

	// The stored file is served back.
	fileResp, err := http.Get(env.srv.URL + *sent.FileURL)
	require.NoError(t, err)
	defer fileResp.Body.Close()
	assert.Equal(t, http.StatusOK, fileResp.StatusCode)
	data, err := io.ReadAll(fileResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "not really a png", string(data))
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	_, hostToken := env.signup(t, "alice")
	_, otherToken := env.signup(t, "bob")

	resp := env.do(t, http.MethodPost, "/api/rooms", hostToken, map[string]string{
		"topic": "golang", "name": "gophers", "description": "talk go",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var room struct {
		ID    int64  `json:"id"`
		Topic string `json:"topic"`
	}
	decode(t, resp, &room)
	assert.Equal(t, "golang", room.Topic)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/rooms/%d", room.ID), otherToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/messages", room.ID), otherToken,
		map[string]string{"body": "hello"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d", room.ID), otherToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail struct {
		Messages     []json.RawMessage `json:"messages"`
		Participants []json.RawMessage `json:"participants"`
	}
	decode(t, resp, &detail)
	assert.Len(t, detail.Messages, 1)
	assert.Len(t, detail.Participants, 2)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/rooms/%d", room.ID), hostToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
