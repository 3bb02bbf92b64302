package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/hub"
)

const writeTimeout = 10 * time.Second

// HandleNotifications is the per-user channel. On connect it pushes the
// current unread count, then pushes a fresh count whenever the user's group
// signals a change. The pushed number is always recomputed at push time, never
// taken from the event, so rapid sends cannot deliver a stale count last.
func (s *Server) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sub := s.hub.Subscribe(hub.UserGroup(userID))
	defer s.hub.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade notifications: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go discardIncoming(conn, cancel)

	if err := s.pushUnreadCount(ctx, conn, userID); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.pushUnreadCount(ctx, conn, userID); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushUnreadCount(ctx context.Context, conn *websocket.Conn, userID int64) error {
	count, err := s.svc.UnreadCount(ctx, userID)
	if err != nil {
		log.Printf("unread count for user %d: %v", userID, err)
		return err
	}
	data, err := json.Marshal(dto.UnreadCountEvent{Type: dto.EventUnreadCount, Count: count})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// HandleChat is the per-conversation channel: events published to the
// conversation's group are relayed to the socket verbatim. Only participants
// may connect; outsiders and probes for unknown ids both get a 403 before the
// upgrade.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conversationID, ok := pathID(w, r)
	if !ok {
		return
	}
	conv, err := s.svc.ConversationForUser(r.Context(), conversationID, userID)
	if err != nil {
		s.writeDMError(w, err, "chat access")
		return
	}

	sub := s.hub.Subscribe(hub.ConversationGroup(conv.ID))
	defer s.hub.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade chat %d: %v", conv.ID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go discardIncoming(conn, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// discardIncoming drains the socket so control frames are processed and a
// closed peer is noticed; client payloads on these channels carry no meaning.
func discardIncoming(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
