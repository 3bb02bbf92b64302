package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/model"
	"github.com/deddy77/Moun-project/service"
)

func (s *Server) HandleListRooms(w http.ResponseWriter, r *http.Request, _ int64) {
	rooms, err := s.svc.ListRooms(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Printf("list rooms: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toRooms(rooms))
}

func (s *Server) HandleListTopics(w http.ResponseWriter, r *http.Request, _ int64) {
	topics, err := s.svc.ListTopics(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Printf("list topics: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]dto.TopicResponse, 0, len(topics))
	for _, t := range topics {
		out = append(out, dto.TopicResponse{ID: t.ID, Name: t.Name, RoomCount: t.RoomCount})
	}
	writeJSON(w, http.StatusOK, out)
}

type roomRequest struct {
	Topic       string `json:"topic"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) HandleCreateRoom(w http.ResponseWriter, r *http.Request, userID int64) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" || req.Topic == "" {
		writeError(w, http.StatusBadRequest, "name and topic are required")
		return
	}
	room, err := s.svc.CreateRoom(r.Context(), userID, req.Topic, req.Name, req.Description)
	if err != nil {
		log.Printf("create room: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, toRoom(room))
}

func (s *Server) HandleGetRoom(w http.ResponseWriter, r *http.Request, _ int64) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	room, messages, participants, err := s.svc.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		log.Printf("get room: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	users := make([]dto.UserResponse, 0, len(participants))
	for _, u := range participants {
		users = append(users, dto.ToUser(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":         toRoom(room),
		"messages":     toRoomMessages(messages),
		"participants": users,
	})
}

func (s *Server) HandleUpdateRoom(w http.ResponseWriter, r *http.Request, userID int64) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	room, err := s.svc.UpdateRoom(r.Context(), userID, roomID, req.Topic, req.Name, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "room not found")
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, "only the host can edit this room")
		default:
			log.Printf("update room: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toRoom(room))
}

func (s *Server) HandleDeleteRoom(w http.ResponseWriter, r *http.Request, userID int64) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteRoom(r.Context(), userID, roomID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "room not found")
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, "only the host can delete this room")
		default:
			log.Printf("delete room: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) HandlePostRoomMessage(w http.ResponseWriter, r *http.Request, userID int64) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := s.svc.PostRoomMessage(r.Context(), userID, roomID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "room not found")
		default:
			log.Printf("post room message: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toRoomMessage(msg))
}

func (s *Server) HandleDeleteRoomMessage(w http.ResponseWriter, r *http.Request, userID int64) {
	messageID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteRoomMessage(r.Context(), userID, messageID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "message not found")
		case errors.Is(err, service.ErrForbidden):
			writeError(w, http.StatusForbidden, "only the author can delete this message")
		default:
			log.Printf("delete room message: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) HandleRecentActivity(w http.ResponseWriter, r *http.Request, _ int64) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	messages, err := s.svc.RecentActivity(r.Context(), limit)
	if err != nil {
		log.Printf("recent activity: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toRoomMessages(messages))
}

func toRoom(room model.Room) dto.RoomResponse {
	return dto.RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		HostID:      room.HostID,
		HostName:    room.HostUsername,
		Topic:       room.TopicName,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

func toRooms(rooms []model.Room) []dto.RoomResponse {
	out := make([]dto.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoom(room))
	}
	return out
}

func toRoomMessage(m model.Message) dto.RoomMessageResponse {
	return dto.RoomMessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Username:  m.Username,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func toRoomMessages(messages []model.Message) []dto.RoomMessageResponse {
	out := make([]dto.RoomMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, toRoomMessage(m))
	}
	return out
}
