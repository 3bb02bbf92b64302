package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/service"
)

// maxUploadBytes caps a single message attachment at 32 MiB.
const maxUploadBytes = 32 << 20

func (s *Server) HandleInbox(w http.ResponseWriter, r *http.Request, userID int64) {
	conversations, err := s.svc.Inbox(r.Context(), userID)
	if err != nil {
		log.Printf("inbox: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) HandleStartConversation(w http.ResponseWriter, r *http.Request, userID int64) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	conv, err := s.svc.StartConversation(r.Context(), userID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, service.ErrNotFollowing), errors.Is(err, service.ErrNotFollowedBy):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			log.Printf("start conversation: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"conversation_id": conv.ID})
}

// HandleConversationMessages returns the thread and, as a side effect of
// viewing it, marks incoming messages read.
func (s *Server) HandleConversationMessages(w http.ResponseWriter, r *http.Request, userID int64) {
	conversationID, ok := pathID(w, r)
	if !ok {
		return
	}
	messages, err := s.svc.ConversationMessages(r.Context(), conversationID, userID)
	if err != nil {
		s.writeDMError(w, err, "conversation messages")
		return
	}
	out := make([]dto.DirectMessageDTO, 0, len(messages))
	for _, m := range messages {
		out = append(out, dto.ToDirectMessage(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSendMessage accepts multipart form data: a "body" field plus an
// optional "file" part, "voice_duration" and "reply_to" fields. A plain JSON
// body is accepted too for text-only messages.
func (s *Server) HandleSendMessage(w http.ResponseWriter, r *http.Request, userID int64) {
	conversationID, ok := pathID(w, r)
	if !ok {
		return
	}

	var in service.SendMessageInput
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		in.Body = r.FormValue("body")
		if raw := r.FormValue("voice_duration"); raw != "" {
			if d, err := strconv.ParseFloat(raw, 64); err == nil && d >= 0 {
				in.VoiceDuration = &d
			}
		}
		if raw := r.FormValue("reply_to"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				in.ReplyToID = &id
			}
		}
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			url, err := s.saveUpload(file, header.Filename)
			if err != nil {
				log.Printf("save upload: %v", err)
				writeError(w, http.StatusInternalServerError, "could not store file")
				return
			}
			in.FileURL = &url
			in.FileName = header.Filename
		} else if !errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "invalid file")
			return
		}
	} else {
		var req struct {
			Body    string `json:"body"`
			ReplyTo *int64 `json:"reply_to"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		in.Body = req.Body
		in.ReplyToID = req.ReplyTo
	}

	msg, err := s.svc.SendMessage(r.Context(), conversationID, userID, in)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeDMError(w, err, "send message")
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToDirectMessage(msg))
}

func (s *Server) HandleMarkRead(w http.ResponseWriter, r *http.Request, userID int64) {
	conversationID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.MarkConversationRead(r.Context(), conversationID, userID); err != nil {
		s.writeDMError(w, err, "mark read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) HandleUnreadCount(w http.ResponseWriter, r *http.Request, userID int64) {
	count, err := s.svc.UnreadCount(r.Context(), userID)
	if err != nil {
		log.Printf("unread count: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, dto.UnreadCount{Count: count})
}

// writeDMError maps conversation-access failures. ErrNotParticipant covers both
// a missing conversation and a membership miss, so outsiders cannot probe for
// conversation ids.
func (s *Server) writeDMError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, service.ErrNotParticipant) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}
	log.Printf("%s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// saveUpload stores the attachment under a random name, keeping the original
// extension so type detection and browsers keep working. Returns the public
// URL path.
func (s *Server) saveUpload(src io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	dst, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes)); err != nil {
		return "", err
	}
	return "/uploads/" + name, nil
}
