package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/hub"
	"github.com/deddy77/Moun-project/model"
	"github.com/deddy77/Moun-project/service"
)

type Server struct {
	svc      *service.Service
	hub      *hub.Hub
	upgrader websocket.Upgrader
	// uploadDir receives message attachments; served under /uploads/.
	uploadDir string
}

func NewServer(svc *service.Service, h *hub.Hub, uploadDir string) *Server {
	return &Server{
		svc: svc,
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		uploadDir: uploadDir,
	}
}

func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/register", s.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", s.RequireAuth(s.HandleLogout)).Methods(http.MethodPost)

	r.HandleFunc("/api/me", s.RequireAuth(s.HandleMe)).Methods(http.MethodGet)
	r.HandleFunc("/api/me", s.RequireAuth(s.HandleUpdateProfile)).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{id:[0-9]+}", s.RequireAuth(s.HandleGetUser)).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id:[0-9]+}/profile", s.RequireAuth(s.HandleProfile)).Methods(http.MethodGet)

	r.HandleFunc("/api/users/{id:[0-9]+}/follow", s.RequireAuth(s.HandleToggleFollow)).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{id:[0-9]+}/follow-data", s.RequireAuth(s.HandleFollowData)).Methods(http.MethodGet)
	r.HandleFunc("/api/status-check", s.RequireAuth(s.HandleStatusCheck)).Methods(http.MethodGet)
	r.HandleFunc("/api/activity", s.RequireAuth(s.HandleActivity)).Methods(http.MethodPost)

	r.HandleFunc("/api/rooms", s.RequireAuth(s.HandleListRooms)).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", s.RequireAuth(s.HandleCreateRoom)).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{id:[0-9]+}", s.RequireAuth(s.HandleGetRoom)).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id:[0-9]+}", s.RequireAuth(s.HandleUpdateRoom)).Methods(http.MethodPut)
	r.HandleFunc("/api/rooms/{id:[0-9]+}", s.RequireAuth(s.HandleDeleteRoom)).Methods(http.MethodDelete)
	r.HandleFunc("/api/rooms/{id:[0-9]+}/messages", s.RequireAuth(s.HandlePostRoomMessage)).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/{id:[0-9]+}", s.RequireAuth(s.HandleDeleteRoomMessage)).Methods(http.MethodDelete)
	r.HandleFunc("/api/topics", s.RequireAuth(s.HandleListTopics)).Methods(http.MethodGet)
	r.HandleFunc("/api/recent-activity", s.RequireAuth(s.HandleRecentActivity)).Methods(http.MethodGet)

	r.HandleFunc("/api/inbox", s.RequireAuth(s.HandleInbox)).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations", s.RequireAuth(s.HandleStartConversation)).Methods(http.MethodPost)
	r.HandleFunc("/api/conversations/{id:[0-9]+}/messages", s.RequireAuth(s.HandleConversationMessages)).Methods(http.MethodGet)
	r.HandleFunc("/api/conversations/{id:[0-9]+}/messages", s.RequireAuth(s.HandleSendMessage)).Methods(http.MethodPost)
	r.HandleFunc("/api/conversations/{id:[0-9]+}/read", s.RequireAuth(s.HandleMarkRead)).Methods(http.MethodPost)
	r.HandleFunc("/api/unread-count", s.RequireAuth(s.HandleUnreadCount)).Methods(http.MethodGet)

	r.HandleFunc("/ws/notifications", s.HandleNotifications)
	r.HandleFunc("/ws/chat/{id:[0-9]+}", s.HandleChat)

	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))

	r.Use(Logging)
	return r
}

// RequireAuth resolves the session token and hands the user id to the wrapped
// handler. Every authenticated request also stamps presence, best-effort.
func (s *Server) RequireAuth(next func(w http.ResponseWriter, r *http.Request, userID int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) authenticate(r *http.Request) (int64, error) {
	token := extractToken(r)
	if token == "" {
		return 0, service.ErrUnauthorized
	}
	userID, err := s.svc.Authenticate(r.Context(), token)
	if err != nil {
		return 0, err
	}
	if err := s.svc.TouchActivity(r.Context(), userID); err != nil {
		log.Printf("touch activity for user %d: %v", userID, err)
	}
	return userID, nil
}

// extractToken accepts the token as a Bearer header or a ?token= query
// parameter. The query form exists for websocket clients that cannot set
// headers.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return r.URL.Query().Get("token")
}

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	user, err := s.svc.Register(r.Context(), req.Username, req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username already taken")
		case errors.Is(err, service.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already taken")
		default:
			log.Printf("register: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToUser(user))
}

func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	token, userID, expiresAt, err := s.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Printf("login: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"user_id":    userID,
		"expires_at": expiresAt,
	})
}

func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request, userID int64) {
	if err := s.svc.Logout(r.Context(), extractToken(r), userID); err != nil {
		log.Printf("logout: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// HandleMe returns the authenticated user's own record, email included.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request, userID int64) {
	user, err := s.svc.GetUser(r.Context(), userID)
	if err != nil {
		log.Printf("me: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := dto.ToUser(user)
	resp.Email = user.Email
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleGetUser(w http.ResponseWriter, r *http.Request, _ int64) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := s.svc.GetUser(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("get user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUser(user))
}

func (s *Server) HandleUpdateProfile(w http.ResponseWriter, r *http.Request, userID int64) {
	var req struct {
		Name   *string `json:"name"`
		Email  *string `json:"email"`
		Bio    *string `json:"bio"`
		Avatar *string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	update := model.UserUpdate{
		Name: req.Name, NameSet: req.Name != nil,
		Email: req.Email, EmailSet: req.Email != nil,
		Bio: req.Bio, BioSet: req.Bio != nil,
		Avatar: req.Avatar, AvatarSet: req.Avatar != nil,
	}
	if err := s.svc.UpdateProfile(r.Context(), userID, update); err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already taken")
			return
		}
		log.Printf("update profile: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user, err := s.svc.GetUser(r.Context(), userID)
	if err != nil {
		log.Printf("reload profile: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUser(user))
}

func (s *Server) HandleProfile(w http.ResponseWriter, r *http.Request, _ int64) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}
	user, rooms, err := s.svc.Profile(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("profile: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  dto.ToUser(user),
		"rooms": toRooms(rooms),
	})
}

// pathID parses the {id} route variable. A false return means the error
// response was already written.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
