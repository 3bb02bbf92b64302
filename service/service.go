package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/hub"
	"github.com/deddy77/Moun-project/model"
	"github.com/deddy77/Moun-project/repo"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUsernameTaken = errors.New("username taken")
	ErrEmailTaken    = errors.New("email taken")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrSelfFollow    = errors.New("you cannot follow yourself")
	ErrSelfMessage   = errors.New("you cannot message yourself")
	// ErrNotFollowing and ErrNotFollowedBy name which side of the mutual-follow
	// precondition is missing.
	ErrNotFollowing   = errors.New("you must follow this user to message them")
	ErrNotFollowedBy  = errors.New("this user must follow you back before you can message them")
	ErrEmptyMessage   = errors.New("message must have a body or a file")
	ErrNotParticipant = errors.New("not a participant of this conversation")
)

// Two distinct online windows survive from the original product: the global
// status check uses 80s, the inbox view 300s. They serve different UI purposes
// and are deliberately not unified.
const (
	StatusOnlineWindow = 80 * time.Second
	InboxOnlineWindow  = 300 * time.Second
)

// Store is the persistence surface the service needs. *repo.Repository is the
// PostgreSQL implementation, *repo.MemStore the in-memory one.
type Store interface {
	CreateUser(ctx context.Context, username, email, name, passwordHash string) (int64, error)
	GetUser(ctx context.Context, userID int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (int64, string, error)
	UpdateUser(ctx context.Context, userID int64, update model.UserUpdate) error

	CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	GetSessionUserID(ctx context.Context, token string) (int64, error)
	DeleteSession(ctx context.Context, token string) error

	TouchActivity(ctx context.Context, userID int64) error
	ClearActivity(ctx context.Context, userID int64) error
	OnlineUsers(ctx context.Context, window time.Duration) ([]model.User, error)

	CreateFollow(ctx context.Context, followerID, followedID int64) error
	DeleteFollow(ctx context.Context, followerID, followedID int64) error
	IsFollowing(ctx context.Context, followerID, followedID int64) (bool, error)
	FollowCounts(ctx context.Context, userID int64) (followers, following int64, err error)
	MutualFollowers(ctx context.Context, userID int64) ([]model.User, error)

	GetOrCreateTopic(ctx context.Context, name string) (int64, error)
	ListTopics(ctx context.Context, query string) ([]model.Topic, error)
	CreateRoom(ctx context.Context, hostID, topicID int64, name, description string) (int64, error)
	GetRoom(ctx context.Context, roomID int64) (model.Room, error)
	UpdateRoom(ctx context.Context, roomID, topicID int64, name, description string) error
	DeleteRoom(ctx context.Context, roomID int64) error
	ListRooms(ctx context.Context, query string) ([]model.Room, error)
	ListRoomsByHost(ctx context.Context, hostID int64) ([]model.Room, error)
	AddParticipant(ctx context.Context, roomID, userID int64) error
	ListParticipants(ctx context.Context, roomID int64) ([]model.User, error)
	CreateRoomMessage(ctx context.Context, roomID, userID int64, body string) (model.Message, error)
	GetRoomMessage(ctx context.Context, messageID int64) (model.Message, error)
	DeleteRoomMessage(ctx context.Context, messageID int64) error
	ListRoomMessages(ctx context.Context, roomID int64) ([]model.Message, error)
	RecentMessages(ctx context.Context, limit int) ([]model.Message, error)

	GetOrCreateConversation(ctx context.Context, userA, userB int64) (model.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID int64) (model.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error)
	CreateDirectMessage(ctx context.Context, m *model.DirectMessage) error
	ResolveReply(ctx context.Context, conversationID, messageID int64) (*model.ReplyRef, error)
	ListDirectMessages(ctx context.Context, conversationID int64) ([]model.DirectMessage, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID int64) error
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

var (
	_ Store = (*repo.Repository)(nil)
	_ Store = (*repo.MemStore)(nil)
)

type Service struct {
	store    Store
	events   hub.Broadcaster
	tokenTTL time.Duration
}

func New(store Store, events hub.Broadcaster, tokenTTL time.Duration) *Service {
	return &Service{store: store, events: events, tokenTTL: tokenTTL}
}

func (s *Service) Register(ctx context.Context, username, email, name, password string) (model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}
	userID, err := s.store.CreateUser(ctx, username, email, name, string(hash))
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrUsernameTaken):
			return model.User{}, ErrUsernameTaken
		case errors.Is(err, repo.ErrEmailTaken):
			return model.User{}, ErrEmailTaken
		}
		return model.User{}, err
	}
	return model.User{ID: userID, Username: username, Email: email, Name: name}, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (string, int64, time.Time, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	userID, hash, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", 0, time.Time{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", 0, time.Time{}, ErrUnauthorized
	}
	token, err := generateToken(32)
	if err != nil {
		return "", 0, time.Time{}, err
	}
	expiresAt := time.Now().Add(s.tokenTTL)
	if err := s.store.CreateSession(ctx, userID, token, expiresAt); err != nil {
		return "", 0, time.Time{}, err
	}
	_ = s.store.TouchActivity(ctx, userID)
	return token, userID, expiresAt, nil
}

// Logout removes the session and clears the presence timestamp so the user
// reads as offline immediately.
func (s *Service) Logout(ctx context.Context, token string, userID int64) error {
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return err
	}
	return s.store.ClearActivity(ctx, userID)
}

func (s *Service) Authenticate(ctx context.Context, token string) (int64, error) {
	userID, err := s.store.GetSessionUserID(ctx, token)
	if err != nil {
		return 0, ErrUnauthorized
	}
	return userID, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, update model.UserUpdate) error {
	err := s.store.UpdateUser(ctx, userID, update)
	if errors.Is(err, repo.ErrEmailTaken) {
		return ErrEmailTaken
	}
	return err
}

// TouchActivity stamps presence best-effort; callers ignore the result.
func (s *Service) TouchActivity(ctx context.Context, userID int64) error {
	return s.store.TouchActivity(ctx, userID)
}

// ToggleFollow follows the target if no edge exists, unfollows otherwise.
// Returns whether the requester follows the target afterwards.
func (s *Service) ToggleFollow(ctx context.Context, followerID, followedID int64) (bool, error) {
	if followerID == followedID {
		return false, ErrSelfFollow
	}
	if _, err := s.GetUser(ctx, followedID); err != nil {
		return false, err
	}
	following, err := s.store.IsFollowing(ctx, followerID, followedID)
	if err != nil {
		return false, err
	}
	if following {
		return false, s.store.DeleteFollow(ctx, followerID, followedID)
	}
	return true, s.store.CreateFollow(ctx, followerID, followedID)
}

func (s *Service) FollowData(ctx context.Context, viewerID, targetID int64) (dto.FollowData, error) {
	followers, following, err := s.store.FollowCounts(ctx, targetID)
	if err != nil {
		return dto.FollowData{}, err
	}
	isFollowing, err := s.store.IsFollowing(ctx, viewerID, targetID)
	if err != nil {
		return dto.FollowData{}, err
	}
	return dto.FollowData{Followers: followers, Following: following, IsFollowing: isFollowing}, nil
}

// StatusCheck reports the online state of the requester's mutual followers,
// using the legacy 80s window.
func (s *Service) StatusCheck(ctx context.Context, userID int64) ([]dto.OnlineStatus, error) {
	mutuals, err := s.store.MutualFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	statuses := make([]dto.OnlineStatus, 0, len(mutuals))
	for _, u := range mutuals {
		statuses = append(statuses, dto.OnlineStatus{
			UserID:   u.ID,
			Username: u.Username,
			Online:   u.OnlineWithin(StatusOnlineWindow, now),
			LastSeen: u.LastActivity,
		})
	}
	return statuses, nil
}

// OnlineSnapshot lists everyone currently inside the 80s window; the periodic
// status-check task persists it.
func (s *Service) OnlineSnapshot(ctx context.Context) ([]dto.OnlineStatus, error) {
	users, err := s.store.OnlineUsers(ctx, StatusOnlineWindow)
	if err != nil {
		return nil, err
	}
	statuses := make([]dto.OnlineStatus, 0, len(users))
	for _, u := range users {
		statuses = append(statuses, dto.OnlineStatus{
			UserID:   u.ID,
			Username: u.Username,
			Online:   true,
			LastSeen: u.LastActivity,
		})
	}
	return statuses, nil
}

func generateToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
