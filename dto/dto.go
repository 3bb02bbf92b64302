package dto

import (
	"time"

	"github.com/deddy77/Moun-project/model"
)

type UserResponse struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Email    string  `json:"email,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

type FollowData struct {
	Followers   int64 `json:"followers"`
	Following   int64 `json:"following"`
	IsFollowing bool  `json:"is_following"`
}

type TopicResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	RoomCount int64  `json:"room_count"`
}

type RoomResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	HostID      int64     `json:"host_id"`
	HostName    string    `json:"host_username"`
	Topic       string    `json:"topic"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RoomMessageResponse struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type OnlineStatus struct {
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type UnreadCount struct {
	Count int64 `json:"count"`
}

type ConversationResponse struct {
	ID          int64              `json:"id"`
	Peer        UserResponse       `json:"peer"`
	PeerOnline  bool               `json:"peer_online"`
	LastMessage *DirectMessageDTO  `json:"last_message,omitempty"`
	UnreadCount int64              `json:"unread_count"`
	CreatedAt   time.Time          `json:"created_at"`
}

type DirectMessageDTO struct {
	ID             int64         `json:"id"`
	Body           string        `json:"body"`
	FileURL        *string       `json:"file_url"`
	FileType       string        `json:"file_type"`
	VoiceDuration  *float64      `json:"voice_duration"`
	SenderID       int64         `json:"sender_id"`
	SenderUsername string        `json:"sender_username"`
	SenderAvatar   *string       `json:"sender_avatar"`
	Created        string        `json:"created"`
	ReplyTo        *ReplyPreview `json:"reply_to"`
}

type ReplyPreview struct {
	ID             int64  `json:"id"`
	Body           string `json:"body"`
	FileType       string `json:"file_type"`
	SenderUsername string `json:"sender_username"`
}

// Events pushed over the websocket channels. Type is the discriminator the
// frontend switches on.
type UnreadCountEvent struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type NewMessageEvent struct {
	Type    string           `json:"type"`
	Message DirectMessageDTO `json:"message"`
}

const (
	EventUnreadCount = "unread_count"
	EventNewMessage  = "new_message"
)

const createdFormat = "Jan 2, 2006, 3:04 PM"

func ToUser(u model.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Avatar:   u.Avatar,
		Bio:      u.Bio,
	}
}

func ToDirectMessage(m model.DirectMessage) DirectMessageDTO {
	out := DirectMessageDTO{
		ID:             m.ID,
		Body:           m.Body,
		FileURL:        m.FileURL,
		FileType:       string(m.FileType),
		VoiceDuration:  m.VoiceDuration,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		SenderAvatar:   m.SenderAvatar,
		Created:        m.CreatedAt.Format(createdFormat),
	}
	if m.ReplyTo != nil {
		out.ReplyTo = &ReplyPreview{
			ID:             m.ReplyTo.ID,
			Body:           m.ReplyTo.Body,
			FileType:       string(m.ReplyTo.FileType),
			SenderUsername: m.ReplyTo.SenderUsername,
		}
	}
	return out
}
