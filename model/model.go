package model

import (
	"path/filepath"
	"strings"
	"time"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	Name         string
	Avatar       *string
	Bio          *string
	LastActivity *time.Time
}

// OnlineWithin reports whether the user counts as online for the given window.
// A nil LastActivity means the user logged out and is offline regardless of window.
func (u User) OnlineWithin(window time.Duration, now time.Time) bool {
	if u.LastActivity == nil {
		return false
	}
	return now.Sub(*u.LastActivity) < window
}

type UserUpdate struct {
	Name      *string
	NameSet   bool
	Email     *string
	EmailSet  bool
	Bio       *string
	BioSet    bool
	Avatar    *string
	AvatarSet bool
}

type Follow struct {
	ID         int64
	FollowerID int64
	FollowedID int64
	CreatedAt  time.Time
}

type Topic struct {
	ID        int64
	Name      string
	RoomCount int64
}

type Room struct {
	ID          int64
	HostID      int64
	TopicID     int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Joined fields
	HostUsername string
	TopicName    string
}

type Message struct {
	ID        int64
	UserID    int64
	RoomID    int64
	Body      string
	CreatedAt time.Time
	// Joined fields
	Username string
	RoomName string
}

type Conversation struct {
	ID             int64
	Participant1ID int64
	Participant2ID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c Conversation) HasParticipant(userID int64) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// PeerOf returns the other participant of a two-party conversation.
func (c Conversation) PeerOf(userID int64) int64 {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// NormalizePair orders a conversation's participant pair so that the same two
// users always map to the same (participant1, participant2) row.
func NormalizePair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

type FileType string

const (
	FileText  FileType = "text"
	FileImage FileType = "image"
	FileVideo FileType = "video"
	FileVoice FileType = "voice"
)

var (
	imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}
	videoExtensions = []string{"mp4", "webm", "mov", "avi"}
	voiceExtensions = []string{"mp3", "wav", "ogg", "m4a", "webm"}
)

// DetectFileType classifies an uploaded file by extension. The sets are checked
// in order image, video, voice; "webm" appears in both the video and voice sets
// and resolves to video because video is checked first.
func DetectFileType(filename string) FileType {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, e := range imageExtensions {
		if ext == e {
			return FileImage
		}
	}
	for _, e := range videoExtensions {
		if ext == e {
			return FileVideo
		}
	}
	for _, e := range voiceExtensions {
		if ext == e {
			return FileVoice
		}
	}
	return FileText
}

type DirectMessage struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Body           string
	FileURL        *string
	FileType       FileType
	VoiceDuration  *float64
	ReplyToID      *int64
	IsRead         bool
	CreatedAt      time.Time
	// Joined fields
	SenderUsername string
	SenderAvatar   *string
	ReplyTo        *ReplyRef
}

// ReplyRef is the preview of the message a DirectMessage replies to.
type ReplyRef struct {
	ID             int64
	Body           string
	FileType       FileType
	SenderUsername string
}

// ConversationSummary is one inbox row: the conversation together with the
// peer, its latest message and the reader's unread count.
type ConversationSummary struct {
	Conversation Conversation
	Peer         User
	LastMessage  *DirectMessage
	UnreadCount  int64
}
