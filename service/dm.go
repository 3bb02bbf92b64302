package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/hub"
	"github.com/deddy77/Moun-project/model"
	"github.com/deddy77/Moun-project/repo"
)

// StartConversation returns the conversation between the requester and the
// peer, creating it on first contact. Messaging requires a mutual follow:
// the requester must follow the peer and the peer must follow back.
func (s *Service) StartConversation(ctx context.Context, userID, peerID int64) (model.Conversation, error) {
	if userID == peerID {
		return model.Conversation{}, ErrSelfMessage
	}
	if _, err := s.GetUser(ctx, peerID); err != nil {
		return model.Conversation{}, err
	}
	follows, err := s.store.IsFollowing(ctx, userID, peerID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !follows {
		return model.Conversation{}, ErrNotFollowing
	}
	followedBack, err := s.store.IsFollowing(ctx, peerID, userID)
	if err != nil {
		return model.Conversation{}, err
	}
	if !followedBack {
		return model.Conversation{}, ErrNotFollowedBy
	}
	conv, _, err := s.store.GetOrCreateConversation(ctx, userID, peerID)
	return conv, err
}

// SendMessageInput carries the optional parts of a direct message. FileURL is
// already stored by the handler; FileName is the client's original name and
// drives type classification.
type SendMessageInput struct {
	Body          string
	FileURL       *string
	FileName      string
	VoiceDuration *float64
	ReplyToID     *int64
}

// SendMessage persists the message and then notifies the recipient's user
// group and the conversation group exactly once each. Publishing is
// fire-and-forget: a missed notification is recovered by the next poll or
// reconnect, the stored message is the operation of record.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID int64, in SendMessageInput) (model.DirectMessage, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return model.DirectMessage{}, err
	}
	if !conv.HasParticipant(senderID) {
		return model.DirectMessage{}, ErrNotParticipant
	}
	body := strings.TrimSpace(in.Body)
	if body == "" && in.FileURL == nil {
		return model.DirectMessage{}, ErrEmptyMessage
	}

	fileType := model.FileText
	if in.FileURL != nil {
		fileType = model.DetectFileType(in.FileName)
	}

	msg := model.DirectMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		FileURL:        in.FileURL,
		FileType:       fileType,
		VoiceDuration:  in.VoiceDuration,
	}
	// A reply reference that does not resolve inside this conversation is
	// silently dropped rather than rejected.
	if in.ReplyToID != nil {
		if ref, err := s.store.ResolveReply(ctx, conversationID, *in.ReplyToID); err == nil {
			msg.ReplyToID = in.ReplyToID
			msg.ReplyTo = ref
		}
	}
	if err := s.store.CreateDirectMessage(ctx, &msg); err != nil {
		return model.DirectMessage{}, err
	}

	if sender, err := s.store.GetUser(ctx, senderID); err == nil {
		msg.SenderUsername = sender.Username
		msg.SenderAvatar = sender.Avatar
	}

	s.publishUnreadChanged(conv.PeerOf(senderID))
	s.publishNewMessage(conversationID, msg)
	return msg, nil
}

// ConversationMessages returns the thread and marks the reader's incoming
// messages read, which is what viewing the conversation means.
func (s *Service) ConversationMessages(ctx context.Context, conversationID, userID int64) ([]model.DirectMessage, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	messages, err := s.store.ListDirectMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkConversationRead(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID int64) error {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return s.store.MarkConversationRead(ctx, conversationID, userID)
}

// Inbox lists the user's conversations with unread counts and the peer's
// online flag, derived with the inbox-specific 300s window.
func (s *Service) Inbox(ctx context.Context, userID int64) ([]dto.ConversationResponse, error) {
	summaries, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]dto.ConversationResponse, 0, len(summaries))
	for _, sum := range summaries {
		resp := dto.ConversationResponse{
			ID:          sum.Conversation.ID,
			Peer:        dto.ToUser(sum.Peer),
			PeerOnline:  sum.Peer.OnlineWithin(InboxOnlineWindow, now),
			UnreadCount: sum.UnreadCount,
			CreatedAt:   sum.Conversation.CreatedAt,
		}
		if sum.LastMessage != nil {
			m := dto.ToDirectMessage(*sum.LastMessage)
			resp.LastMessage = &m
		}
		out = append(out, resp)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.store.UnreadCount(ctx, userID)
}

// ConversationForUser fetches a conversation the user participates in. Both a
// missing row and a membership miss come back as ErrNotParticipant so the
// handler can answer "access denied" without leaking existence.
func (s *Service) ConversationForUser(ctx context.Context, conversationID, userID int64) (model.Conversation, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Conversation{}, ErrNotParticipant
		}
		return model.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return model.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

func (s *Service) conversation(ctx context.Context, conversationID int64) (model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Conversation{}, ErrNotFound
	}
	return conv, err
}

// publishUnreadChanged pokes the recipient's user group. The payload carries
// no count on purpose: each listening connection recomputes the current value
// before pushing, so rapid sends cannot race a stale number to the client.
func (s *Service) publishUnreadChanged(recipientID int64) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(dto.UnreadCountEvent{Type: dto.EventUnreadCount})
	if err != nil {
		log.Printf("marshal unread event: %v", err)
		return
	}
	s.events.Publish(hub.UserGroup(recipientID), data)
}

func (s *Service) publishNewMessage(conversationID int64, msg model.DirectMessage) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(dto.NewMessageEvent{Type: dto.EventNewMessage, Message: dto.ToDirectMessage(msg)})
	if err != nil {
		log.Printf("marshal message event: %v", err)
		return
	}
	s.events.Publish(hub.ConversationGroup(conversationID), data)
}
