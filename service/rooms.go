package service

import (
	"context"
	"errors"
	"strings"

	"github.com/deddy77/Moun-project/model"
	"github.com/deddy77/Moun-project/repo"
)

func (s *Service) ListRooms(ctx context.Context, query string) ([]model.Room, error) {
	return s.store.ListRooms(ctx, query)
}

func (s *Service) ListTopics(ctx context.Context, query string) ([]model.Topic, error) {
	return s.store.ListTopics(ctx, query)
}

// CreateRoom creates the topic by name when it does not exist yet, matching
// the room form's free-text topic field.
func (s *Service) CreateRoom(ctx context.Context, hostID int64, topicName, name, description string) (model.Room, error) {
	topicID, err := s.store.GetOrCreateTopic(ctx, strings.TrimSpace(topicName))
	if err != nil {
		return model.Room{}, err
	}
	roomID, err := s.store.CreateRoom(ctx, hostID, topicID, name, description)
	if err != nil {
		return model.Room{}, err
	}
	if err := s.store.AddParticipant(ctx, roomID, hostID); err != nil {
		return model.Room{}, err
	}
	return s.store.GetRoom(ctx, roomID)
}

func (s *Service) GetRoom(ctx context.Context, roomID int64) (model.Room, []model.Message, []model.User, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Room{}, nil, nil, ErrNotFound
		}
		return model.Room{}, nil, nil, err
	}
	messages, err := s.store.ListRoomMessages(ctx, roomID)
	if err != nil {
		return model.Room{}, nil, nil, err
	}
	participants, err := s.store.ListParticipants(ctx, roomID)
	if err != nil {
		return model.Room{}, nil, nil, err
	}
	return room, messages, participants, nil
}

func (s *Service) UpdateRoom(ctx context.Context, userID, roomID int64, topicName, name, description string) (model.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Room{}, ErrNotFound
		}
		return model.Room{}, err
	}
	if room.HostID != userID {
		return model.Room{}, ErrForbidden
	}
	topicID, err := s.store.GetOrCreateTopic(ctx, strings.TrimSpace(topicName))
	if err != nil {
		return model.Room{}, err
	}
	if err := s.store.UpdateRoom(ctx, roomID, topicID, name, description); err != nil {
		return model.Room{}, err
	}
	return s.store.GetRoom(ctx, roomID)
}

func (s *Service) DeleteRoom(ctx context.Context, userID, roomID int64) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if room.HostID != userID {
		return ErrForbidden
	}
	return s.store.DeleteRoom(ctx, roomID)
}

// PostRoomMessage also adds the sender to the room's participants, the way the
// original room view did.
func (s *Service) PostRoomMessage(ctx context.Context, userID, roomID int64, body string) (model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return model.Message{}, ErrEmptyMessage
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Message{}, ErrNotFound
		}
		return model.Message{}, err
	}
	msg, err := s.store.CreateRoomMessage(ctx, roomID, userID, body)
	if err != nil {
		return model.Message{}, err
	}
	if err := s.store.AddParticipant(ctx, roomID, userID); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *Service) DeleteRoomMessage(ctx context.Context, userID, messageID int64) error {
	msg, err := s.store.GetRoomMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if msg.UserID != userID {
		return ErrForbidden
	}
	return s.store.DeleteRoomMessage(ctx, messageID)
}

func (s *Service) RecentActivity(ctx context.Context, limit int) ([]model.Message, error) {
	return s.store.RecentMessages(ctx, limit)
}

// Profile bundles a user page: the user, the rooms they host and their room
// messages.
func (s *Service) Profile(ctx context.Context, userID int64) (model.User, []model.Room, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, nil, err
	}
	rooms, err := s.store.ListRoomsByHost(ctx, userID)
	if err != nil {
		return model.User{}, nil, err
	}
	return u, rooms, nil
}
