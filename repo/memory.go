package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deddy77/Moun-project/model"
)

// MemStore is an in-memory implementation of the service's Store interface.
// It backs local development without PostgreSQL and the service/handler tests.
type MemStore struct {
	mu sync.Mutex

	nextID int64

	users     map[int64]*model.User
	passwords map[int64]string
	sessions  map[string]session
	follows   map[[2]int64]model.Follow
	topics    map[int64]*model.Topic
	rooms     map[int64]*model.Room
	members   map[int64]map[int64]struct{}
	messages  map[int64]*model.Message
	convs     map[int64]*model.Conversation
	dms       map[int64]*model.DirectMessage
}

type session struct {
	userID    int64
	expiresAt time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:     make(map[int64]*model.User),
		passwords: make(map[int64]string),
		sessions:  make(map[string]session),
		follows:   make(map[[2]int64]model.Follow),
		topics:    make(map[int64]*model.Topic),
		rooms:     make(map[int64]*model.Room),
		members:   make(map[int64]map[int64]struct{}),
		messages:  make(map[int64]*model.Message),
		convs:     make(map[int64]*model.Conversation),
		dms:       make(map[int64]*model.DirectMessage),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) CreateUser(_ context.Context, username, email, name, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return 0, ErrUsernameTaken
		}
		if u.Email == email {
			return 0, ErrEmailTaken
		}
	}
	id := m.id()
	m.users[id] = &model.User{ID: id, Username: username, Email: email, Name: name}
	m.passwords[id] = passwordHash
	return id, nil
}

func (m *MemStore) GetUser(_ context.Context, userID int64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return *u, nil
}

func (m *MemStore) GetUserByUsername(_ context.Context, username string) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Username == username {
			return id, m.passwords[id], nil
		}
	}
	return 0, "", ErrNotFound
}

func (m *MemStore) UpdateUser(_ context.Context, userID int64, update model.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if update.NameSet && update.Name != nil {
		u.Name = *update.Name
	}
	if update.EmailSet && update.Email != nil {
		for id, other := range m.users {
			if id != userID && other.Email == *update.Email {
				return ErrEmailTaken
			}
		}
		u.Email = *update.Email
	}
	if update.BioSet {
		u.Bio = update.Bio
	}
	if update.AvatarSet {
		u.Avatar = update.Avatar
	}
	return nil
}

func (m *MemStore) CreateSession(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = session{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *MemStore) GetSessionUserID(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || time.Now().After(s.expiresAt) {
		return 0, ErrNotFound
	}
	return s.userID, nil
}

func (m *MemStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MemStore) TouchActivity(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		now := time.Now()
		u.LastActivity = &now
	}
	return nil
}

func (m *MemStore) ClearActivity(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastActivity = nil
	}
	return nil
}

// SetActivity pins a user's presence timestamp; tests use it to step through
// the online windows.
func (m *MemStore) SetActivity(userID int64, at *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastActivity = at
	}
}

func (m *MemStore) OnlineUsers(_ context.Context, window time.Duration) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var users []model.User
	for _, u := range m.users {
		if u.OnlineWithin(window, now) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *MemStore) CreateFollow(_ context.Context, followerID, followedID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if followerID == followedID {
		return ErrSelfFollow
	}
	key := [2]int64{followerID, followedID}
	if _, ok := m.follows[key]; !ok {
		m.follows[key] = model.Follow{ID: m.id(), FollowerID: followerID, FollowedID: followedID, CreatedAt: time.Now()}
	}
	return nil
}

func (m *MemStore) DeleteFollow(_ context.Context, followerID, followedID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.follows, [2]int64{followerID, followedID})
	return nil
}

func (m *MemStore) IsFollowing(_ context.Context, followerID, followedID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.follows[[2]int64{followerID, followedID}]
	return ok, nil
}

func (m *MemStore) FollowCounts(_ context.Context, userID int64) (followers, following int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.follows {
		if key[1] == userID {
			followers++
		}
		if key[0] == userID {
			following++
		}
	}
	return followers, following, nil
}

func (m *MemStore) MutualFollowers(_ context.Context, userID int64) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []model.User
	for key := range m.follows {
		if key[1] != userID {
			continue
		}
		if _, back := m.follows[[2]int64{userID, key[0]}]; !back {
			continue
		}
		if u, ok := m.users[key[0]]; ok {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *MemStore) GetOrCreateTopic(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.topics {
		if t.Name == name {
			return id, nil
		}
	}
	id := m.id()
	m.topics[id] = &model.Topic{ID: id, Name: name}
	return id, nil
}

func (m *MemStore) ListTopics(_ context.Context, query string) ([]model.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var topics []model.Topic
	for _, t := range m.topics {
		if !containsFold(t.Name, query) {
			continue
		}
		out := *t
		for _, r := range m.rooms {
			if r.TopicID == t.ID {
				out.RoomCount++
			}
		}
		topics = append(topics, out)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, nil
}

func (m *MemStore) CreateRoom(_ context.Context, hostID, topicID int64, name, description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	now := time.Now()
	m.rooms[id] = &model.Room{
		ID: id, HostID: hostID, TopicID: topicID, Name: name, Description: description,
		CreatedAt: now, UpdatedAt: now,
	}
	return id, nil
}

func (m *MemStore) GetRoom(_ context.Context, roomID int64) (model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomLocked(roomID)
}

func (m *MemStore) roomLocked(roomID int64) (model.Room, error) {
	r, ok := m.rooms[roomID]
	if !ok {
		return model.Room{}, ErrNotFound
	}
	out := *r
	if host, ok := m.users[r.HostID]; ok {
		out.HostUsername = host.Username
	}
	if topic, ok := m.topics[r.TopicID]; ok {
		out.TopicName = topic.Name
	}
	return out, nil
}

func (m *MemStore) UpdateRoom(_ context.Context, roomID, topicID int64, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.TopicID = topicID
	r.Name = name
	r.Description = description
	r.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) DeleteRoom(_ context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	delete(m.members, roomID)
	for id, msg := range m.messages {
		if msg.RoomID == roomID {
			delete(m.messages, id)
		}
	}
	return nil
}

func (m *MemStore) ListRooms(_ context.Context, query string) ([]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rooms []model.Room
	for id, r := range m.rooms {
		topicName := ""
		if t, ok := m.topics[r.TopicID]; ok {
			topicName = t.Name
		}
		if !containsFold(r.Name, query) && !containsFold(r.Description, query) && !containsFold(topicName, query) {
			continue
		}
		room, _ := m.roomLocked(id)
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt) })
	return rooms, nil
}

func (m *MemStore) ListRoomsByHost(_ context.Context, hostID int64) ([]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rooms []model.Room
	for id, r := range m.rooms {
		if r.HostID == hostID {
			room, _ := m.roomLocked(id)
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt) })
	return rooms, nil
}

func (m *MemStore) AddParticipant(_ context.Context, roomID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[roomID] == nil {
		m.members[roomID] = make(map[int64]struct{})
	}
	m.members[roomID][userID] = struct{}{}
	return nil
}

func (m *MemStore) ListParticipants(_ context.Context, roomID int64) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []model.User
	for userID := range m.members[roomID] {
		if u, ok := m.users[userID]; ok {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *MemStore) CreateRoomMessage(_ context.Context, roomID, userID int64, body string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	msg := &model.Message{ID: id, RoomID: roomID, UserID: userID, Body: body, CreatedAt: time.Now()}
	m.messages[id] = msg
	return m.hydrateMessage(*msg), nil
}

func (m *MemStore) GetRoomMessage(_ context.Context, messageID int64) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	return m.hydrateMessage(*msg), nil
}

func (m *MemStore) DeleteRoomMessage(_ context.Context, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, messageID)
	return nil
}

func (m *MemStore) ListRoomMessages(_ context.Context, roomID int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var messages []model.Message
	for _, msg := range m.messages {
		if msg.RoomID == roomID {
			messages = append(messages, m.hydrateMessage(*msg))
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

func (m *MemStore) RecentMessages(_ context.Context, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var messages []model.Message
	for _, msg := range m.messages {
		messages = append(messages, m.hydrateMessage(*msg))
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID > messages[j].ID })
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (m *MemStore) hydrateMessage(msg model.Message) model.Message {
	if u, ok := m.users[msg.UserID]; ok {
		msg.Username = u.Username
	}
	if r, ok := m.rooms[msg.RoomID]; ok {
		msg.RoomName = r.Name
	}
	return msg
}

func (m *MemStore) GetOrCreateConversation(_ context.Context, userA, userB int64) (model.Conversation, bool, error) {
	p1, p2 := model.NormalizePair(userA, userB)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if c.Participant1ID == p1 && c.Participant2ID == p2 {
			return *c, false, nil
		}
	}
	id := m.id()
	now := time.Now()
	conv := &model.Conversation{ID: id, Participant1ID: p1, Participant2ID: p2, CreatedAt: now, UpdatedAt: now}
	m.convs[id] = conv
	return *conv, true, nil
}

func (m *MemStore) GetConversation(_ context.Context, conversationID int64) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	return *c, nil
}

func (m *MemStore) ListConversations(_ context.Context, userID int64) ([]model.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var summaries []model.ConversationSummary
	for _, c := range m.convs {
		if !c.HasParticipant(userID) {
			continue
		}
		s := model.ConversationSummary{Conversation: *c}
		if peer, ok := m.users[c.PeerOf(userID)]; ok {
			s.Peer = *peer
		}
		var last *model.DirectMessage
		for _, d := range m.dms {
			if d.ConversationID != c.ID {
				continue
			}
			if !d.IsRead && d.SenderID != userID {
				s.UnreadCount++
			}
			if last == nil || d.ID > last.ID {
				last = d
			}
		}
		if last != nil {
			cp := m.hydrateDM(*last)
			s.LastMessage = &cp
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Conversation.UpdatedAt.After(summaries[j].Conversation.UpdatedAt)
	})
	return summaries, nil
}

func (m *MemStore) CreateDirectMessage(_ context.Context, msg *model.DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.id()
	msg.IsRead = false
	msg.CreatedAt = time.Now()
	stored := *msg
	m.dms[msg.ID] = &stored
	if c, ok := m.convs[msg.ConversationID]; ok {
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemStore) ResolveReply(_ context.Context, conversationID, messageID int64) (*model.ReplyRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dms[messageID]
	if !ok || d.ConversationID != conversationID {
		return nil, ErrNotFound
	}
	ref := &model.ReplyRef{ID: d.ID, Body: d.Body, FileType: d.FileType}
	if u, ok := m.users[d.SenderID]; ok {
		ref.SenderUsername = u.Username
	}
	return ref, nil
}

func (m *MemStore) ListDirectMessages(_ context.Context, conversationID int64) ([]model.DirectMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var messages []model.DirectMessage
	for _, d := range m.dms {
		if d.ConversationID == conversationID {
			messages = append(messages, m.hydrateDM(*d))
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

func (m *MemStore) MarkConversationRead(_ context.Context, conversationID, readerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.dms {
		if d.ConversationID == conversationID && d.SenderID != readerID {
			d.IsRead = true
		}
	}
	return nil
}

func (m *MemStore) UnreadCount(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, d := range m.dms {
		c, ok := m.convs[d.ConversationID]
		if !ok || !c.HasParticipant(userID) {
			continue
		}
		if !d.IsRead && d.SenderID != userID {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) hydrateDM(d model.DirectMessage) model.DirectMessage {
	if u, ok := m.users[d.SenderID]; ok {
		d.SenderUsername = u.Username
		d.SenderAvatar = u.Avatar
	}
	if d.ReplyToID != nil {
		if p, ok := m.dms[*d.ReplyToID]; ok {
			ref := model.ReplyRef{ID: p.ID, Body: p.Body, FileType: p.FileType}
			if u, ok := m.users[p.SenderID]; ok {
				ref.SenderUsername = u.Username
			}
			d.ReplyTo = &ref
		}
	}
	return d
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
