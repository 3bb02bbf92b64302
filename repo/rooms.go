package repo

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/deddy77/Moun-project/model"
)

const roomColumns = `r.id, r.host_id, r.topic_id, r.name, r.description, r.created_at, r.updated_at,
	u.username, t.name`

const roomJoins = ` FROM rooms r JOIN users u ON u.id = r.host_id JOIN topics t ON t.id = r.topic_id`

func (r *Repository) GetOrCreateTopic(ctx context.Context, name string) (int64, error) {
	var topicID int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO topics (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&topicID)
	return topicID, errors.Wrap(err, "repo.GetOrCreateTopic")
}

func (r *Repository) ListTopics(ctx context.Context, query string) ([]model.Topic, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, COUNT(r.id)
		   FROM topics t
		   LEFT JOIN rooms r ON r.topic_id = t.id
		  WHERE t.name ILIKE $1
		  GROUP BY t.id
		  ORDER BY t.name`,
		"%"+query+"%",
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListTopics")
	}
	defer rows.Close()
	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.RoomCount); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (r *Repository) CreateRoom(ctx context.Context, hostID, topicID int64, name, description string) (int64, error) {
	var roomID int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO rooms (host_id, topic_id, name, description) VALUES ($1, $2, $3, $4) RETURNING id`,
		hostID, topicID, name, description,
	).Scan(&roomID)
	return roomID, errors.Wrap(err, "repo.CreateRoom")
}

func (r *Repository) GetRoom(ctx context.Context, roomID int64) (model.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+roomJoins+` WHERE r.id = $1`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Room{}, ErrNotFound
	}
	return room, errors.Wrap(err, "repo.GetRoom")
}

func (r *Repository) UpdateRoom(ctx context.Context, roomID, topicID int64, name, description string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET topic_id = $2, name = $3, description = $4, updated_at = NOW() WHERE id = $1`,
		roomID, topicID, name, description,
	)
	return errors.Wrap(err, "repo.UpdateRoom")
}

func (r *Repository) DeleteRoom(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	return errors.Wrap(err, "repo.DeleteRoom")
}

// ListRooms searches by topic, room name or description, newest first.
func (r *Repository) ListRooms(ctx context.Context, query string) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+roomJoins+`
		  WHERE t.name ILIKE $1 OR r.name ILIKE $1 OR r.description ILIKE $1
		  ORDER BY r.updated_at DESC`,
		"%"+query+"%",
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListRooms")
	}
	defer rows.Close()
	var rooms []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *Repository) ListRoomsByHost(ctx context.Context, hostID int64) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+roomJoins+` WHERE r.host_id = $1 ORDER BY r.updated_at DESC`,
		hostID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListRoomsByHost")
	}
	defer rows.Close()
	var rooms []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *Repository) AddParticipant(ctx context.Context, roomID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID,
	)
	return errors.Wrap(err, "repo.AddParticipant")
}

func (r *Repository) ListParticipants(ctx context.Context, roomID int64) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+prefixed(userColumns, "u")+`
		   FROM users u JOIN room_participants p ON p.user_id = u.id
		  WHERE p.room_id = $1
		  ORDER BY u.username`,
		roomID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListParticipants")
	}
	defer rows.Close()
	return r.collectUsers(rows)
}

func (r *Repository) CreateRoomMessage(ctx context.Context, roomID, userID int64, body string) (model.Message, error) {
	var messageID int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (room_id, user_id, body) VALUES ($1, $2, $3) RETURNING id`,
		roomID, userID, body,
	).Scan(&messageID)
	if err != nil {
		return model.Message{}, errors.Wrap(err, "repo.CreateRoomMessage")
	}
	messages, err := r.queryMessages(ctx,
		`SELECT m.id, m.user_id, m.room_id, m.body, m.created_at, u.username, r.name
		   FROM messages m JOIN users u ON u.id = m.user_id JOIN rooms r ON r.id = m.room_id
		  WHERE m.id = $1`,
		messageID,
	)
	if err != nil {
		return model.Message{}, err
	}
	if len(messages) == 0 {
		return model.Message{}, ErrNotFound
	}
	return messages[0], nil
}

func (r *Repository) GetRoomMessage(ctx context.Context, messageID int64) (model.Message, error) {
	var m model.Message
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, room_id, body, created_at FROM messages WHERE id = $1`,
		messageID,
	).Scan(&m.ID, &m.UserID, &m.RoomID, &m.Body, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	return m, errors.Wrap(err, "repo.GetRoomMessage")
}

func (r *Repository) DeleteRoomMessage(ctx context.Context, messageID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	return errors.Wrap(err, "repo.DeleteRoomMessage")
}

func (r *Repository) ListRoomMessages(ctx context.Context, roomID int64) ([]model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT m.id, m.user_id, m.room_id, m.body, m.created_at, u.username, r.name
		   FROM messages m JOIN users u ON u.id = m.user_id JOIN rooms r ON r.id = m.room_id
		  WHERE m.room_id = $1
		  ORDER BY m.id`,
		roomID,
	)
}

// RecentMessages feeds the activity page.
func (r *Repository) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	return r.queryMessages(ctx,
		`SELECT m.id, m.user_id, m.room_id, m.body, m.created_at, u.username, r.name
		   FROM messages m JOIN users u ON u.id = m.user_id JOIN rooms r ON r.id = m.room_id
		  ORDER BY m.id DESC
		  LIMIT $1`,
		limit,
	)
}

func (r *Repository) queryMessages(ctx context.Context, query string, args ...interface{}) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "repo.queryMessages")
	}
	defer rows.Close()
	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.RoomID, &m.Body, &m.CreatedAt, &m.Username, &m.RoomName); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanRoom(row rowScanner) (model.Room, error) {
	var room model.Room
	err := row.Scan(&room.ID, &room.HostID, &room.TopicID, &room.Name, &room.Description,
		&room.CreatedAt, &room.UpdatedAt, &room.HostUsername, &room.TopicName)
	return room, err
}
