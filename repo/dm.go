package repo

import (
	"context"
	"database/sql"
	"log"

	"github.com/pkg/errors"

	"github.com/deddy77/Moun-project/model"
)

const conversationColumns = `id, participant1_id, participant2_id, created_at, updated_at`

// GetOrCreateConversation returns the unordered pair's conversation, creating
// it if missing. The unique index on the normalized pair makes concurrent
// callers converge on a single row; the loser of the insert race re-reads the
// winner's row.
func (r *Repository) GetOrCreateConversation(ctx context.Context, userA, userB int64) (model.Conversation, bool, error) {
	p1, p2 := model.NormalizePair(userA, userB)

	var conv model.Conversation
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO conversations (participant1_id, participant2_id) VALUES ($1, $2)
		 ON CONFLICT (participant1_id, participant2_id) DO NOTHING
		 RETURNING `+conversationColumns,
		p1, p2,
	).Scan(&conv.ID, &conv.Participant1ID, &conv.Participant2ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, false, errors.Wrap(err, "repo.GetOrCreateConversation.insert")
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		  WHERE participant1_id = $1 AND participant2_id = $2`,
		p1, p2,
	).Scan(&conv.ID, &conv.Participant1ID, &conv.Participant2ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return model.Conversation{}, false, errors.Wrap(err, "repo.GetOrCreateConversation.select")
	}
	return conv, false, nil
}

func (r *Repository) GetConversation(ctx context.Context, conversationID int64) (model.Conversation, error) {
	var conv model.Conversation
	err := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&conv.ID, &conv.Participant1ID, &conv.Participant2ID, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	return conv, errors.Wrap(err, "repo.GetConversation")
}

// ListConversations returns the user's inbox rows: peer, latest message and the
// user's unread count per conversation, most recently active first.
func (r *Repository) ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.participant1_id, c.participant2_id, c.created_at, c.updated_at,
		        `+prefixed(userColumns, "u")+`,
		        m.id, m.sender_id, m.body, m.file_type, m.created_at,
		        (SELECT COUNT(*) FROM direct_messages d
		          WHERE d.conversation_id = c.id AND NOT d.is_read AND d.sender_id <> $1)
		   FROM conversations c
		   JOIN users u ON u.id = CASE WHEN c.participant1_id = $1 THEN c.participant2_id ELSE c.participant1_id END
		   LEFT JOIN LATERAL (
		       SELECT id, sender_id, body, file_type, created_at
		         FROM direct_messages
		        WHERE conversation_id = c.id
		        ORDER BY id DESC
		        LIMIT 1
		   ) m ON TRUE
		  WHERE c.participant1_id = $1 OR c.participant2_id = $1
		  ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListConversations")
	}
	defer rows.Close()

	var summaries []model.ConversationSummary
	for rows.Next() {
		var s model.ConversationSummary
		var avatar, bio sql.NullString
		var lastActivity sql.NullTime
		var lastID, lastSender sql.NullInt64
		var lastBody, lastFileType sql.NullString
		var lastCreated sql.NullTime
		if err := rows.Scan(
			&s.Conversation.ID, &s.Conversation.Participant1ID, &s.Conversation.Participant2ID,
			&s.Conversation.CreatedAt, &s.Conversation.UpdatedAt,
			&s.Peer.ID, &s.Peer.Username, &s.Peer.Email, &s.Peer.Name, &avatar, &bio, &lastActivity,
			&lastID, &lastSender, &lastBody, &lastFileType, &lastCreated,
			&s.UnreadCount,
		); err != nil {
			return nil, err
		}
		if avatar.Valid {
			s.Peer.Avatar = &avatar.String
		}
		if bio.Valid {
			s.Peer.Bio = &bio.String
		}
		if lastActivity.Valid {
			t := lastActivity.Time
			s.Peer.LastActivity = &t
		}
		if lastID.Valid {
			s.LastMessage = &model.DirectMessage{
				ID:             lastID.Int64,
				ConversationID: s.Conversation.ID,
				SenderID:       lastSender.Int64,
				Body:           lastBody.String,
				FileType:       model.FileType(lastFileType.String),
				CreatedAt:      lastCreated.Time,
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// CreateDirectMessage persists the message and bumps the conversation's
// updated_at. The bump is non-fatal: the message is the operation of record.
func (r *Repository) CreateDirectMessage(ctx context.Context, m *model.DirectMessage) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO direct_messages
		    (conversation_id, sender_id, body, file_url, file_type, voice_duration, reply_to_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, is_read, created_at`,
		m.ConversationID, m.SenderID, m.Body, m.FileURL, m.FileType, m.VoiceDuration, m.ReplyToID,
	).Scan(&m.ID, &m.IsRead, &m.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "repo.CreateDirectMessage")
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, m.ConversationID); err != nil {
		log.Printf("bump conversation %d: %v", m.ConversationID, err)
	}
	return nil
}

// ResolveReply loads a reply preview, but only if the referenced message lives
// in the same conversation. Anything else reads as "no reply".
func (r *Repository) ResolveReply(ctx context.Context, conversationID, messageID int64) (*model.ReplyRef, error) {
	var ref model.ReplyRef
	err := r.db.QueryRowContext(ctx,
		`SELECT d.id, d.body, d.file_type, u.username
		   FROM direct_messages d JOIN users u ON u.id = d.sender_id
		  WHERE d.id = $1 AND d.conversation_id = $2`,
		messageID, conversationID,
	).Scan(&ref.ID, &ref.Body, &ref.FileType, &ref.SenderUsername)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "repo.ResolveReply")
	}
	return &ref, nil
}

func (r *Repository) ListDirectMessages(ctx context.Context, conversationID int64) ([]model.DirectMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.conversation_id, d.sender_id, d.body, d.file_url, d.file_type,
		        d.voice_duration, d.reply_to_id, d.is_read, d.created_at,
		        u.username, u.avatar,
		        p.id, p.body, p.file_type, pu.username
		   FROM direct_messages d
		   JOIN users u ON u.id = d.sender_id
		   LEFT JOIN direct_messages p ON p.id = d.reply_to_id
		   LEFT JOIN users pu ON pu.id = p.sender_id
		  WHERE d.conversation_id = $1
		  ORDER BY d.id`,
		conversationID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "repo.ListDirectMessages")
	}
	defer rows.Close()

	var messages []model.DirectMessage
	for rows.Next() {
		var m model.DirectMessage
		var fileURL, senderAvatar sql.NullString
		var voiceDuration sql.NullFloat64
		var replyToID, replyID sql.NullInt64
		var replyBody, replyFileType, replyUsername sql.NullString
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &fileURL, &m.FileType,
			&voiceDuration, &replyToID, &m.IsRead, &m.CreatedAt,
			&m.SenderUsername, &senderAvatar,
			&replyID, &replyBody, &replyFileType, &replyUsername,
		); err != nil {
			return nil, err
		}
		if fileURL.Valid {
			m.FileURL = &fileURL.String
		}
		if senderAvatar.Valid {
			m.SenderAvatar = &senderAvatar.String
		}
		if voiceDuration.Valid {
			m.VoiceDuration = &voiceDuration.Float64
		}
		if replyToID.Valid {
			m.ReplyToID = &replyToID.Int64
		}
		if replyID.Valid {
			m.ReplyTo = &model.ReplyRef{
				ID:             replyID.Int64,
				Body:           replyBody.String,
				FileType:       model.FileType(replyFileType.String),
				SenderUsername: replyUsername.String,
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkConversationRead flips every unread message not sent by the reader.
// Idempotent by construction.
func (r *Repository) MarkConversationRead(ctx context.Context, conversationID, readerID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE direct_messages SET is_read = TRUE
		  WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read`,
		conversationID, readerID,
	)
	return errors.Wrap(err, "repo.MarkConversationRead")
}

// UnreadCount counts unread incoming messages across all of the user's
// conversations.
func (r *Repository) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		   FROM direct_messages d
		   JOIN conversations c ON c.id = d.conversation_id
		  WHERE (c.participant1_id = $1 OR c.participant2_id = $1)
		    AND NOT d.is_read AND d.sender_id <> $1`,
		userID,
	).Scan(&count)
	return count, errors.Wrap(err, "repo.UnreadCount")
}
