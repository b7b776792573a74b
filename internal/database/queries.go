package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/teris-io/shortid"
)

func (db *PgChatRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	if len(params.Participants) == 0 {
		return Conversation{}, fmt.Errorf("%w: conversation requires participants", ErrValidation)
	}

	id, err := shortid.Generate()
	if err != nil {
		return Conversation{}, fmt.Errorf("generate conversation id: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Conversation{}, err
	}
	defer tx.Rollback()

	var convo Conversation
	err = tx.QueryRow(
		"INSERT INTO conversations (id, name, private) VALUES ($1, $2, $3) "+
			"RETURNING id, name, private, created_at, updated_at",
		id,
		params.Name,
		params.Private,
	).Scan(&convo.Id, &convo.Name, &convo.Private, &convo.CreatedAt, &convo.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}

	for _, userId := range params.Participants {
		if _, err := tx.Exec(
			"INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			convo.Id,
			userId,
		); err != nil {
			return Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, err
	}

	convo.Participants = params.Participants
	return convo, nil
}

func (db *PgChatRepository) GetConversation(id string) (Conversation, error) {
	var convo Conversation
	var participants pq.StringArray
	err := db.conn.QueryRow(
		"SELECT c.id, c.name, c.private, c.created_at, c.updated_at, "+
			"(SELECT coalesce(array_agg(user_id), '{}') FROM participants WHERE conversation_id = c.id) "+
			"FROM conversations c WHERE c.id = $1",
		id,
	).Scan(&convo.Id, &convo.Name, &convo.Private, &convo.CreatedAt, &convo.UpdatedAt, &participants)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}

	convo.Participants = participants
	return convo, nil
}

func (db *PgChatRepository) FindPrivateConversation(userA, userB string) (Conversation, error) {
	var id string
	err := db.conn.QueryRow(
		"SELECT c.id FROM conversations c "+
			"JOIN participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1 "+
			"JOIN participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2 "+
			"WHERE c.private LIMIT 1",
		userA,
		userB,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}

	return db.GetConversation(id)
}

func (db *PgChatRepository) ListConversations(userId string) ([]Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.name, c.private, c.created_at, c.updated_at, "+
			"(SELECT coalesce(array_agg(user_id), '{}') FROM participants WHERE conversation_id = c.id) "+
			"FROM conversations c "+
			"JOIN participants p ON p.conversation_id = c.id "+
			"WHERE p.user_id = $1 ORDER BY c.updated_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convos = make([]Conversation, 0)
	for rows.Next() {
		var convo Conversation
		var participants pq.StringArray
		if err = rows.Scan(&convo.Id, &convo.Name, &convo.Private, &convo.CreatedAt, &convo.UpdatedAt, &participants); err != nil {
			break
		}

		convo.Participants = participants
		convos = append(convos, convo)
	}
	return convos, err
}

func (db *PgChatRepository) Participants(conversationId string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT user_id FROM participants WHERE conversation_id = $1",
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIds = make([]string, 0)
	for rows.Next() {
		var userId string
		if err = rows.Scan(&userId); err != nil {
			break
		}

		userIds = append(userIds, userId)
	}
	return userIds, err
}

func (db *PgChatRepository) CreateMessage(conversationId, senderId, content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, fmt.Errorf("%w: content cannot be empty", ErrValidation)
	}
	if senderId == "" {
		return Message{}, fmt.Errorf("%w: sender cannot be empty", ErrValidation)
	}

	var exists bool
	if err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)",
		conversationId,
	).Scan(&exists); err != nil {
		return Message{}, err
	}
	if !exists {
		return Message{}, ErrNotFound
	}

	var msg Message
	err := db.conn.QueryRow(
		"INSERT INTO messages (id, conversation_id, sender_id, content) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, conversation_id, sender_id, content, created_at",
		uuid.New().String(),
		conversationId,
		senderId,
		content,
	).Scan(&msg.Id, &msg.ConversationId, &msg.SenderId, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) MessagesByConversation(conversationId string, opts MessageRange) ([]Message, error) {
	query := "SELECT id, conversation_id, sender_id, content, created_at FROM messages WHERE conversation_id = $1"
	args := []any{conversationId}

	if opts.BeforeId != "" {
		args = append(args, opts.BeforeId)
		query += fmt.Sprintf(
			" AND (created_at, id) < (SELECT created_at, id FROM messages WHERE id = $%d)",
			len(args),
		)
	}

	if !opts.After.IsZero() {
		args = append(args, opts.After)
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}

	args = append(args, opts.ClampedLimit())
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, opts.ClampedLimit())
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.ConversationId, &msg.SenderId, &msg.Content, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}
	return messages, err
}

func (db *PgChatRepository) TouchConversation(conversationId string, ts time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE conversations SET updated_at = $2 WHERE id = $1",
		conversationId,
		ts,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
