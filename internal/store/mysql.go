package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"AuroraGate/pkg/utils"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
)

// MySQLStore implements ProfileStore and MessageStore on the shared sqlx
// connection. Message row ids come from a snowflake node so inserts stay a
// single statement.
type MySQLStore struct {
	db     *sqlx.DB
	idNode *snowflake.Node
}

func NewMySQLStore(db *sqlx.DB, machineID int64) (*MySQLStore, error) {
	node, err := snowflake.NewNode(machineID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &MySQLStore{db: db, idNode: node}, nil
}

func (s *MySQLStore) ProfileByToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := utils.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return s.ProfileByID(ctx, claims.Subject)
}

func (s *MySQLStore) ProfileByID(ctx context.Context, id string) (*Identity, error) {
	var ident Identity
	err := s.db.GetContext(ctx, &ident,
		`SELECT id, username, avatar_url, status, custom_status, created_at
		 FROM profiles WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

func (s *MySQLStore) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET status = ?, last_seen = ? WHERE id = ?`,
		status, time.Now(), id)
	return err
}

func (s *MySQLStore) CheckMembership(ctx context.Context, kind MembershipKind, scopeID, userID string) (bool, error) {
	var query string
	switch kind {
	case MembershipChannel:
		// channel messages require membership in the server owning the channel
		query = `SELECT COUNT(*) FROM server_members sm
			 JOIN channels c ON c.server_id = sm.server_id
			 WHERE c.id = ? AND sm.user_id = ?`
	case MembershipConversation:
		query = `SELECT COUNT(*) FROM conversation_members
			 WHERE conversation_id = ? AND user_id = ?`
	default:
		return false, fmt.Errorf("unknown membership kind %q", kind)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, scopeID, userID); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MySQLStore) InsertChannelMessage(ctx context.Context, channelID, authorID, content string, attachments []string) (*StoredMessage, error) {
	return s.insertMessage(ctx, "messages", "channel_id", channelID, authorID, content, attachments)
}

func (s *MySQLStore) InsertDirectMessage(ctx context.Context, conversationID, authorID, content string, attachments []string) (*StoredMessage, error) {
	return s.insertMessage(ctx, "dm_messages", "conversation_id", conversationID, authorID, content, attachments)
}

func (s *MySQLStore) insertMessage(ctx context.Context, table, scopeCol, scopeID, authorID, content string, attachments []string) (*StoredMessage, error) {
	if attachments == nil {
		attachments = []string{}
	}
	rawAttachments, err := json.Marshal(attachments)
	if err != nil {
		return nil, err
	}
	id := s.idNode.Generate().String()
	now := time.Now()
	query := fmt.Sprintf(
		`INSERT INTO %s (id, %s, author_id, content, attachments, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`, table, scopeCol)
	if _, err = s.db.ExecContext(ctx, query, id, scopeID, authorID, content, rawAttachments, now); err != nil {
		return nil, err
	}

	author, err := s.ProfileByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("join author profile: %w", err)
	}

	msg := &StoredMessage{
		ID:          id,
		AuthorID:    authorID,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   now,
		Author:      author,
	}
	if scopeCol == "channel_id" {
		msg.ChannelID = scopeID
	} else {
		msg.ConversationID = scopeID
	}
	return msg, nil
}

func (s *MySQLStore) ConversationMembers(ctx context.Context, conversationID string) ([]string, error) {
	var members []string
	err := s.db.SelectContext(ctx, &members,
		`SELECT user_id FROM conversation_members WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	return members, nil
}
