package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a profile, channel or conversation is absent.
var ErrNotFound = errors.New("store: not found")

// MembershipKind selects which membership table CheckMembership consults.
type MembershipKind string

const (
	// MembershipChannel checks membership in the server owning a channel.
	MembershipChannel MembershipKind = "channel"
	// MembershipConversation checks direct membership in a conversation.
	MembershipConversation MembershipKind = "conversation"
)

// Identity is the canonical profile shape the gateway caches per connection.
// Status is the only field mutated after authentication, through the
// presence manager.
type Identity struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	AvatarURL    string    `db:"avatar_url" json:"avatarUrl"`
	Status       string    `db:"status" json:"status"`
	CustomStatus string    `db:"custom_status" json:"customStatus"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// StoredMessage is a persisted chat row joined with its author profile,
// ready for immediate broadcast.
type StoredMessage struct {
	ID             string    `db:"id" json:"id"`
	ChannelID      string    `db:"channel_id" json:"channelId,omitempty"`
	ConversationID string    `db:"conversation_id" json:"conversationId,omitempty"`
	AuthorID       string    `db:"author_id" json:"authorId"`
	Content        string    `db:"content" json:"content"`
	Attachments    []string  `json:"attachments"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	Author         *Identity `json:"author"`
}

// ProfileStore is the external identity/profile collaborator.
type ProfileStore interface {
	// ProfileByToken resolves a bearer token to the profile it belongs to.
	ProfileByToken(ctx context.Context, token string) (*Identity, error)
	ProfileByID(ctx context.Context, id string) (*Identity, error)
	// UpdateStatus persists online/offline/away style status changes.
	UpdateStatus(ctx context.Context, id, status string) error
	// CheckMembership reports whether userID belongs to the given scope.
	CheckMembership(ctx context.Context, kind MembershipKind, scopeID, userID string) (bool, error)
}

// MessageStore is the external durable persistence collaborator.
type MessageStore interface {
	InsertChannelMessage(ctx context.Context, channelID, authorID, content string, attachments []string) (*StoredMessage, error)
	InsertDirectMessage(ctx context.Context, conversationID, authorID, content string, attachments []string) (*StoredMessage, error)
	ConversationMembers(ctx context.Context, conversationID string) ([]string, error)
}
