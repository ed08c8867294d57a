// Package protocol defines the websocket wire format: one JSON frame per
// message, a closed set of inbound frame types each with a typed payload,
// and the outbound event names.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Inbound frame types.
const (
	TypePing              = "ping"
	TypeAuth              = "auth"
	TypeMessage           = "message"
	TypeDMMessage         = "dm_message"
	TypeTypingStart       = "typing_start"
	TypeTypingStop        = "typing_stop"
	TypePresenceUpdate    = "presence_update"
	TypeJoinChannel       = "join_channel"
	TypeLeaveChannel      = "leave_channel"
	TypeJoinConversation  = "join_conversation"
	TypeLeaveConversation = "leave_conversation"
)

// CallSignalPrefix tags the call signaling family: call:offer, call:answer,
// call:candidate, call:start, call:end, call:reject.
const CallSignalPrefix = "call:"

// Outbound event types.
const (
	EventPong                    = "pong"
	EventAuthSuccess             = "auth_success"
	EventAuthError               = "auth_error"
	EventNewMessage              = "new_message"
	EventNewDMMessage            = "new_dm_message"
	EventUserTyping              = "user_typing"
	EventPresenceUpdateBroadcast = "presence_update_broadcast"
	EventUserJoinedChannel       = "user_joined_channel"
	EventUserLeftChannel         = "user_left_channel"
	EventError                   = "error"
	EventCallError               = "call:error"
)

// Error codes carried by error/auth_error frames.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// MaxContentLength caps chat message content in characters, not bytes.
// Overridden once at startup from gateway config.
var MaxContentLength = 5000

// SetMaxContentLength overrides the content cap; non-positive values keep
// the current one.
func SetMaxContentLength(n int) {
	if n > 0 {
		MaxContentLength = n
	}
}

// knownFrameTypes is the closed set of inbound types, used to clamp
// client-supplied strings before they reach a metric label.
var knownFrameTypes = map[string]bool{
	TypePing:              true,
	TypeAuth:              true,
	TypeMessage:           true,
	TypeDMMessage:         true,
	TypeTypingStart:       true,
	TypeTypingStop:        true,
	TypePresenceUpdate:    true,
	TypeJoinChannel:       true,
	TypeLeaveChannel:      true,
	TypeJoinConversation:  true,
	TypeLeaveConversation: true,
}

func init() {
	for _, kind := range []string{"offer", "answer", "candidate", "start", "end", "reject"} {
		knownFrameTypes[CallSignalPrefix+kind] = true
	}
}

// KnownType reports whether t is one of the recognized inbound frame types.
func KnownType(t string) bool {
	return knownFrameTypes[t]
}

// Frame is the envelope for every inbound frame. Payload stays raw until the
// dispatcher knows the type.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the envelope for every outbound frame.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ErrorPayload is the body of error frames. RetryAfter is set only for rate
// limit rejections.
type ErrorPayload struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

var (
	ErrMissingScope   = errors.New("either channelId or conversationId must be provided")
	ErrAmbiguousScope = errors.New("only one of channelId or conversationId may be provided")
)

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

type AuthPayload struct {
	Token string `json:"token"`
}

func (p *AuthPayload) Validate() error {
	if p.Token == "" {
		return errors.New("token must not be empty")
	}
	return nil
}

type MessagePayload struct {
	ChannelID      string   `json:"channelId,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
	Content        string   `json:"content,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
	// TempID is echoed back for optimistic UI reconciliation.
	TempID string `json:"tempId,omitempty"`
}

func (p *MessagePayload) Validate() error {
	if err := validateScope(p.ChannelID, p.ConversationID); err != nil {
		return err
	}
	if strings.TrimSpace(p.Content) == "" && len(p.Attachments) == 0 {
		return errors.New("message must contain either text or attachments")
	}
	if utf8.RuneCountInString(p.Content) > MaxContentLength {
		return errors.New("message content too long")
	}
	return nil
}

type TypingPayload struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (p *TypingPayload) Validate() error {
	return validateScope(p.ChannelID, p.ConversationID)
}

type JoinLeavePayload struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (p *JoinLeavePayload) Validate() error {
	return validateScope(p.ChannelID, p.ConversationID)
}

// Statuses accepted from presence_update frames.
var validStatuses = map[string]bool{
	"online":  true,
	"idle":    true,
	"dnd":     true,
	"offline": true,
}

type PresencePayload struct {
	Status string `json:"status"`
}

func (p *PresencePayload) Validate() error {
	if !validStatuses[p.Status] {
		return errors.New("status must be one of online, idle, dnd, offline")
	}
	return nil
}

type CallSignalPayload struct {
	TargetUserID string          `json:"targetUserId"`
	Data         json.RawMessage `json:"data,omitempty"`
}

func (p *CallSignalPayload) Validate() error {
	if p.TargetUserID == "" {
		return errors.New("targetUserId must not be empty")
	}
	return nil
}

func validateScope(channelID, conversationID string) error {
	switch {
	case channelID == "" && conversationID == "":
		return ErrMissingScope
	case channelID != "" && conversationID != "":
		return ErrAmbiguousScope
	case channelID != "" && !validUUID(channelID):
		return errors.New("channelId must be a uuid")
	case conversationID != "" && !validUUID(conversationID):
		return errors.New("conversationId must be a uuid")
	}
	return nil
}
