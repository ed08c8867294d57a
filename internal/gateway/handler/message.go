// Package handler implements the chat message and call-signal handlers:
// validate, authorize, persist, broadcast.
package handler

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"AuroraGate/internal/gateway/connmgr"
	"AuroraGate/internal/gateway/offline"
	"AuroraGate/internal/gateway/protocol"
	"AuroraGate/internal/store"

	"go.uber.org/zap"
)

// MessageHandler persists channel and direct messages and fans them out.
type MessageHandler struct {
	profiles store.ProfileStore
	messages store.MessageStore
	conns    *connmgr.Manager
	offline  *offline.Queue

	// scopeLocks serializes persist+broadcast per channel/conversation so
	// subscribers observe messages in persistence-commit order.
	scopeLocks sync.Map // scope key -> *sync.Mutex
}

func NewMessageHandler(profiles store.ProfileStore, messages store.MessageStore, conns *connmgr.Manager, off *offline.Queue) *MessageHandler {
	return &MessageHandler{
		profiles: profiles,
		messages: messages,
		conns:    conns,
		offline:  off,
	}
}

func (h *MessageHandler) lockScope(key string) *sync.Mutex {
	mu, _ := h.scopeLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func sendError(s connmgr.Session, msg string) {
	if s == nil {
		return
	}
	_ = s.Send(protocol.Event{
		Type:    protocol.EventError,
		Payload: protocol.ErrorPayload{Message: msg},
	})
}

// HandleChannelMessage validates, authorizes against the channel's server
// membership, persists and broadcasts to the channel's subscribers. The
// sender's own connections receive the broadcast too when subscribed; there
// is no self-exclusion for chat messages.
func (h *MessageHandler) HandleChannelMessage(ctx context.Context, s connmgr.Session, sender *store.Identity, p *protocol.MessagePayload) {
	content := strings.TrimSpace(p.Content)
	if content == "" && len(p.Attachments) == 0 {
		sendError(s, "message content cannot be empty")
		return
	}
	if utf8.RuneCountInString(content) > protocol.MaxContentLength {
		sendError(s, "message too long")
		return
	}

	ok, err := h.profiles.CheckMembership(ctx, store.MembershipChannel, p.ChannelID, sender.ID)
	if err != nil {
		zap.L().Error("channel membership check failed",
			zap.String("channel_id", p.ChannelID),
			zap.String("user_id", sender.ID),
			zap.Error(err))
		sendError(s, "failed to send message")
		return
	}
	if !ok {
		sendError(s, "not authorized to post in this channel")
		return
	}

	mu := h.lockScope("channel:" + p.ChannelID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := h.messages.InsertChannelMessage(ctx, p.ChannelID, sender.ID, content, p.Attachments)
	if err != nil {
		zap.L().Error("channel message persist failed",
			zap.String("channel_id", p.ChannelID),
			zap.String("user_id", sender.ID),
			zap.Error(err))
		sendError(s, "failed to send message")
		return
	}

	h.conns.Broadcast(connmgr.Scope{ChannelID: p.ChannelID}, protocol.Event{
		Type:    protocol.EventNewMessage,
		Payload: msg,
	})
}

// HandleDirectMessage persists a DM and notifies every conversation member's
// live connections; members with none get the frame queued for replay.
func (h *MessageHandler) HandleDirectMessage(ctx context.Context, s connmgr.Session, sender *store.Identity, p *protocol.MessagePayload) {
	content := strings.TrimSpace(p.Content)
	if content == "" && len(p.Attachments) == 0 {
		sendError(s, "message content cannot be empty")
		return
	}
	if utf8.RuneCountInString(content) > protocol.MaxContentLength {
		sendError(s, "message too long")
		return
	}

	ok, err := h.profiles.CheckMembership(ctx, store.MembershipConversation, p.ConversationID, sender.ID)
	if err != nil {
		zap.L().Error("conversation membership check failed",
			zap.String("conversation_id", p.ConversationID),
			zap.String("user_id", sender.ID),
			zap.Error(err))
		sendError(s, "failed to send direct message")
		return
	}
	if !ok {
		sendError(s, "not a member of this conversation")
		return
	}

	mu := h.lockScope("conversation:" + p.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := h.messages.InsertDirectMessage(ctx, p.ConversationID, sender.ID, content, p.Attachments)
	if err != nil {
		zap.L().Error("direct message persist failed",
			zap.String("conversation_id", p.ConversationID),
			zap.String("user_id", sender.ID),
			zap.Error(err))
		sendError(s, "failed to send direct message")
		return
	}

	members, err := h.messages.ConversationMembers(ctx, p.ConversationID)
	if err != nil {
		zap.L().Error("conversation member list failed",
			zap.String("conversation_id", p.ConversationID),
			zap.Error(err))
		sendError(s, "failed to send direct message")
		return
	}

	event := protocol.Event{
		Type:    protocol.EventNewDMMessage,
		Payload: msg,
	}
	h.conns.Broadcast(connmgr.Scope{UserIDs: members}, event)

	if h.offline != nil {
		for _, member := range members {
			if len(h.conns.ConnectionsInScope(connmgr.Scope{UserIDs: []string{member}})) == 0 {
				h.offline.Push(member, event)
			}
		}
	}
}
