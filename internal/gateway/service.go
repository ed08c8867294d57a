// Package gateway wires authentication, the subscription index, presence,
// rate limiting and the message handlers into the per-connection protocol
// state machine.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"AuroraGate/internal/gateway/auth"
	"AuroraGate/internal/gateway/connmgr"
	"AuroraGate/internal/gateway/handler"
	"AuroraGate/internal/gateway/offline"
	"AuroraGate/internal/gateway/presence"
	"AuroraGate/internal/gateway/protocol"
	"AuroraGate/internal/gateway/ratelimit"
	"AuroraGate/internal/store"
	"AuroraGate/pkg/monitor"

	"go.uber.org/zap"
)

// connState is the per-connection view the dispatcher mutates. Frames from
// one connection arrive strictly in order off its read loop, so only the
// state registry itself needs locking.
type connState struct {
	identity      *store.Identity
	authenticated bool
	channels      map[string]struct{}
	conversations map[string]struct{}
}

func (c *connState) Identity() *store.Identity { return c.identity }
func (c *connState) Authenticated() bool       { return c.authenticated }

// Service owns connection lifecycle events and protocol dispatch.
type Service struct {
	authLayer *auth.Layer
	conns     *connmgr.Manager
	presence  *presence.Manager
	limiter   *ratelimit.Limiter
	messages  *handler.MessageHandler
	calls     *handler.CallHandler
	typing    *presence.TypingTracker
	profiles  store.ProfileStore
	offline   *offline.Queue

	mu     sync.RWMutex
	states map[string]*connState
}

func NewService(
	authLayer *auth.Layer,
	conns *connmgr.Manager,
	pres *presence.Manager,
	limiter *ratelimit.Limiter,
	messages *handler.MessageHandler,
	calls *handler.CallHandler,
	typing *presence.TypingTracker,
	profiles store.ProfileStore,
	off *offline.Queue,
) *Service {
	return &Service{
		authLayer: authLayer,
		conns:     conns,
		presence:  pres,
		limiter:   limiter,
		messages:  messages,
		calls:     calls,
		typing:    typing,
		profiles:  profiles,
		offline:   off,
		states:    make(map[string]*connState),
	}
}

// HandleOpen registers a fresh, unauthenticated connection. Heartbeats are
// tracked from this point so idle connections that never authenticate are
// still reaped.
func (s *Service) HandleOpen(sess connmgr.Session) {
	s.mu.Lock()
	s.states[sess.ID()] = &connState{
		channels:      make(map[string]struct{}),
		conversations: make(map[string]struct{}),
	}
	s.mu.Unlock()

	s.conns.Register(sess)
	s.presence.Touch(sess.ID())
	zap.L().Info("connection opened", zap.String("connection_id", sess.ID()))
}

// HandleFrame processes one inbound frame from a connection's read loop.
// Any panic inside dispatch is caught here so one malformed frame never
// terminates the connection.
func (s *Service) HandleFrame(sess connmgr.Session, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("recovered from frame dispatch panic",
				zap.String("connection_id", sess.ID()),
				zap.Any("panic", r))
		}
	}()

	s.presence.Touch(sess.ID())

	var frame protocol.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}
	// clamp the label to the closed frame type set so clients cannot mint
	// unbounded metric series
	frameLabel := frame.Type
	if !protocol.KnownType(frameLabel) {
		frameLabel = "unknown"
	}
	monitor.InboundFrames.WithLabelValues(frameLabel).Inc()

	// control frame: bypasses schema, auth and rate limiting entirely
	if frame.Type == protocol.TypePing {
		_ = sess.Send(protocol.Event{Type: protocol.EventPong})
		return
	}

	state := s.state(sess.ID())
	if state == nil {
		return
	}

	if frame.Type == protocol.TypeAuth {
		s.handleAuth(sess, state, frame.Payload)
		return
	}

	ident, err := s.authLayer.RequireAuth(state)
	if err != nil {
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventAuthError,
			Payload: protocol.ErrorPayload{Message: "authentication required"},
		})
		return
	}

	if !s.limiter.Check(ident.ID) {
		retryAfter := s.limiter.RetryAfter(ident.ID)
		monitor.RateLimited.Inc()
		_ = sess.Send(protocol.Event{
			Type: protocol.EventError,
			Payload: protocol.ErrorPayload{
				Code:       protocol.CodeRateLimitExceeded,
				Message:    "too many messages",
				RetryAfter: retryAfter,
			},
		})
		return
	}
	s.limiter.Record(ident.ID)

	ctx := context.Background()
	switch frame.Type {
	case protocol.TypeMessage:
		var p protocol.MessagePayload
		if decode(frame.Payload, &p) && p.Validate() == nil && p.ChannelID != "" {
			s.messages.HandleChannelMessage(ctx, sess, ident, &p)
		}
	case protocol.TypeDMMessage:
		var p protocol.MessagePayload
		if decode(frame.Payload, &p) && p.Validate() == nil && p.ConversationID != "" {
			s.messages.HandleDirectMessage(ctx, sess, ident, &p)
		}
	case protocol.TypeTypingStart:
		var p protocol.TypingPayload
		if decode(frame.Payload, &p) && p.Validate() == nil {
			s.handleTypingStart(sess, state, ident, &p)
		}
	case protocol.TypeTypingStop:
		var p protocol.TypingPayload
		if decode(frame.Payload, &p) && p.Validate() == nil {
			s.handleTypingStop(sess, ident, &p)
		}
	case protocol.TypeJoinChannel:
		var p protocol.JoinLeavePayload
		if decode(frame.Payload, &p) && p.Validate() == nil && p.ChannelID != "" {
			s.handleJoinChannel(ctx, sess, state, ident, p.ChannelID)
		}
	case protocol.TypeLeaveChannel:
		var p protocol.JoinLeavePayload
		if decode(frame.Payload, &p) && p.Validate() == nil && p.ChannelID != "" {
			s.conns.LeaveChannel(ident.ID, p.ChannelID)
			delete(state.channels, p.ChannelID)
			_ = sess.Send(protocol.Event{
				Type:    protocol.EventUserLeftChannel,
				Payload: map[string]string{"channelId": p.ChannelID},
			})
		}
	case protocol.TypeJoinConversation:
		var p protocol.JoinLeavePayload
		if decode(frame.Payload, &p) && p.Validate() == nil && p.ConversationID != "" {
			s.handleJoinConversation(ctx, sess, state, ident, p.ConversationID)
		}
	case protocol.TypeLeaveConversation:
		var p protocol.JoinLeavePayload
		if decode(frame.Payload, &p) && p.Validate() == nil && p.ConversationID != "" {
			s.conns.LeaveConversation(ident.ID, p.ConversationID)
			delete(state.conversations, p.ConversationID)
		}
	case protocol.TypePresenceUpdate:
		var p protocol.PresencePayload
		if decode(frame.Payload, &p) && p.Validate() == nil {
			s.presence.SetStatus(ctx, ident.ID, p.Status)
			ident.Status = p.Status
			s.broadcastPresence(ident.ID, p.Status)
		}
	default:
		if strings.HasPrefix(frame.Type, protocol.CallSignalPrefix) {
			var p protocol.CallSignalPayload
			if decode(frame.Payload, &p) && p.Validate() == nil {
				s.calls.HandleSignal(sess, ident, frame.Type, &p)
			}
			return
		}
		// unknown frame types are ignored for forward compatibility
	}
}

// HandleClose tears down everything for a closed transport. This is the only
// place connection teardown happens; the heartbeat sweeper and shutdown both
// close the transport and let its close event land here.
func (s *Service) HandleClose(sess connmgr.Session) {
	connID := sess.ID()

	s.mu.Lock()
	state := s.states[connID]
	delete(s.states, connID)
	s.mu.Unlock()

	s.conns.Remove(connID)
	s.presence.Forget(connID)

	if state != nil && state.authenticated && state.identity != nil {
		userID := state.identity.ID
		remaining := s.conns.ConnectionsInScope(connmgr.Scope{UserIDs: []string{userID}})
		if len(remaining) == 0 {
			s.presence.SetStatus(context.Background(), userID, "offline")
			s.broadcastPresence(userID, "offline")
			zap.L().Info("user went offline", zap.String("user_id", userID))
		}
	}
	zap.L().Info("connection closed", zap.String("connection_id", connID))
}

func (s *Service) state(connID string) *connState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[connID]
}

func decode(raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func (s *Service) handleAuth(sess connmgr.Session, state *connState, raw json.RawMessage) {
	if state.authenticated {
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventError,
			Payload: protocol.ErrorPayload{Message: "connection already authenticated"},
		})
		return
	}

	var p protocol.AuthPayload
	if !decode(raw, &p) || p.Validate() != nil {
		monitor.AuthFailures.WithLabelValues(auth.CodeMissingToken).Inc()
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventAuthError,
			Payload: protocol.ErrorPayload{Code: auth.CodeMissingToken, Message: "invalid auth payload"},
		})
		return
	}

	ident, err := s.authLayer.ValidateToken(context.Background(), p.Token)
	if err != nil {
		code := auth.CodeInvalidToken
		msg := "authentication failed"
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			code = authErr.Code
			msg = authErr.Message
		}
		monitor.AuthFailures.WithLabelValues(code).Inc()
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventAuthError,
			Payload: protocol.ErrorPayload{Code: code, Message: msg},
		})
		return
	}

	state.identity = ident
	state.authenticated = true
	s.conns.SetAuthenticatedUser(sess.ID(), ident.ID)
	s.presence.SetStatus(context.Background(), ident.ID, "online")
	s.broadcastPresence(ident.ID, "online")

	_ = sess.Send(protocol.Event{
		Type:    protocol.EventAuthSuccess,
		Payload: map[string]interface{}{"user": ident},
	})
	zap.L().Info("user authenticated",
		zap.String("connection_id", sess.ID()),
		zap.String("user_id", ident.ID),
		zap.String("username", ident.Username))

	if s.offline != nil {
		s.offline.Flush(ident.ID, sess)
	}
}

// broadcastPresence notifies every other authenticated connection of a
// user's status change. The user's own connections are excluded.
func (s *Service) broadcastPresence(userID, status string) {
	event := protocol.Event{
		Type: protocol.EventPresenceUpdateBroadcast,
		Payload: map[string]string{
			"userId": userID,
			"status": status,
		},
	}
	for _, connID := range s.conns.AllAuthenticated() {
		if owner, ok := s.conns.UserOf(connID); ok && owner == userID {
			continue
		}
		s.conns.SendToConnection(connID, event)
	}
}

func (s *Service) handleJoinChannel(ctx context.Context, sess connmgr.Session, state *connState, ident *store.Identity, channelID string) {
	ok, err := s.profiles.CheckMembership(ctx, store.MembershipChannel, channelID, ident.ID)
	if err != nil {
		zap.L().Error("join channel membership check failed",
			zap.String("channel_id", channelID),
			zap.String("user_id", ident.ID),
			zap.Error(err))
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventError,
			Payload: protocol.ErrorPayload{Message: "failed to join channel"},
		})
		return
	}
	if !ok {
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventError,
			Payload: protocol.ErrorPayload{Message: "not authorized"},
		})
		return
	}
	s.conns.JoinChannel(ident.ID, channelID)
	state.channels[channelID] = struct{}{}
	_ = sess.Send(protocol.Event{
		Type:    protocol.EventUserJoinedChannel,
		Payload: map[string]string{"channelId": channelID},
	})
}

func (s *Service) handleJoinConversation(ctx context.Context, sess connmgr.Session, state *connState, ident *store.Identity, conversationID string) {
	ok, err := s.profiles.CheckMembership(ctx, store.MembershipConversation, conversationID, ident.ID)
	if err != nil {
		zap.L().Error("join conversation membership check failed",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", ident.ID),
			zap.Error(err))
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventError,
			Payload: protocol.ErrorPayload{Message: "failed to join conversation"},
		})
		return
	}
	if !ok {
		_ = sess.Send(protocol.Event{
			Type:    protocol.EventError,
			Payload: protocol.ErrorPayload{Message: "not authorized to join conversation"},
		})
		return
	}
	s.conns.JoinConversation(ident.ID, conversationID)
	state.conversations[conversationID] = struct{}{}
}

func scopeKey(p *protocol.TypingPayload) string {
	if p.ChannelID != "" {
		return "channel:" + p.ChannelID
	}
	return "conversation:" + p.ConversationID
}

func (s *Service) typingScope(p *protocol.TypingPayload) connmgr.Scope {
	return connmgr.Scope{ChannelID: p.ChannelID, ConversationID: p.ConversationID}
}

func (s *Service) handleTypingStart(sess connmgr.Session, state *connState, ident *store.Identity, p *protocol.TypingPayload) {
	// only subscribers may announce typing in a scope
	if p.ChannelID != "" {
		if _, ok := state.channels[p.ChannelID]; !ok {
			return
		}
	}
	if p.ConversationID != "" {
		if _, ok := state.conversations[p.ConversationID]; !ok {
			return
		}
	}

	s.broadcastTyping(sess.ID(), ident.ID, p, true)
	payload := *p
	s.typing.Start(ident.ID, scopeKey(p), func() {
		s.broadcastTyping(sess.ID(), ident.ID, &payload, false)
	})
}

func (s *Service) handleTypingStop(sess connmgr.Session, ident *store.Identity, p *protocol.TypingPayload) {
	if s.typing.Stop(ident.ID, scopeKey(p)) {
		s.broadcastTyping(sess.ID(), ident.ID, p, false)
	}
}

// broadcastTyping notifies the scope, excluding the typist's own connection.
func (s *Service) broadcastTyping(fromConnID, userID string, p *protocol.TypingPayload, isTyping bool) {
	event := protocol.Event{
		Type: protocol.EventUserTyping,
		Payload: map[string]interface{}{
			"userId":         userID,
			"channelId":      p.ChannelID,
			"conversationId": p.ConversationID,
			"isTyping":       isTyping,
		},
	}
	for _, connID := range s.conns.ConnectionsInScope(s.typingScope(p)) {
		if connID == fromConnID {
			continue
		}
		s.conns.SendToConnection(connID, event)
	}
}

// Shutdown stops typing timers and closes every live connection with a
// normal-closure code. The heartbeat sweeper is stopped by its own channel
// in main.
func (s *Service) Shutdown() {
	s.typing.StopAll()
	for _, sess := range s.conns.Sessions() {
		_ = sess.Close(1000, "server shutting down")
	}
	// give close frames a moment on the wire before the process exits
	time.Sleep(100 * time.Millisecond)
}
