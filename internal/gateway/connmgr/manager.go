// Package connmgr owns the subscription index: which user is behind each
// connection and which channels/conversations each user is watching. It is
// the single source of truth for resolving a broadcast scope to live
// connections.
package connmgr

import (
	"sync"

	"AuroraGate/pkg/monitor"

	"go.uber.org/zap"
)

// Session is the transport handle the manager holds per connection. Send
// must never block the caller; implementations queue and drop on overflow.
type Session interface {
	ID() string
	Send(message interface{}) error
	Close(code int, reason string) error
}

// Scope addresses a broadcast: any non-empty combination of a channel, a
// conversation and an explicit user set. The result is the union.
type Scope struct {
	ChannelID      string
	ConversationID string
	UserIDs        []string
}

// Manager keeps four paired subscription maps plus the connection identity
// maps and the raw session registry. Everything sits behind one RWMutex;
// contention is low at chat message rates and the coarse lock keeps the
// paired maps consistent for any reader.
type Manager struct {
	mu sync.RWMutex

	userChannels map[string]map[string]struct{}
	channelUsers map[string]map[string]struct{}

	userConversations map[string]map[string]struct{}
	conversationUsers map[string]map[string]struct{}

	connectionUser  map[string]string
	userConnections map[string]map[string]struct{}

	sessions map[string]Session
}

func New() *Manager {
	return &Manager{
		userChannels:      make(map[string]map[string]struct{}),
		channelUsers:      make(map[string]map[string]struct{}),
		userConversations: make(map[string]map[string]struct{}),
		conversationUsers: make(map[string]map[string]struct{}),
		connectionUser:    make(map[string]string),
		userConnections:   make(map[string]map[string]struct{}),
		sessions:          make(map[string]Session),
	}
}

// Register adds a session to the raw registry. No user binding yet.
func (m *Manager) Register(s Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	monitor.ConnectionsGauge.Inc()
}

// SetAuthenticatedUser binds a connection to its owner after a successful
// auth frame. Rebinding an already-bound connection is rejected.
func (m *Manager) SetAuthenticatedUser(connectionID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[connectionID]; !ok {
		return
	}
	if prev, ok := m.connectionUser[connectionID]; ok {
		zap.L().Warn("rejecting rebind of authenticated connection",
			zap.String("connection_id", connectionID),
			zap.String("bound_user", prev),
			zap.String("requested_user", userID))
		return
	}
	m.connectionUser[connectionID] = userID
	conns, ok := m.userConnections[userID]
	if !ok {
		conns = make(map[string]struct{})
		m.userConnections[userID] = conns
	}
	conns[connectionID] = struct{}{}
}

// Remove drops the session and its user binding. When this was the user's
// last live connection, all of the user's channel and conversation
// subscriptions are purged from both sides of the index.
func (m *Manager) Remove(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[connectionID]; ok {
		delete(m.sessions, connectionID)
		monitor.ConnectionsGauge.Dec()
	}

	userID, bound := m.connectionUser[connectionID]
	delete(m.connectionUser, connectionID)
	if !bound {
		return
	}

	conns := m.userConnections[userID]
	if conns == nil {
		return
	}
	delete(conns, connectionID)
	if len(conns) > 0 {
		return
	}
	delete(m.userConnections, userID)

	// last connection gone: subscriptions do not survive a full disconnect
	for channelID := range m.userChannels[userID] {
		m.dropFromSet(m.channelUsers, channelID, userID)
	}
	delete(m.userChannels, userID)
	for conversationID := range m.userConversations[userID] {
		m.dropFromSet(m.conversationUsers, conversationID, userID)
	}
	delete(m.userConversations, userID)
}

func (m *Manager) dropFromSet(index map[string]map[string]struct{}, key, member string) {
	set := index[key]
	if set == nil {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(index, key)
	}
}

func (m *Manager) JoinChannel(userID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addToSet(m.userChannels, userID, channelID)
	addToSet(m.channelUsers, channelID, userID)
}

func (m *Manager) LeaveChannel(userID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropFromSet(m.userChannels, userID, channelID)
	m.dropFromSet(m.channelUsers, channelID, userID)
}

func (m *Manager) JoinConversation(userID, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addToSet(m.userConversations, userID, conversationID)
	addToSet(m.conversationUsers, conversationID, userID)
}

func (m *Manager) LeaveConversation(userID, conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropFromSet(m.userConversations, userID, conversationID)
	m.dropFromSet(m.conversationUsers, conversationID, userID)
}

func addToSet(index map[string]map[string]struct{}, key, member string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[member] = struct{}{}
}

// ConnectionsInScope resolves a scope to the de-duplicated union of live
// connection ids for every matched user. Users with no live connections
// contribute nothing.
func (m *Manager) ConnectionsInScope(scope Scope) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := make(map[string]struct{})
	if scope.ChannelID != "" {
		for userID := range m.channelUsers[scope.ChannelID] {
			targets[userID] = struct{}{}
		}
	}
	if scope.ConversationID != "" {
		for userID := range m.conversationUsers[scope.ConversationID] {
			targets[userID] = struct{}{}
		}
	}
	for _, userID := range scope.UserIDs {
		targets[userID] = struct{}{}
	}

	var out []string
	for userID := range targets {
		for connID := range m.userConnections[userID] {
			out = append(out, connID)
		}
	}
	return out
}

// AllAuthenticated lists every connection with a bound user, for
// gateway-wide broadcasts such as presence changes.
func (m *Manager) AllAuthenticated() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.connectionUser))
	for connID := range m.connectionUser {
		out = append(out, connID)
	}
	return out
}

// Get returns the session registered under connectionID, if still live.
func (m *Manager) Get(connectionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connectionID]
	return s, ok
}

// UserOf returns the user bound to a connection, if authenticated.
func (m *Manager) UserOf(connectionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.connectionUser[connectionID]
	return userID, ok
}

// SendToConnection pushes a message to one connection. A connection that
// vanished between scope resolution and send is a no-op: broadcasts are
// best-effort, not transactional.
func (m *Manager) SendToConnection(connectionID string, message interface{}) {
	m.mu.RLock()
	s, ok := m.sessions[connectionID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.Send(message); err != nil {
		monitor.DroppedFrames.Inc()
		zap.L().Info("dropped outbound frame",
			zap.String("connection_id", connectionID), zap.Error(err))
		return
	}
	monitor.BroadcastFanout.Inc()
}

// Broadcast resolves the scope and pushes the message to every connection
// in it.
func (m *Manager) Broadcast(scope Scope, message interface{}) {
	for _, connID := range m.ConnectionsInScope(scope) {
		m.SendToConnection(connID, message)
	}
}

// Count reports live connections, for the ops surface.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sessions snapshots every live session, used at shutdown to close them all.
func (m *Manager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
