package handler

import (
	"strings"

	"AuroraGate/internal/gateway/connmgr"
	"AuroraGate/internal/gateway/protocol"
	"AuroraGate/internal/store"

	"go.uber.org/zap"
)

// Recognized call signal kinds after the "call:" prefix.
var callSignalKinds = map[string]bool{
	"offer":     true,
	"answer":    true,
	"candidate": true,
	"start":     true,
	"end":       true,
	"reject":    true,
}

// CallHandler forwards WebRTC signaling frames between users. Signal content
// is opaque to the gateway; it is forwarded verbatim, tagged with the sender.
type CallHandler struct {
	conns *connmgr.Manager
}

func NewCallHandler(conns *connmgr.Manager) *CallHandler {
	return &CallHandler{conns: conns}
}

// HandleSignal forwards a call:<kind> frame to the target user's live
// connections. An offline target is an error only for call:start; later
// signals for a vanished peer are dropped quietly.
func (h *CallHandler) HandleSignal(s connmgr.Session, sender *store.Identity, frameType string, p *protocol.CallSignalPayload) {
	kind := strings.TrimPrefix(frameType, protocol.CallSignalPrefix)
	if !callSignalKinds[kind] {
		return
	}

	targets := h.conns.ConnectionsInScope(connmgr.Scope{UserIDs: []string{p.TargetUserID}})
	if len(targets) == 0 {
		if kind == "start" {
			_ = s.Send(protocol.Event{
				Type:    protocol.EventCallError,
				Payload: protocol.ErrorPayload{Message: "user is offline"},
			})
		}
		return
	}

	signal := protocol.Event{
		Type: frameType,
		Payload: map[string]interface{}{
			"senderId":     sender.ID,
			"senderName":   sender.Username,
			"senderAvatar": sender.AvatarURL,
			"data":         p.Data,
		},
	}
	for _, connID := range targets {
		h.conns.SendToConnection(connID, signal)
	}
	zap.L().Debug("forwarded call signal",
		zap.String("kind", kind),
		zap.String("from", sender.ID),
		zap.String("to", p.TargetUserID))
}
