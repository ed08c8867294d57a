// Package ws hosts the websocket upgrade endpoint and the transport session:
// one read loop (the connection actor) and one writer goroutine per
// connection, with a bounded outbound queue between broadcasters and the
// wire.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"AuroraGate/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait       = 10 * time.Second
	defaultSendSize = 128
)

// ErrQueueFull is returned when a connection's outbound queue is saturated.
// Callers treat it as a drop, never as a reason to block.
var ErrQueueFull = errors.New("ws: outbound queue full")

type outbound struct {
	data []byte
}

// Session wraps one websocket connection. It satisfies connmgr.Session.
type Session struct {
	id     string
	conn   *websocket.Conn
	sendCh chan outbound

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, sendBuf int) *Session {
	if sendBuf <= 0 {
		sendBuf = defaultSendSize
	}
	return &Session{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan outbound, sendBuf),
		done:   make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Send marshals the message and enqueues it for the writer goroutine. It
// never blocks: a full queue means the client is too slow and the frame is
// dropped.
func (s *Session) Send(message interface{}) error {
	var data []byte
	switch m := message.(type) {
	case json.RawMessage:
		data = m
	case []byte:
		data = m
	default:
		var err error
		data, err = json.Marshal(message)
		if err != nil {
			return err
		}
	}

	select {
	case <-s.done:
		return errors.New("ws: session closed")
	default:
	}

	select {
	case s.sendCh <- outbound{data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close queues a close frame and tears down the transport. The read loop
// then errors out, which is what drives the gateway's close callback.
func (s *Session) Close(code int, reason string) error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = s.conn.Close()
	})
	return nil
}

// writeLoop serializes all writes to the websocket.
func (s *Session) writeLoop() {
	for {
		select {
		case out := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, out.data); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop is the connection actor: frames are handed to the dispatcher
// strictly in arrival order.
func (s *Session) readLoop(svc *gateway.Service) {
	defer func() {
		close(s.done)
		_ = s.conn.Close()
		svc.HandleClose(s)
	}()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Info("websocket read ended", zap.String("connection_id", s.id), zap.Error(err))
			}
			return
		}
		svc.HandleFrame(s, raw)
	}
}

// Handler upgrades HTTP requests and runs the session against the service.
func Handler(svc *gateway.Service, sendBuf int) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			zap.L().Error("failed to upgrade to websocket", zap.Error(err))
			return
		}
		sess := newSession(conn, sendBuf)
		svc.HandleOpen(sess)
		go sess.writeLoop()
		sess.readLoop(svc)
	}
}
