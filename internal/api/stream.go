package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/cinebot/internal/agent"
	"github.com/nugget/cinebot/internal/session"
)

const (
	wsReadLimit  = 2 << 20
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 60 * time.Second
	wsWriteWait  = 10 * time.Second
)

// frameError is the only frame type that does not mirror an
// agent.EventKind.
const frameError = "error"

// streamFrame is one server-to-client WebSocket message.
type streamFrame struct {
	Type    string            `json:"type"`
	Content string            `json:"content,omitempty"`
	Tool    *agent.ToolResult `json:"tool,omitempty"`
	Result  *agent.Result     `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func frameOf(ev agent.StreamEvent) streamFrame {
	return streamFrame{
		Type:    ev.Kind.String(),
		Content: ev.Chunk.Content,
		Tool:    ev.Tool,
		Result:  ev.Result,
	}
}

// handleStream upgrades to a WebSocket. Each client text frame is a
// messageRequest and starts one streaming turn; turns on a connection
// run one at a time in arrival order.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := s.logger.With("session", sess.ID)
	log.Debug("stream connected")

	inbound := make(chan inboundFrame, 16)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		s.readFrames(ctx, conn, inbound)
	}()

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case frame, ok := <-inbound:
			if !ok {
				break loop
			}
			if !s.streamTurn(ctx, conn, sess, frame) {
				break loop
			}
		}
	}

	cancel()
	conn.Close()
	<-readerDone
	log.Debug("stream disconnected")
}

// inboundFrame is a decoded client frame or the reason it was rejected.
type inboundFrame struct {
	req messageRequest
	err string
}

// readFrames decodes client frames into inbound until the connection
// fails.
func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, inbound chan<- inboundFrame) {
	defer close(inbound)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame.req); err != nil {
			frame.err = "invalid message: " + err.Error()
		} else if frame.req.empty() {
			frame.err = "text or images required"
		}

		select {
		case inbound <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// streamTurn runs one turn and forwards its events. It reports false
// when the connection can no longer be written.
func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, sess *session.Session, frame inboundFrame) bool {
	if frame.err != "" {
		return s.writeFrame(conn, streamFrame{Type: frameError, Error: frame.err})
	}

	for ev, err := range sess.Stream(ctx, frame.req.Text, frame.req.Images...) {
		if err != nil {
			s.logger.Warn("stream turn failed", "session", sess.ID, "error", err)
			return s.writeFrame(conn, streamFrame{Type: frameError, Error: err.Error()})
		}
		if ev.Kind == agent.EventChunk && ev.Chunk.Content == "" {
			continue
		}
		if !s.writeFrame(conn, frameOf(ev)) {
			return false
		}
	}
	return true
}

func (s *Server) writeFrame(conn *websocket.Conn, frame streamFrame) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}
