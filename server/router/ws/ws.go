// Package ws is the realtime conversation channel. Each connection speaks
// typed JSON envelopes; one chat envelope triggers one streamed turn.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hrygo/companion/ai/engine"
)

const (
	writeTimeout = 10 * time.Second

	// Chat turns allowed per connection per minute.
	chatPerMinute = 20
)

// InboundEnvelope is a client-to-server message.
type InboundEnvelope struct {
	Type        string  `json:"type"`
	Message     string  `json:"message,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// Service owns all live WebSocket connections.
type Service struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*connection
}

type connection struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
	limiter *rate.Limiter
	cancel  context.CancelFunc
}

// Send delivers one JSON envelope. Writes are serialized because the
// dispatcher and error paths share the connection.
func (c *connection) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func NewService(eng *engine.Engine) *Service {
	return &Service{
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The REST layer already allows any origin; the socket matches.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*connection),
	}
}

// RegisterRoutes wires the WebSocket endpoint onto the echo instance.
func (s *Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", s.handle)
}

func (s *Service) handle(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		id:      uuid.NewString(),
		ws:      ws,
		limiter: rate.NewLimiter(rate.Limit(chatPerMinute)/60, chatPerMinute),
		cancel:  cancel,
	}

	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()
	slog.Info("websocket connected", "connection", conn.id)

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.conns, conn.id)
		s.mu.Unlock()
		_ = ws.Close()
		slog.Info("websocket disconnected", "connection", conn.id)
	}()

	s.readLoop(ctx, conn)
	return nil
}

// readLoop processes envelopes until the client goes away. Turns run
// sequentially per connection; a malformed envelope keeps the channel open.
func (s *Service) readLoop(ctx context.Context, conn *connection) {
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "connection", conn.id, "error", err)
			}
			return
		}

		var envelope InboundEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			s.sendError(conn, "malformed message, expected a JSON envelope")
			continue
		}

		switch envelope.Type {
		case "chat":
			s.handleChat(ctx, conn, &envelope)
		case "ping":
			if err := conn.Send(map[string]string{"type": "pong"}); err != nil {
				return
			}
		default:
			s.sendError(conn, "unknown envelope type: "+envelope.Type)
		}
	}
}

func (s *Service) handleChat(ctx context.Context, conn *connection, envelope *InboundEnvelope) {
	if !conn.limiter.Allow() {
		s.sendError(conn, "too many chat requests, slow down")
		return
	}
	if envelope.Temperature < 0 || envelope.Temperature > 1 {
		s.sendError(conn, "temperature must be between 0 and 1")
		return
	}

	result, err := s.engine.ProcessMessage(ctx, &engine.ChatRequest{
		Message:     envelope.Message,
		Model:       envelope.Model,
		Temperature: envelope.Temperature,
		Stream:      true,
	})
	if err != nil {
		if errors.Is(err, engine.ErrEmptyMessage) {
			s.sendError(conn, err.Error())
		} else {
			slog.Error("failed to start turn", "connection", conn.id, "error", err)
			s.sendError(conn, "failed to process message")
		}
		return
	}

	dispatcher := engine.NewDispatcher(s.engine.RecordReply)
	if err := dispatcher.Run(ctx, conn, result); err != nil {
		slog.Warn("stream ended early", "connection", conn.id, "error", err)
	}
}

func (s *Service) sendError(conn *connection, message string) {
	if err := conn.Send(engine.ErrorEnvelope{Type: "error", Message: message}); err != nil {
		slog.Debug("failed to send error envelope", "connection", conn.id, "error", err)
	}
}

// CloseAll tears down every live connection, used during shutdown.
func (s *Service) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.conns {
		conn.cancel()
		_ = conn.ws.Close()
		delete(s.conns, id)
	}
}
