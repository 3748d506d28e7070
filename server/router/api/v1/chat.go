package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/companion/ai/engine"
)

// ChatRequest is the /api/chat request body.
type ChatRequest struct {
	Message     string  `json:"message"`
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	Stream      bool    `json:"stream,omitempty"`
}

// ChatResponse is the non-streaming /api/chat response body.
type ChatResponse struct {
	Response       string  `json:"response"`
	Personality    any     `json:"personality"`
	Emotion        any     `json:"emotion"`
	ProcessingTime float64 `json:"processing_time"`
	ModelUsed      string  `json:"model_used"`
	Error          string  `json:"error,omitempty"`
}

// Chat runs one conversation turn. With stream:true the response is delivered
// as Server-Sent Events carrying the same envelopes as the WebSocket channel,
// terminated by a [DONE] marker.
func (s *APIV1Service) Chat(c echo.Context) error {
	if !s.chatLimiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many chat requests, slow down")
	}

	req := &ChatRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Temperature < 0 || req.Temperature > 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "temperature must be between 0 and 1")
	}

	if req.Stream {
		return s.chatStream(c, req)
	}

	result, err := s.Engine.ProcessMessage(c.Request().Context(), &engine.ChatRequest{
		Message:     req.Message,
		Model:       req.Model,
		Temperature: req.Temperature,
	})
	if err != nil {
		if errors.Is(err, engine.ErrEmptyMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process message").SetInternal(err)
	}

	resp := &ChatResponse{
		Response:       result.Response,
		Personality:    result.Personality,
		Emotion:        result.Emotion,
		ProcessingTime: result.ProcessingTime,
		ModelUsed:      result.ModelUsed,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// sseSender writes dispatcher envelopes as SSE data frames.
type sseSender struct {
	c echo.Context
}

func (s *sseSender) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	if _, err := fmt.Fprintf(s.c.Response(), "data: %s\n\n", payload); err != nil {
		return err
	}
	s.c.Response().Flush()
	return nil
}

func (s *APIV1Service) chatStream(c echo.Context, req *ChatRequest) error {
	ctx := c.Request().Context()
	result, err := s.Engine.ProcessMessage(ctx, &engine.ChatRequest{
		Message:     req.Message,
		Model:       req.Model,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		if errors.Is(err, engine.ErrEmptyMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process message").SetInternal(err)
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	sender := &sseSender{c: c}
	dispatcher := engine.NewDispatcher(s.Engine.RecordReply)
	if err := dispatcher.Run(ctx, sender, result); err != nil {
		// The stream is already half-written, only log-worthy.
		c.Logger().Warnf("stream ended early: %v", err)
	}

	if _, err := fmt.Fprint(c.Response(), "data: [DONE]\n\n"); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
