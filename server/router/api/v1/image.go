package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/companion/ai/llm"
)

const (
	defaultImageSize = 512
	minImageSize     = 64
	maxImageSize     = 1024
)

// ImageRequest is the /api/images/generate request body.
type ImageRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Model          string `json:"model,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// ImageResponse is the /api/images/generate response body. Error is set when
// generation failed; the image field is empty in that case.
type ImageResponse struct {
	ImageBase64    string  `json:"image_base64,omitempty"`
	Prompt         string  `json:"prompt"`
	ModelUsed      string  `json:"model_used,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	GenerationTime float64 `json:"generation_time"`
	Error          string  `json:"error,omitempty"`
}

func (s *APIV1Service) GenerateImage(c echo.Context) error {
	if !s.chatLimiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many generation requests, slow down")
	}

	req := &ImageRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt must not be empty")
	}
	if req.Width == 0 {
		req.Width = defaultImageSize
	}
	if req.Height == 0 {
		req.Height = defaultImageSize
	}
	if req.Width < minImageSize || req.Width > maxImageSize || req.Height < minImageSize || req.Height > maxImageSize {
		return echo.NewHTTPError(http.StatusBadRequest, "width and height must be between 64 and 1024")
	}

	result, err := s.Engine.GenerateImage(c.Request().Context(), &llm.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Width:          req.Width,
		Height:         req.Height,
	})
	if err != nil {
		resp := &ImageResponse{Prompt: req.Prompt, Error: err.Error()}
		if result != nil {
			resp.GenerationTime = result.GenerationTime
		}
		return c.JSON(http.StatusBadGateway, resp)
	}

	return c.JSON(http.StatusOK, &ImageResponse{
		ImageBase64:    result.ImageB64,
		Prompt:         result.Prompt,
		ModelUsed:      result.ModelUsed,
		Width:          result.Width,
		Height:         result.Height,
		GenerationTime: result.GenerationTime,
	})
}
