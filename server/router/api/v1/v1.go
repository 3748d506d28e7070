// Package v1 is the REST surface of the companion: chat, image generation,
// personality and emotion state, and memory inspection.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/hrygo/companion/ai/engine"
	"github.com/hrygo/companion/internal/profile"
)

type APIV1Service struct {
	Profile *profile.Profile
	Engine  *engine.Engine

	chatLimiter *RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, eng *engine.Engine) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		Engine:      eng,
		chatLimiter: NewRateLimiter(),
	}
}

// RegisterRoutes wires all REST endpoints onto the echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) error {
	api := e.Group("/api")

	api.GET("/models", s.ListModels)
	api.POST("/chat", s.Chat)
	api.POST("/images/generate", s.GenerateImage)

	api.GET("/personality/current", s.GetPersonality)
	api.POST("/personality/update", s.UpdatePersonality)
	api.GET("/emotions/current", s.GetEmotion)
	api.POST("/emotions/update", s.UpdateEmotion)

	api.GET("/messages", s.ListMessages)
	api.GET("/memory/stats", s.MemoryStats)
	api.GET("/memory/facts", s.ListFacts)
	api.GET("/system/prompt", s.SystemPrompt)

	return nil
}
